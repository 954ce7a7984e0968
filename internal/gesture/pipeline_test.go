package gesture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oneShot(kind Kind, fingers int, dir Direction, command string) Spec {
	return Spec{
		Trigger: Trigger{Kind: kind, Fingers: fingers, Direction: dir, Mode: ModeOneShot},
		Effect:  Effect{Command: command},
	}
}

func continuousInject(kind Kind, fingers int, dir Direction, op InjectOp) Spec {
	return Spec{
		Trigger: Trigger{Kind: kind, Fingers: fingers, Direction: dir, Mode: ModeContinuous},
		Effect:  Effect{Inject: op, Button: ButtonLeft, Scale: 1},
	}
}

func feedAll(p *Pipeline, frames []RawFrame) []Dispatch {
	var out []Dispatch
	for _, f := range frames {
		out = append(out, p.Feed(f, nil)...)
	}
	return out
}

func TestMatcher_FirstMatchWins(t *testing.T) {
	m := NewMatcher([]Spec{
		oneShot(KindSwipe, 3, DirAny, "first"),
		oneShot(KindSwipe, 3, DirRight, "second"),
	})

	idx, spec, ok := m.Match(KindSwipe, 3, DirRight, ModeOneShot)
	require.True(t, ok)
	assert.Equal(t, 0, idx)
	assert.Equal(t, "first", spec.Effect.Command)
}

func TestMatcher_ExactFingersAndNoneNeverMatches(t *testing.T) {
	m := NewMatcher([]Spec{oneShot(KindSwipe, 3, DirAny, "any")})

	_, _, ok := m.Match(KindSwipe, 4, DirRight, ModeOneShot)
	assert.False(t, ok)
	_, _, ok = m.Match(KindSwipe, 3, DirNone, ModeOneShot)
	assert.False(t, ok)
	_, _, ok = m.Match(KindSwipe, 3, DirRight, ModeContinuous)
	assert.False(t, ok)
	_, _, ok = m.Match(KindPinch, 3, DirOut, ModeOneShot)
	assert.False(t, ok)
}

// Scenario: three-finger swipe right fires exactly one command at End
func TestPipeline_SwipeRightOneShot(t *testing.T) {
	m := NewMatcher([]Spec{
		oneShot(KindSwipe, 3, DirLeft, "workspace-prev"),
		oneShot(KindSwipe, 3, DirRight, "workspace-next"),
	})
	p := NewPipeline("event7", m, DefaultSettings())

	out := feedAll(p, []RawFrame{
		frame(KindSwipe, PhaseBegin, 3, 0, 0, 0),
		frame(KindSwipe, PhaseUpdate, 3, 40, 2, 10),
		frame(KindSwipe, PhaseUpdate, 3, 40, 1, 20),
		frame(KindSwipe, PhaseUpdate, 3, 40, 2, 30),
		frame(KindSwipe, PhaseEnd, 3, 0, 0, 40),
	})

	require.Len(t, out, 1)
	assert.Equal(t, DispatchSpawn, out[0].Kind)
	assert.Equal(t, "workspace-next", out[0].Command)
	assert.Equal(t, 1, out[0].Binding)
}

// Scenario: continuous move streams one injection per update without batching
func TestPipeline_ContinuousMoveStreamsUpdates(t *testing.T) {
	m := NewMatcher([]Spec{continuousInject(KindSwipe, 3, DirAny, InjectMove)})
	p := NewPipeline("event7", m, DefaultSettings())

	out := feedAll(p, []RawFrame{
		frame(KindSwipe, PhaseBegin, 3, 0, 0, 0),
		frame(KindSwipe, PhaseUpdate, 3, 5, 0, 10),
		frame(KindSwipe, PhaseUpdate, 3, 5, 0, 20),
		frame(KindSwipe, PhaseUpdate, 3, 5, 0, 30),
	})

	require.Len(t, out, 3)
	for _, d := range out {
		assert.Equal(t, DispatchInject, d.Kind)
		assert.Equal(t, MoveRelative(5, 0), d.Op)
	}
}

func TestPipeline_DragPressesMovesAndReleases(t *testing.T) {
	spec := continuousInject(KindSwipe, 3, DirAny, InjectDrag)
	spec.Effect.Scale = 1.5
	spec.Effect.ReleaseDelay = 900 * time.Millisecond
	p := NewPipeline("event7", NewMatcher([]Spec{spec}), DefaultSettings())

	out := feedAll(p, []RawFrame{
		frame(KindSwipe, PhaseBegin, 3, 0, 0, 0),
		frame(KindSwipe, PhaseUpdate, 3, 3, 1, 10),
		frame(KindSwipe, PhaseUpdate, 3, 3, 1, 20),
		frame(KindSwipe, PhaseEnd, 3, 0, 0, 30),
	})

	require.Len(t, out, 4)
	assert.Equal(t, ButtonDown(ButtonLeft), out[0].Op)
	assert.True(t, out[0].Resume, "a drag press may take over a deferred release")
	// 4.5,1.5 then 4.5+0.5,1.5+0.5 thanks to the carried remainder
	assert.Equal(t, MoveRelative(4, 1), out[1].Op)
	assert.Equal(t, MoveRelative(5, 2), out[2].Op)
	assert.Equal(t, ButtonUp(ButtonLeft), out[3].Op)
	assert.Equal(t, 900*time.Millisecond, out[3].Delay)
}

func TestPipeline_ContinuousLockNeverRematches(t *testing.T) {
	m := NewMatcher([]Spec{
		{
			Trigger: Trigger{Kind: KindSwipe, Fingers: 3, Direction: DirRight, Mode: ModeContinuous},
			Effect:  Effect{Command: "right $dx"},
		},
		{
			Trigger: Trigger{Kind: KindSwipe, Fingers: 3, Direction: DirUp, Mode: ModeContinuous},
			Effect:  Effect{Command: "up $dy"},
		},
		oneShot(KindSwipe, 3, DirUp, "oneshot-up"),
	})
	p := NewPipeline("event7", m, DefaultSettings())

	out := feedAll(p, []RawFrame{
		frame(KindSwipe, PhaseBegin, 3, 0, 0, 0),
		frame(KindSwipe, PhaseUpdate, 3, 10, 0, 10),
		// the cumulative vector swings up, crossing into the other trigger
		frame(KindSwipe, PhaseUpdate, 3, 0, -80, 20),
		frame(KindSwipe, PhaseUpdate, 3, 0, -80, 30),
		frame(KindSwipe, PhaseEnd, 3, 0, 0, 40),
	})

	require.Len(t, out, 3)
	for _, d := range out {
		assert.Equal(t, 0, d.Binding)
	}
	assert.Equal(t, "right 10.00", out[0].Command)
	assert.Equal(t, "right 0.00", out[1].Command)
	assert.Equal(t, -1, p.Locked())
}

// Scenario: pinch out past the one-shot gate matches, a small pinch does nothing
func TestPipeline_PinchOutGate(t *testing.T) {
	m := NewMatcher([]Spec{oneShot(KindPinch, 2, DirOut, "zoom-in")})
	settings := DefaultSettings()
	settings.OneShot.Pinch = 0.2

	p := NewPipeline("event7", m, settings)
	out := feedAll(p, []RawFrame{
		pinchFrame(PhaseBegin, 2, 0, 0),
		pinchFrame(PhaseUpdate, 2, 0.1, 10),
		pinchFrame(PhaseUpdate, 2, 0.1, 20),
		pinchFrame(PhaseUpdate, 2, 0.1, 30),
		pinchFrame(PhaseEnd, 2, 0, 40),
	})
	require.Len(t, out, 1)
	assert.Equal(t, "zoom-in", out[0].Command)

	p = NewPipeline("event7", m, settings)
	out = feedAll(p, []RawFrame{
		pinchFrame(PhaseBegin, 2, 0, 0),
		pinchFrame(PhaseUpdate, 2, 0.06, 10),
		pinchFrame(PhaseUpdate, 2, 0.06, 20),
		pinchFrame(PhaseEnd, 2, 0, 30),
	})
	assert.Empty(t, out)
}

func TestPipeline_TinyJitterNeverFires(t *testing.T) {
	m := NewMatcher([]Spec{
		oneShot(KindSwipe, 3, DirAny, "anything"),
		continuousInject(KindSwipe, 3, DirAny, InjectMove),
	})
	settings := DefaultSettings()
	settings.Direction.Swipe = 5
	p := NewPipeline("event7", m, settings)

	out := feedAll(p, []RawFrame{
		frame(KindSwipe, PhaseBegin, 3, 0, 0, 0),
		frame(KindSwipe, PhaseUpdate, 3, 1, 1, 10),
		frame(KindSwipe, PhaseUpdate, 3, -1, 1, 20),
		frame(KindSwipe, PhaseEnd, 3, 0, 0, 30),
	})
	assert.Empty(t, out)
}

func TestPipeline_CancelledEndSuppressesOneShot(t *testing.T) {
	p := NewPipeline("event7", NewMatcher([]Spec{oneShot(KindSwipe, 3, DirRight, "next")}), DefaultSettings())
	end := frame(KindSwipe, PhaseEnd, 3, 0, 0, 20)
	end.Cancelled = true

	out := feedAll(p, []RawFrame{
		frame(KindSwipe, PhaseBegin, 3, 0, 0, 0),
		frame(KindSwipe, PhaseUpdate, 3, 100, 0, 10),
		end,
	})
	assert.Empty(t, out)
}

func TestPipeline_ImplicitTerminalReleasesDrag(t *testing.T) {
	p := NewPipeline("event7", NewMatcher([]Spec{continuousInject(KindSwipe, 3, DirAny, InjectDrag)}), DefaultSettings())

	out := feedAll(p, []RawFrame{
		frame(KindSwipe, PhaseBegin, 3, 0, 0, 0),
		frame(KindSwipe, PhaseUpdate, 3, 10, 0, 10),
		frame(KindSwipe, PhaseBegin, 3, 0, 0, 20),
	})
	require.Len(t, out, 3)
	assert.Equal(t, ButtonUp(ButtonLeft), out[2].Op)
}

func TestPipeline_DiscardReleasesHeldButton(t *testing.T) {
	p := NewPipeline("event7", NewMatcher([]Spec{continuousInject(KindSwipe, 3, DirAny, InjectDrag)}), DefaultSettings())
	feedAll(p, []RawFrame{
		frame(KindSwipe, PhaseBegin, 3, 0, 0, 0),
		frame(KindSwipe, PhaseUpdate, 3, 10, 0, 10),
	})

	out := p.Discard()
	require.Len(t, out, 1)
	assert.Equal(t, ButtonUp(ButtonLeft), out[0].Op)
	assert.Nil(t, p.Tracker().Active())
	assert.Empty(t, p.Discard())
}

func TestPipeline_HoldOneShot(t *testing.T) {
	spec := Spec{
		Trigger: Trigger{Kind: KindHold, Fingers: 4, Direction: DirAny, Mode: ModeOneShot},
		Effect:  Effect{Inject: InjectClick, Button: ButtonMiddle},
	}
	p := NewPipeline("event7", NewMatcher([]Spec{spec}), DefaultSettings())

	out := feedAll(p, []RawFrame{
		frame(KindHold, PhaseBegin, 4, 0, 0, 0),
		frame(KindHold, PhaseEnd, 4, 0, 0, 500),
	})
	require.Len(t, out, 2)
	assert.Equal(t, ButtonDown(ButtonMiddle), out[0].Op)
	assert.Equal(t, ButtonUp(ButtonMiddle), out[1].Op)
	assert.False(t, out[0].Resume, "a click press is never a drag resume")
}

func TestPipeline_ReplayIsDeterministic(t *testing.T) {
	specs := []Spec{
		oneShot(KindSwipe, 3, DirRight, "next $dx"),
		continuousInject(KindSwipe, 4, DirAny, InjectDrag),
		oneShot(KindPinch, 2, DirIn, "zoom-out"),
	}
	recording := []RawFrame{
		frame(KindSwipe, PhaseBegin, 3, 0, 0, 0),
		frame(KindSwipe, PhaseUpdate, 3, 33.3, 1.1, 8),
		frame(KindSwipe, PhaseUpdate, 3, 41.7, -0.4, 16),
		frame(KindSwipe, PhaseEnd, 3, 0, 0, 24),
		frame(KindSwipe, PhaseBegin, 4, 0, 0, 100),
		frame(KindSwipe, PhaseUpdate, 4, 2.25, 0.75, 108),
		frame(KindSwipe, PhaseUpdate, 4, 2.25, 0.75, 116),
		frame(KindSwipe, PhaseBegin, 4, 0, 0, 130),
		frame(KindSwipe, PhaseEnd, 4, 0, 0, 140),
		pinchFrame(PhaseBegin, 2, 0, 200),
		pinchFrame(PhaseUpdate, 2, -0.3, 208),
		pinchFrame(PhaseEnd, 2, 0, 216),
	}

	render := func() []string {
		p := NewPipeline("event7", NewMatcher(specs), DefaultSettings())
		var lines []string
		for _, d := range feedAll(p, recording) {
			lines = append(lines, d.String())
		}
		return lines
	}

	first := render()
	require.NotEmpty(t, first)
	assert.Equal(t, first, render())
}

func TestExpandCommand(t *testing.T) {
	c := Classification{Kind: KindSwipe, Fingers: 3, Direction: DirUpLeft, Phase: PhaseUpdate, DX: 1.5, DY: -2}
	assert.Equal(t, "move 1.50 -2.00 3 up_left swipe", ExpandCommand("move $dx $dy $fingers $direction $kind", c))

	c.Phase = PhaseEnd
	c.TotalDX = 42
	assert.Equal(t, "total 42.00", ExpandCommand("total $dx", c))
	assert.Equal(t, "plain", ExpandCommand("plain", c))
}
