package gesture

import (
	"math"

	"github.com/bnema/gesturesd/internal/logger"
)

// binding is a continuous binding locked to one gesture instance
type binding struct {
	seq   uint64
	index int
	spec  *Spec
}

// Pipeline turns the frames of one device into backend dispatches.
// It is deterministic: the same frames through a fresh pipeline give the same dispatches.
type Pipeline struct {
	tracker  *Tracker
	matcher  *Matcher
	settings Settings

	locked *binding
	// sub-unit motion carried between continuous move dispatches
	remX, remY float64
	// button pressed by a drag binding and not yet released
	held Button
}

// NewPipeline creates the tracker/matcher pair for a device
func NewPipeline(device string, matcher *Matcher, settings Settings) *Pipeline {
	return &Pipeline{
		tracker:  NewTracker(device, settings),
		matcher:  matcher,
		settings: settings,
	}
}

// Tracker exposes the underlying state machine
func (p *Pipeline) Tracker() *Tracker {
	return p.tracker
}

// Locked returns the index of the continuous binding locked to the active gesture, or -1
func (p *Pipeline) Locked() int {
	if p.locked == nil {
		return -1
	}
	return p.locked.index
}

// Feed processes one frame. The observer, if not nil, sees every classification.
func (p *Pipeline) Feed(f RawFrame, observe func(Classification)) []Dispatch {
	var out []Dispatch
	for _, c := range p.tracker.Feed(f) {
		if observe != nil {
			observe(c)
		}
		if c.Terminal() {
			out = append(out, p.finish(c)...)
		} else {
			out = append(out, p.progress(c)...)
		}
	}
	return out
}

// Discard drops the in-flight gesture without a graceful end. A button held
// by a drag is released so the pointer is not left stuck.
func (p *Pipeline) Discard() []Dispatch {
	var out []Dispatch
	if p.held != 0 && p.locked != nil {
		out = append(out, Dispatch{
			Kind:    DispatchInject,
			Device:  p.tracker.device,
			Seq:     p.locked.seq,
			Binding: p.locked.index,
			Op:      ButtonUp(p.held),
		})
	}
	p.held = 0
	p.locked = nil
	p.tracker.Reset()
	return out
}

func (p *Pipeline) progress(c Classification) []Dispatch {
	if p.locked != nil {
		if p.locked.seq == c.Seq {
			return p.continuous(c)
		}
		// restarted gesture, the old lock ended with its terminal classification
		p.locked = nil
	}

	if !p.matcher.HasContinuous(c.Kind, c.Fingers) {
		return nil
	}
	idx, spec, ok := p.matcher.Match(c.Kind, c.Fingers, c.Direction, ModeContinuous)
	if !ok {
		return nil
	}

	logger.Debugf("gesture: %s locked to binding %d (%s)", c, idx, spec.Trigger)
	p.locked = &binding{seq: c.Seq, index: idx, spec: spec}
	p.remX, p.remY = 0, 0

	var out []Dispatch
	if spec.Effect.StartCommand != "" {
		out = append(out, p.spawn(c, idx, ExpandCommand(spec.Effect.StartCommand, c)))
	}
	if spec.Effect.Inject == InjectDrag {
		p.held = spec.Effect.Button
		d := p.inject(c, idx, ButtonDown(spec.Effect.Button))
		d.Resume = true
		out = append(out, d)
	}
	return append(out, p.continuous(c)...)
}

func (p *Pipeline) continuous(c Classification) []Dispatch {
	spec, idx := p.locked.spec, p.locked.index

	var out []Dispatch
	if spec.Effect.Command != "" {
		out = append(out, p.spawn(c, idx, ExpandCommand(spec.Effect.Command, c)))
	}
	if spec.Effect.Inject == InjectMove || spec.Effect.Inject == InjectDrag {
		if op, ok := p.scaledMove(c.DX, c.DY, spec.Effect.Scale); ok {
			out = append(out, p.inject(c, idx, op))
		}
	}
	return out
}

func (p *Pipeline) scaledMove(dx, dy, scale float64) (PointerOp, bool) {
	if scale == 0 {
		scale = 1
	}
	vx := dx*scale + p.remX
	vy := dy*scale + p.remY
	ix, iy := math.Trunc(vx), math.Trunc(vy)
	p.remX, p.remY = vx-ix, vy-iy
	if ix == 0 && iy == 0 {
		return PointerOp{}, false
	}
	return MoveRelative(int32(ix), int32(iy)), true
}

func (p *Pipeline) finish(c Classification) []Dispatch {
	if p.locked != nil && p.locked.seq == c.Seq {
		spec, idx := p.locked.spec, p.locked.index
		p.locked = nil

		var out []Dispatch
		if spec.Effect.Inject == InjectDrag {
			d := p.inject(c, idx, ButtonUp(spec.Effect.Button))
			d.Delay = spec.Effect.ReleaseDelay
			out = append(out, d)
			p.held = 0
		}
		if spec.Effect.EndCommand != "" {
			out = append(out, p.spawn(c, idx, ExpandCommand(spec.Effect.EndCommand, c)))
		}
		return out
	}

	if c.Cancelled {
		return nil
	}
	if c.Magnitude < p.settings.OneShot.For(c.Kind) {
		return nil
	}

	idx, spec, ok := p.matcher.Match(c.Kind, c.Fingers, c.Direction, ModeOneShot)
	if !ok {
		return nil
	}
	logger.Debugf("gesture: %s matched binding %d (%s)", c, idx, spec.Trigger)

	switch {
	case spec.Effect.Command != "":
		return []Dispatch{p.spawn(c, idx, ExpandCommand(spec.Effect.Command, c))}
	case spec.Effect.Inject == InjectClick:
		return []Dispatch{
			p.inject(c, idx, ButtonDown(spec.Effect.Button)),
			p.inject(c, idx, ButtonUp(spec.Effect.Button)),
		}
	case spec.Effect.Inject == InjectButtonDown:
		return []Dispatch{p.inject(c, idx, ButtonDown(spec.Effect.Button))}
	case spec.Effect.Inject == InjectButtonUp:
		return []Dispatch{p.inject(c, idx, ButtonUp(spec.Effect.Button))}
	}
	return nil
}

func (p *Pipeline) spawn(c Classification, idx int, command string) Dispatch {
	return Dispatch{
		Kind:    DispatchSpawn,
		Device:  c.Device,
		Seq:     c.Seq,
		Binding: idx,
		Command: command,
	}
}

func (p *Pipeline) inject(c Classification, idx int, op PointerOp) Dispatch {
	return Dispatch{
		Kind:    DispatchInject,
		Device:  c.Device,
		Seq:     c.Seq,
		Binding: idx,
		Op:      op,
	}
}
