package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bnema/gesturesd/internal/gesture"
	"github.com/bnema/gesturesd/internal/input"
	"github.com/bnema/gesturesd/internal/ipc"
	"github.com/bnema/gesturesd/internal/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	id     string
	frames chan deviceResult
	closed chan struct{}
	once   sync.Once
}

type deviceResult struct {
	frame gesture.RawFrame
	err   error
}

func newFakeSource(id string) *fakeSource {
	return &fakeSource{id: id, frames: make(chan deviceResult, 64), closed: make(chan struct{})}
}

func (s *fakeSource) ID() string { return s.id }

func (s *fakeSource) NextFrame() (gesture.RawFrame, error) {
	select {
	case r := <-s.frames:
		return r.frame, r.err
	case <-s.closed:
		return gesture.RawFrame{}, input.ErrDeviceLost
	}
}

func (s *fakeSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSource) send(frames ...gesture.RawFrame) {
	for _, f := range frames {
		s.frames <- deviceResult{frame: f}
	}
}

func (s *fakeSource) fail(err error) {
	s.frames <- deviceResult{err: err}
}

type recorder struct {
	mu       sync.Mutex
	calls    []string
	spawnErr error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Inject(op gesture.PointerOp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, op.String())
	return nil
}

func (r *recorder) Spawn(command string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.spawnErr != nil {
		err := r.spawnErr
		r.spawnErr = nil
		return err
	}
	r.calls = append(r.calls, "spawn "+command)
	return nil
}

func (r *recorder) Close() error { return nil }

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func swipe(phase gesture.Phase, dx, dy float64, ms int) gesture.RawFrame {
	return gesture.RawFrame{
		Kind:    gesture.KindSwipe,
		Phase:   phase,
		Fingers: 3,
		DX:      dx,
		DY:      dy,
		Time:    epoch.Add(time.Duration(ms) * time.Millisecond),
	}
}

func swipeRight() []gesture.RawFrame {
	return []gesture.RawFrame{
		swipe(gesture.PhaseBegin, 0, 0, 0),
		swipe(gesture.PhaseUpdate, 30, 0, 10),
		swipe(gesture.PhaseUpdate, 30, 0, 20),
		swipe(gesture.PhaseEnd, 0, 0, 30),
	}
}

type harness struct {
	loop    *Loop
	backend *recorder
	sources map[string]*fakeSource
	events  chan Event
	cancel  context.CancelFunc
	stopped chan struct{}
}

func newHarness(t *testing.T, specs []gesture.Spec, devices ...string) *harness {
	t.Helper()
	return newHarnessWith(t, &recorder{}, specs, devices...)
}

// newHarnessWith runs the loop on any backend; h.backend is only set for a recorder
func newHarnessWith(t *testing.T, backend output.Backend, specs []gesture.Spec, devices ...string) *harness {
	t.Helper()
	rec, _ := backend.(*recorder)
	h := &harness{
		backend: rec,
		sources: make(map[string]*fakeSource),
		events:  make(chan Event, 256),
		stopped: make(chan struct{}),
	}
	for _, d := range devices {
		h.sources["/dev/input/"+d] = newFakeSource(d)
	}

	h.loop = NewLoop(specs, backend, Options{
		Settings: gesture.DefaultSettings(),
		Open: func(path string) (input.Source, error) {
			src, ok := h.sources[path]
			if !ok {
				return nil, fmt.Errorf("%w: %s", input.ErrDeviceUnavailable, path)
			}
			return src, nil
		},
		Observer: func(ev Event) {
			select {
			case h.events <- ev:
			default:
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() {
		defer close(h.stopped)
		_ = h.loop.Run(ctx)
	}()

	for _, d := range devices {
		require.NoError(t, h.loop.Attach("/dev/input/"+d))
		h.waitFor(t, func(ev Event) bool { return ev.Kind == EventAttached && ev.Device == d })
	}
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.stopped
}

func (h *harness) waitFor(t *testing.T, match func(Event) bool) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.events:
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatal("timed out waiting for loop event")
			return Event{}
		}
	}
}

func dispatched(device string) func(Event) bool {
	return func(ev Event) bool { return ev.Kind == EventDispatched && ev.Device == device }
}

func oneShotRight(command string) gesture.Spec {
	return gesture.Spec{
		Trigger: gesture.Trigger{Kind: gesture.KindSwipe, Fingers: 3, Direction: gesture.DirRight, Mode: gesture.ModeOneShot},
		Effect:  gesture.Effect{Command: command},
	}
}

func drag(delay time.Duration) gesture.Spec {
	return gesture.Spec{
		Trigger: gesture.Trigger{Kind: gesture.KindSwipe, Fingers: 3, Direction: gesture.DirAny, Mode: gesture.ModeContinuous},
		Effect: gesture.Effect{
			Inject:       gesture.InjectDrag,
			Button:       gesture.ButtonLeft,
			Scale:        1,
			ReleaseDelay: delay,
		},
	}
}

func TestLoop_OneShotDispatch(t *testing.T) {
	h := newHarness(t, []gesture.Spec{oneShotRight("workspace-next")}, "event1")

	h.sources["/dev/input/event1"].send(swipeRight()...)
	ev := h.waitFor(t, dispatched("event1"))

	assert.Equal(t, gesture.DispatchSpawn, ev.Dispatch.Kind)
	assert.Equal(t, "workspace-next", ev.Dispatch.Command)
	assert.NoError(t, ev.Err)
	assert.Equal(t, []string{"spawn workspace-next"}, h.backend.Calls())
}

// A device that disappears mid-gesture produces no dispatch while the others
// keep working. The one exception, a held drag button, is covered below.
func TestLoop_DeviceLostMidGesture(t *testing.T) {
	h := newHarness(t, []gesture.Spec{oneShotRight("workspace-next")}, "event1", "event2")
	lost := h.sources["/dev/input/event1"]
	other := h.sources["/dev/input/event2"]

	lost.send(swipe(gesture.PhaseBegin, 0, 0, 0), swipe(gesture.PhaseUpdate, 60, 0, 10))
	lost.fail(input.ErrDeviceLost)
	ev := h.waitFor(t, func(ev Event) bool { return ev.Kind == EventLost })
	assert.Equal(t, "event1", ev.Device)
	assert.ErrorIs(t, ev.Err, input.ErrDeviceLost)

	other.send(swipeRight()...)
	h.waitFor(t, dispatched("event2"))
	h.stop()

	assert.Equal(t, []string{"spawn workspace-next"}, h.backend.Calls())
	assert.False(t, h.loop.Attached("event1"))
	assert.Equal(t, uint64(1), h.loop.Stats().DevicesLost)
	assert.Equal(t, uint64(1), h.loop.Stats().Dispatches)
}

// The only dispatch a lost device produces is the release of the drag button
// it was holding, so the pointer is not left stuck.
func TestLoop_DeviceLostReleasesHeldDragOnly(t *testing.T) {
	h := newHarness(t, []gesture.Spec{drag(0)}, "event1")
	src := h.sources["/dev/input/event1"]

	src.send(swipe(gesture.PhaseBegin, 0, 0, 0), swipe(gesture.PhaseUpdate, 4, 0, 10))
	h.waitFor(t, func(ev Event) bool {
		return ev.Kind == EventDispatched && ev.Dispatch.Op.Type == gesture.OpMove
	})
	before := h.loop.Stats().Dispatches
	src.fail(input.ErrDeviceLost)
	h.waitFor(t, func(ev Event) bool { return ev.Kind == EventLost })

	assert.Equal(t, []string{"button_down(left)", "move(4,0)", "button_up(left)"}, h.backend.Calls())
	assert.Equal(t, before+1, h.loop.Stats().Dispatches, "nothing but the release")
}

func TestLoop_BackendErrorIsNotFatal(t *testing.T) {
	h := newHarness(t, []gesture.Spec{oneShotRight("workspace-next")}, "event1")
	h.backend.mu.Lock()
	h.backend.spawnErr = errors.New("no such shell")
	h.backend.mu.Unlock()
	src := h.sources["/dev/input/event1"]

	src.send(swipeRight()...)
	ev := h.waitFor(t, dispatched("event1"))
	assert.Error(t, ev.Err)

	src.send(swipeRight()...)
	ev = h.waitFor(t, dispatched("event1"))
	assert.NoError(t, ev.Err)

	assert.Equal(t, []string{"spawn workspace-next"}, h.backend.Calls())
	assert.Equal(t, uint64(1), h.loop.Stats().SpawnErrors)
	assert.Equal(t, uint64(2), h.loop.Stats().Dispatches)
}

func TestLoop_DelayedDragRelease(t *testing.T) {
	h := newHarness(t, []gesture.Spec{drag(50 * time.Millisecond)}, "event1")
	src := h.sources["/dev/input/event1"]

	src.send(swipe(gesture.PhaseBegin, 0, 0, 0), swipe(gesture.PhaseUpdate, 4, 0, 10), swipe(gesture.PhaseEnd, 0, 0, 20))
	h.waitFor(t, func(ev Event) bool { return ev.Kind == EventClassified && ev.Classification.Terminal() })
	assert.NotContains(t, h.backend.Calls(), "button_up(left)")

	h.waitFor(t, func(ev Event) bool {
		return ev.Kind == EventDispatched && ev.Dispatch.Op.Type == gesture.OpButtonUp
	})
	assert.Equal(t, []string{"button_down(left)", "move(4,0)", "button_up(left)"}, h.backend.Calls())
}

func TestLoop_NewDragCancelsPendingRelease(t *testing.T) {
	h := newHarness(t, []gesture.Spec{drag(time.Hour)}, "event1")
	src := h.sources["/dev/input/event1"]

	src.send(
		swipe(gesture.PhaseBegin, 0, 0, 0), swipe(gesture.PhaseUpdate, 4, 0, 10), swipe(gesture.PhaseEnd, 0, 0, 20),
		swipe(gesture.PhaseBegin, 0, 0, 100), swipe(gesture.PhaseUpdate, 0, 3, 110),
	)
	h.waitFor(t, func(ev Event) bool {
		return ev.Kind == EventDispatched && ev.Dispatch.Op == gesture.MoveRelative(0, 3)
	})
	assert.Equal(t, []string{"button_down(left)", "move(4,0)", "move(0,3)"}, h.backend.Calls())

	// shutdown releases the button still held
	h.stop()
	assert.Equal(t, []string{"button_down(left)", "move(4,0)", "move(0,3)", "button_up(left)"}, h.backend.Calls())
}

func TestLoop_PressDuringPendingRelease(t *testing.T) {
	click := gesture.Spec{
		Trigger: gesture.Trigger{Kind: gesture.KindSwipe, Fingers: 4, Direction: gesture.DirRight, Mode: gesture.ModeOneShot},
		Effect:  gesture.Effect{Inject: gesture.InjectClick, Button: gesture.ButtonLeft},
	}
	tests := []struct {
		name    string
		then    []gesture.RawFrame
		until   gesture.PointerOp
		binding int
		want    []string
	}{
		{
			name: "new drag keeps holding",
			then: []gesture.RawFrame{
				swipe(gesture.PhaseBegin, 0, 0, 100), swipe(gesture.PhaseUpdate, 0, 3, 110),
			},
			until: gesture.MoveRelative(0, 3),
			want:  []string{"button_down(left)", "move(4,0)", "move(0,3)"},
		},
		{
			name: "click releases then clicks",
			then: func() []gesture.RawFrame {
				var out []gesture.RawFrame
				for _, f := range swipeRight() {
					f.Fingers = 4
					f.Time = f.Time.Add(100 * time.Millisecond)
					out = append(out, f)
				}
				return out
			}(),
			until:   gesture.ButtonUp(gesture.ButtonLeft),
			binding: 1,
			want:    []string{"button_down(left)", "move(4,0)", "button_up(left)", "button_down(left)", "button_up(left)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, []gesture.Spec{drag(time.Hour), click}, "event1")
			src := h.sources["/dev/input/event1"]

			src.send(swipe(gesture.PhaseBegin, 0, 0, 0), swipe(gesture.PhaseUpdate, 4, 0, 10), swipe(gesture.PhaseEnd, 0, 0, 20))
			src.send(tt.then...)
			h.waitFor(t, func(ev Event) bool {
				return ev.Kind == EventDispatched && ev.Dispatch.Op == tt.until && ev.Dispatch.Binding == tt.binding
			})
			assert.Equal(t, tt.want, h.backend.Calls())
		})
	}
}

func TestLoop_DetachDiscardsGesture(t *testing.T) {
	h := newHarness(t, []gesture.Spec{oneShotRight("workspace-next")}, "event1")
	src := h.sources["/dev/input/event1"]

	src.send(swipe(gesture.PhaseBegin, 0, 0, 0), swipe(gesture.PhaseUpdate, 60, 0, 10))
	h.waitFor(t, func(ev Event) bool {
		return ev.Kind == EventClassified && ev.Classification.Phase == gesture.PhaseUpdate
	})
	h.loop.Detach("/dev/input/event1")
	h.waitFor(t, func(ev Event) bool { return ev.Kind == EventDetached })

	assert.Empty(t, h.backend.Calls())
	assert.False(t, h.loop.Attached("event1"))
}

func TestLoop_Attach(t *testing.T) {
	h := newHarness(t, nil, "event1")

	assert.NoError(t, h.loop.Attach("/dev/input/event1"), "attaching twice is a no-op")
	assert.True(t, h.loop.Attached("event1"))

	err := h.loop.Attach("/dev/input/event9")
	assert.ErrorIs(t, err, input.ErrDeviceUnavailable)
	assert.False(t, h.loop.Attached("event9"))
}

func TestLoop_ReattachRightAfterRemoval(t *testing.T) {
	tests := []struct {
		name   string
		remove func(h *harness, src *fakeSource)
	}{
		{
			name: "detached",
			remove: func(h *harness, src *fakeSource) {
				h.loop.Detach("/dev/input/event1")
			},
		},
		{
			name: "lost",
			remove: func(h *harness, src *fakeSource) {
				src.fail(input.ErrDeviceLost)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, []gesture.Spec{oneShotRight("workspace-next")}, "event1")
			old := h.sources["/dev/input/event1"]

			tt.remove(h, old)
			// the id is released before the loop has torn the old source down
			require.Eventually(t, func() bool { return !h.loop.Attached("event1") }, time.Second, time.Millisecond)

			replug := newFakeSource("event1")
			h.sources["/dev/input/event1"] = replug
			require.NoError(t, h.loop.Attach("/dev/input/event1"))
			assert.True(t, h.loop.Attached("event1"))

			replug.send(swipeRight()...)
			h.waitFor(t, dispatched("event1"))
			assert.True(t, h.loop.Attached("event1"), "tearing down the old source keeps the new one")
			assert.Equal(t, []string{"spawn workspace-next"}, h.backend.Calls())
		})
	}
}

func TestLoop_PerDeviceOrdering(t *testing.T) {
	move := gesture.Spec{
		Trigger: gesture.Trigger{Kind: gesture.KindSwipe, Fingers: 3, Direction: gesture.DirAny, Mode: gesture.ModeContinuous},
		Effect:  gesture.Effect{Inject: gesture.InjectMove, Scale: 1},
	}
	h := newHarness(t, []gesture.Spec{move}, "event1")
	src := h.sources["/dev/input/event1"]

	frames := []gesture.RawFrame{swipe(gesture.PhaseBegin, 0, 0, 0)}
	for i := 1; i <= 20; i++ {
		// every delta clears the direction gate, so each one is forwarded
		frames = append(frames, swipe(gesture.PhaseUpdate, float64(i+2), 0, i*10))
	}
	src.send(frames...)
	h.waitFor(t, func(ev Event) bool {
		return ev.Kind == EventDispatched && ev.Dispatch.Op == gesture.MoveRelative(22, 0)
	})

	calls := h.backend.Calls()
	require.Len(t, calls, 20)
	for i, c := range calls {
		assert.Equal(t, fmt.Sprintf("move(%d,0)", i+3), c)
	}
}

func TestLoop_RunTwice(t *testing.T) {
	h := newHarness(t, nil)
	require.Eventually(t, h.loop.running.Load, time.Second, time.Millisecond)
	assert.Error(t, h.loop.Run(context.Background()))
}

type discardHandler struct{}

func (discardHandler) Inject(gesture.PointerOp) error { return nil }

// A lost helper must not stall the loop: injections for one device fail fast
// while another device's command still goes out promptly.
func TestLoop_HelperOutageDoesNotStallOtherDevices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "helper.sock")
	server := ipc.NewSocketServer(path, discardHandler{}, ipc.ServerOptions{Mode: 0600})
	require.NoError(t, server.Start())
	t.Cleanup(server.Stop)

	opts := ipc.ClientOptions{Timeout: time.Second, Retries: 3, RetryDelay: 200 * time.Millisecond, Cooldown: 5 * time.Second}
	backend, err := output.NewHelper(context.Background(), path, opts, output.NewSpawner(""))
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	move := gesture.Spec{
		Trigger: gesture.Trigger{Kind: gesture.KindSwipe, Fingers: 3, Direction: gesture.DirAny, Mode: gesture.ModeContinuous},
		Effect:  gesture.Effect{Inject: gesture.InjectMove, Scale: 1},
	}
	command := gesture.Spec{
		Trigger: gesture.Trigger{Kind: gesture.KindSwipe, Fingers: 4, Direction: gesture.DirRight, Mode: gesture.ModeOneShot},
		Effect:  gesture.Effect{Command: "true"},
	}
	h := newHarnessWith(t, backend, []gesture.Spec{move, command}, "event1", "event2")

	server.Stop()

	start := time.Now()
	frames := []gesture.RawFrame{swipe(gesture.PhaseBegin, 0, 0, 0)}
	for i := 1; i <= 10; i++ {
		frames = append(frames, swipe(gesture.PhaseUpdate, 5, 0, i*10))
	}
	h.sources["/dev/input/event1"].send(frames...)

	var four []gesture.RawFrame
	for _, f := range swipeRight() {
		f.Fingers = 4
		four = append(four, f)
	}
	h.sources["/dev/input/event2"].send(four...)

	ev := h.waitFor(t, func(ev Event) bool {
		return ev.Kind == EventDispatched && ev.Device == "event2"
	})
	assert.Equal(t, gesture.DispatchSpawn, ev.Dispatch.Kind)
	assert.NoError(t, ev.Err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	require.Eventually(t, func() bool { return h.loop.Stats().BackendErrors > 0 }, time.Second, time.Millisecond)
}
