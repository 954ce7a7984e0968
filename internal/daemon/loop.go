// Package daemon multiplexes touchpads into the gesture pipelines and runs
// their actions on the output backend from a single goroutine
package daemon

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bnema/gesturesd/internal/gesture"
	"github.com/bnema/gesturesd/internal/input"
	"github.com/bnema/gesturesd/internal/logger"
	"github.com/bnema/gesturesd/internal/output"
)

// Opener opens the frame source of a device node
type Opener func(path string) (input.Source, error)

// TouchpadOpener opens real evdev touchpads
func TouchpadOpener(cfg input.SynthConfig) Opener {
	return func(path string) (input.Source, error) {
		return input.OpenTouchpad(path, cfg)
	}
}

// Options configures a Loop
type Options struct {
	Settings gesture.Settings
	Open     Opener
	// Observer, if set, is called on the loop goroutine and must not block
	Observer Observer
}

// Stats counts loop activity
type Stats struct {
	Frames        uint64
	Dispatches    uint64
	BackendErrors uint64
	SpawnErrors   uint64
	DevicesLost   uint64
}

type entry struct {
	id       string
	path     string
	source   input.Source
	pipeline *gesture.Pipeline
}

type deviceFrame struct {
	entry *entry
	frame gesture.RawFrame
	err   error
}

type controlMsg struct {
	attach *entry
	detach string
}

// release is a deferred drag button release
type release struct {
	device   string
	gen      uint64
	dispatch gesture.Dispatch
}

type pendingRelease struct {
	gen      uint64
	timer    *time.Timer
	dispatch gesture.Dispatch
}

// Loop is the single control goroutine of the daemon. Each device has a
// reader goroutine feeding one shared frame channel, so per-device order is
// preserved and devices are served in arrival order.
type Loop struct {
	matcher *gesture.Matcher
	backend output.Backend
	opts    Options

	frames   chan deviceFrame
	control  chan controlMsg
	releases chan release
	done     chan struct{}
	running  atomic.Bool

	// ids is shared with Attach callers and reader goroutines; devices is
	// owned by the loop. An id is released as soon as its entry is lost or
	// detached, before the loop has torn it down.
	mu      sync.Mutex
	ids     map[string]*entry
	devices map[string]*entry

	pending map[string]*pendingRelease
	gen     uint64

	frameCount    atomic.Uint64
	dispatchCount atomic.Uint64
	backendErrors atomic.Uint64
	spawnErrors   atomic.Uint64
	devicesLost   atomic.Uint64
}

// NewLoop creates a loop dispatching matches of specs to backend
func NewLoop(specs []gesture.Spec, backend output.Backend, opts Options) *Loop {
	if opts.Open == nil {
		opts.Open = TouchpadOpener(input.DefaultSynthConfig())
	}
	return &Loop{
		matcher:  gesture.NewMatcher(specs),
		backend:  backend,
		opts:     opts,
		frames:   make(chan deviceFrame, 256),
		control:  make(chan controlMsg, 32),
		releases: make(chan release, 8),
		done:     make(chan struct{}),
		ids:      make(map[string]*entry),
		devices:  make(map[string]*entry),
		pending:  make(map[string]*pendingRelease),
	}
}

// Stats returns a snapshot of the counters
func (l *Loop) Stats() Stats {
	return Stats{
		Frames:        l.frameCount.Load(),
		Dispatches:    l.dispatchCount.Load(),
		BackendErrors: l.backendErrors.Load(),
		SpawnErrors:   l.spawnErrors.Load(),
		DevicesLost:   l.devicesLost.Load(),
	}
}

// Attach opens the device at path and hands it to the loop. It may be called
// before Run. Attaching an already attached device is a no-op.
func (l *Loop) Attach(path string) error {
	id := filepath.Base(path)
	e := &entry{id: id, path: path}

	l.mu.Lock()
	if l.ids[id] != nil {
		l.mu.Unlock()
		return nil
	}
	l.ids[id] = e
	l.mu.Unlock()

	src, err := l.opts.Open(path)
	if err != nil {
		l.forget(e)
		if !errors.Is(err, input.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", input.ErrDeviceUnavailable, err)
		}
		return err
	}

	e.source = src
	e.pipeline = gesture.NewPipeline(id, l.matcher, l.opts.Settings)
	select {
	case l.control <- controlMsg{attach: e}:
		return nil
	case <-l.done:
		src.Close()
		l.forget(e)
		return fmt.Errorf("%w: %s: loop stopped", input.ErrDeviceUnavailable, path)
	}
}

// Detach removes a device, discarding its in-flight gesture
func (l *Loop) Detach(id string) {
	id = filepath.Base(id)
	l.mu.Lock()
	delete(l.ids, id)
	l.mu.Unlock()

	select {
	case l.control <- controlMsg{detach: id}:
	case <-l.done:
	}
}

// Attached reports whether a device id is attached or being attached
func (l *Loop) Attached(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ids[filepath.Base(id)] != nil
}

// forget releases the id of e unless a newer attach already took it over
func (l *Loop) forget(e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ids[e.id] == e {
		delete(l.ids, e.id)
	}
}

// Run processes frames until ctx is cancelled, then releases every device
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("loop already running")
	}
	defer close(l.done)
	defer l.shutdown()

	logger.Debugf("Dispatch loop started with %d bindings", len(l.matcher.Specs()))
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-l.control:
			l.handleControl(msg)
		case df := <-l.frames:
			l.handleFrame(df)
		case r := <-l.releases:
			l.handleRelease(r)
		}
	}
}

func (l *Loop) handleControl(msg controlMsg) {
	if msg.attach != nil {
		e := msg.attach
		if old, ok := l.devices[e.id]; ok {
			l.teardown(old)
		}
		l.devices[e.id] = e
		go l.read(e)
		logger.Info("Device attached", "device", e.id, "path", e.path)
		l.notify(Event{Kind: EventAttached, Device: e.id})
		return
	}

	if e, ok := l.devices[msg.detach]; ok {
		l.teardown(e)
		logger.Info("Device detached", "device", e.id)
		l.notify(Event{Kind: EventDetached, Device: e.id})
	}
}

// read is the per-device worker
func (l *Loop) read(e *entry) {
	for {
		f, err := e.source.NextFrame()
		if err != nil {
			// a replug may attach the same id while this loss is queued
			l.forget(e)
		}
		select {
		case l.frames <- deviceFrame{entry: e, frame: f, err: err}:
		case <-l.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (l *Loop) handleFrame(df deviceFrame) {
	if l.devices[df.entry.id] != df.entry {
		// frame from a source that was already torn down or replaced
		return
	}

	if df.err != nil {
		l.devicesLost.Add(1)
		logger.Warn("Device lost, discarding its gesture", "device", df.entry.id, "err", df.err)
		l.teardown(df.entry)
		l.notify(Event{Kind: EventLost, Device: df.entry.id, Err: df.err})
		return
	}

	l.frameCount.Add(1)
	var observe func(gesture.Classification)
	if l.opts.Observer != nil {
		observe = func(c gesture.Classification) {
			l.notify(Event{Kind: EventClassified, Device: c.Device, Classification: c})
		}
	}
	for _, d := range df.entry.pipeline.Feed(df.frame, observe) {
		l.execute(d)
	}
}

// teardown discards the device state without a graceful End and closes it.
// A drag button still held is released so the pointer is not left stuck.
func (l *Loop) teardown(e *entry) {
	if p, ok := l.pending[e.id]; ok {
		p.timer.Stop()
		delete(l.pending, e.id)
		l.perform(p.dispatch)
	}
	for _, d := range e.pipeline.Discard() {
		l.perform(d)
	}
	if err := e.source.Close(); err != nil {
		logger.Debugf("Closing %s: %v", e.id, err)
	}
	delete(l.devices, e.id)
	l.forget(e)
}

func (l *Loop) execute(d gesture.Dispatch) {
	if d.Kind == gesture.DispatchInject {
		if p, ok := l.pending[d.Device]; ok && d.Op.Type == gesture.OpButtonDown && p.dispatch.Op.Button == d.Op.Button {
			p.timer.Stop()
			delete(l.pending, d.Device)
			if d.Resume {
				// a new drag began before the deferred release: keep holding
				logger.Debugf("%s: drag resumed, release cancelled", d.Device)
				return
			}
			// any other press of the held button releases it first
			l.perform(p.dispatch)
		}
		if d.Delay > 0 && d.Op.Type == gesture.OpButtonUp {
			l.deferRelease(d)
			return
		}
	}
	l.perform(d)
}

func (l *Loop) deferRelease(d gesture.Dispatch) {
	if p, ok := l.pending[d.Device]; ok {
		p.timer.Stop()
		l.perform(p.dispatch)
	}

	l.gen++
	r := release{device: d.Device, gen: l.gen, dispatch: d}
	timer := time.AfterFunc(d.Delay, func() {
		select {
		case l.releases <- r:
		case <-l.done:
		}
	})
	l.pending[d.Device] = &pendingRelease{gen: r.gen, timer: timer, dispatch: d}
}

func (l *Loop) handleRelease(r release) {
	p, ok := l.pending[r.device]
	if !ok || p.gen != r.gen {
		return
	}
	delete(l.pending, r.device)
	l.perform(r.dispatch)
}

// perform calls the backend. Errors are counted and logged, never fatal.
func (l *Loop) perform(d gesture.Dispatch) {
	l.dispatchCount.Add(1)

	var err error
	switch d.Kind {
	case gesture.DispatchSpawn:
		if err = l.backend.Spawn(d.Command); err != nil {
			l.spawnErrors.Add(1)
			logger.Error("Command failed to launch", "device", d.Device, "binding", d.Binding, "err", err)
		}
	case gesture.DispatchInject:
		if err = l.backend.Inject(d.Op); err != nil {
			l.backendErrors.Add(1)
			logger.Error("Injection dropped", "device", d.Device, "op", d.Op.String(), "err", err)
		}
	}
	logger.Debugf("dispatch %s", d)
	l.notify(Event{Kind: EventDispatched, Device: d.Device, Dispatch: d, Err: err})
}

func (l *Loop) shutdown() {
	for id, p := range l.pending {
		p.timer.Stop()
		delete(l.pending, id)
		l.perform(p.dispatch)
	}
	for _, e := range l.devices {
		l.teardown(e)
	}
	// attaches queued after the last select
	for drained := false; !drained; {
		select {
		case msg := <-l.control:
			if msg.attach != nil {
				msg.attach.source.Close()
				l.forget(msg.attach)
			}
		default:
			drained = true
		}
	}
	logger.Debug("Dispatch loop stopped", "frames", l.frameCount.Load(), "dispatches", l.dispatchCount.Load())
}

func (l *Loop) notify(ev Event) {
	if l.opts.Observer != nil {
		l.opts.Observer(ev)
	}
}
