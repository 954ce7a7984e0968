package input

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/bnema/gesturesd/internal/gesture"
	"github.com/bnema/gesturesd/internal/logger"
	evdev "github.com/gvalkov/golang-evdev"
)

var (
	// ErrDeviceUnavailable is returned when a touchpad cannot be opened
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrDeviceLost is returned by NextFrame once the device is gone
	ErrDeviceLost = errors.New("device lost")
)

// Source produces the gesture frames of one device
type Source interface {
	ID() string
	NextFrame() (gesture.RawFrame, error)
	Close() error
}

type readResult struct {
	events []evdev.InputEvent
	err    error
}

// Touchpad is an opened multi-touch touchpad
type Touchpad struct {
	path string
	id   string
	name string

	dev     *evdev.InputDevice
	synth   *Synthesizer
	grabbed bool

	reads     chan readResult
	done      chan struct{}
	closeOnce sync.Once

	queue []gesture.RawFrame
}

// OpenTouchpad opens the event device at path and starts reading it
func OpenTouchpad(path string, cfg SynthConfig) (*Touchpad, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, path, err)
	}
	if !IsTouchpad(dev) {
		dev.File.Close()
		return nil, fmt.Errorf("%w: %s (%s) is not a multi-touch touchpad", ErrDeviceUnavailable, path, dev.Name)
	}

	id := filepath.Base(path)
	t := &Touchpad{
		path:  path,
		id:    id,
		name:  dev.Name,
		dev:   dev,
		synth: NewSynthesizer(id, cfg),
		reads: make(chan readResult, 16),
		done:  make(chan struct{}),
	}

	if cfg.Grab {
		if err := dev.Grab(); err != nil {
			logger.Warnf("Failed to grab %s, sharing it with the desktop: %v", path, err)
		} else {
			t.grabbed = true
			logger.Debugf("Grabbed exclusive access to %s", path)
		}
	}

	go t.readLoop()

	logger.Info("Touchpad opened", "device", id, "name", dev.Name, "path", path)
	return t, nil
}

// ID returns the event node name, e.g. "event7"
func (t *Touchpad) ID() string {
	return t.id
}

// Name returns the kernel device name
func (t *Touchpad) Name() string {
	return t.name
}

// Path returns the device node
func (t *Touchpad) Path() string {
	return t.path
}

func (t *Touchpad) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Touchpad %s reader panic: %v", t.id, r)
		}
	}()

	for {
		events, err := t.dev.Read()
		select {
		case t.reads <- readResult{events: events, err: err}:
		case <-t.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// NextFrame blocks until the next gesture frame is available
func (t *Touchpad) NextFrame() (gesture.RawFrame, error) {
	for len(t.queue) == 0 {
		var timer *time.Timer
		var timeout <-chan time.Time
		if deadline, ok := t.synth.Deadline(); ok {
			timer = time.NewTimer(time.Until(deadline))
			timeout = timer.C
		}

		select {
		case r := <-t.reads:
			if r.err != nil {
				return gesture.RawFrame{}, fmt.Errorf("%w: %s: %v", ErrDeviceLost, t.id, r.err)
			}
			for _, ev := range r.events {
				t.queue = append(t.queue, t.synth.Feed(fromEvdev(ev))...)
			}
		case now := <-timeout:
			t.queue = append(t.queue, t.synth.Tick(now)...)
		case <-t.done:
			return gesture.RawFrame{}, fmt.Errorf("%w: %s: closed", ErrDeviceLost, t.id)
		}
		if timer != nil {
			timer.Stop()
		}
	}

	f := t.queue[0]
	t.queue = t.queue[1:]
	return f, nil
}

// Close releases the grab and closes the device, unblocking NextFrame
func (t *Touchpad) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		if t.grabbed {
			t.dev.Release()
		}
		err = t.dev.File.Close()
		logger.Debugf("Touchpad %s closed", t.id)
	})
	return err
}
