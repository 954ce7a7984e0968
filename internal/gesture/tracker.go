package gesture

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/gesturesd/internal/logger"
)

// FingerPolicy decides what happens when the finger count changes mid-gesture
type FingerPolicy int

const (
	// FingerPolicyIgnore keeps classifying with the Begin-time finger count
	FingerPolicyIgnore FingerPolicy = iota
	// FingerPolicyRestart terminates the gesture and starts a new one with the new count
	FingerPolicyRestart
)

func (p FingerPolicy) String() string {
	if p == FingerPolicyRestart {
		return "restart"
	}
	return "ignore"
}

// ParseFingerPolicy converts a config string into a FingerPolicy
func ParseFingerPolicy(s string) (FingerPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ignore":
		return FingerPolicyIgnore, nil
	case "restart":
		return FingerPolicyRestart, nil
	default:
		return FingerPolicyIgnore, fmt.Errorf("unknown finger policy %q", s)
	}
}

// Gates holds one threshold per measurable gesture kind
type Gates struct {
	Swipe  float64 // distance in device units
	Pinch  float64 // relative scale change
	Rotate float64 // degrees
}

// For returns the threshold for a kind. Holds are gated by duration instead.
func (g Gates) For(k Kind) float64 {
	switch k {
	case KindSwipe:
		return g.Swipe
	case KindPinch:
		return g.Pinch
	case KindRotate:
		return g.Rotate
	default:
		return 0
	}
}

// Settings configures classification
type Settings struct {
	// Direction is the minimum cumulative magnitude for a direction to exist
	Direction Gates
	// OneShot is the additional minimum magnitude for one-shot bindings
	OneShot Gates
	// HoldDuration is how long a hold must last to be classified
	HoldDuration time.Duration
	// Diagonals enables eight-way swipe classification
	Diagonals    bool
	FingerPolicy FingerPolicy
}

// DefaultSettings returns the thresholds used when nothing is configured
func DefaultSettings() Settings {
	return Settings{
		Direction:    Gates{Swipe: 2, Pinch: 0.05, Rotate: 5},
		OneShot:      Gates{Swipe: 50, Pinch: 0.15, Rotate: 20},
		HoldDuration: 300 * time.Millisecond,
		Diagonals:    true,
		FingerPolicy: FingerPolicyIgnore,
	}
}

// State is the per-device record of the active gesture
type State struct {
	Seq        uint64
	Kind       Kind
	Fingers    int
	DX, DY     float64
	Scale      float64
	Angle      float64
	Start      time.Time
	LastUpdate time.Time
	Direction  Direction
	Updates    int
}

// Magnitude returns the size of the accumulated motion for the gesture kind
func (s *State) Magnitude() float64 {
	switch s.Kind {
	case KindSwipe:
		return math.Hypot(s.DX, s.DY)
	case KindPinch:
		return math.Abs(s.Scale)
	case KindRotate:
		return math.Abs(s.Angle)
	default:
		return 0
	}
}

// Duration returns how long the gesture has been active
func (s *State) Duration() time.Duration {
	return s.LastUpdate.Sub(s.Start)
}

// Classification is emitted by the tracker for every Update (progress) and
// once at the end of each gesture instance (terminal)
type Classification struct {
	Device    string
	Seq       uint64
	Kind      Kind
	Fingers   int
	Phase     Phase
	Direction Direction
	// instantaneous deltas of the frame that produced this classification
	DX, DY, Scale, Angle float64
	// accumulated motion since Begin
	TotalDX, TotalDY, TotalScale, TotalAngle float64
	Magnitude                                float64
	Duration                                 time.Duration
	// Implicit is set on terminal classifications that were not caused by an End frame
	Implicit  bool
	Cancelled bool
}

// Terminal reports whether this classification ends its gesture instance
func (c Classification) Terminal() bool {
	return c.Phase == PhaseEnd
}

func (c Classification) String() string {
	s := fmt.Sprintf("#%d %s %d %s %s |v|=%.2f", c.Seq, c.Kind, c.Fingers, c.Direction, c.Phase, c.Magnitude)
	if c.Implicit {
		s += " implicit"
	}
	if c.Cancelled {
		s += " cancelled"
	}
	return s
}

// Stats counts tracker activity for gesture accounting
type Stats struct {
	Begun       uint64
	Completed   uint64
	Implicit    uint64
	Discarded   uint64
	Dropped     uint64
	FingerDrift uint64
}

// Tracker owns the gesture state machine of a single device
type Tracker struct {
	device   string
	settings Settings
	state    *State
	seq      uint64
	stats    Stats
}

// NewTracker creates a tracker for one device
func NewTracker(device string, settings Settings) *Tracker {
	return &Tracker{
		device:   device,
		settings: settings,
	}
}

// Active returns the live gesture state, or nil when idle
func (t *Tracker) Active() *State {
	return t.state
}

// Stats returns a copy of the accounting counters
func (t *Tracker) Stats() Stats {
	return t.stats
}

// Reset discards the active gesture without emitting anything
func (t *Tracker) Reset() {
	if t.state != nil {
		t.stats.Discarded++
		t.state = nil
	}
}

// Feed applies one frame and returns the classifications it produced, in order
func (t *Tracker) Feed(f RawFrame) []Classification {
	switch f.Phase {
	case PhaseBegin:
		return t.begin(f)
	case PhaseUpdate:
		return t.update(f)
	case PhaseEnd:
		return t.end(f)
	default:
		t.stats.Dropped++
		return nil
	}
}

func (t *Tracker) begin(f RawFrame) []Classification {
	var out []Classification
	if t.state != nil {
		logger.Debugf("gesture: %s begin while %s active, terminating stale gesture", f.Kind, t.state.Kind)
		out = append(out, t.terminate(f.Time, true, false))
	}
	t.start(f)
	return out
}

func (t *Tracker) start(f RawFrame) {
	t.seq++
	t.stats.Begun++
	t.state = &State{
		Seq:        t.seq,
		Kind:       f.Kind,
		Fingers:    f.Fingers,
		Start:      f.Time,
		LastUpdate: f.Time,
	}
}

func (t *Tracker) update(f RawFrame) []Classification {
	if t.state == nil {
		t.stats.Dropped++
		return nil
	}

	var out []Classification
	if f.Kind != t.state.Kind {
		logger.Debugf("gesture: %s update during %s gesture, terminating", f.Kind, t.state.Kind)
		t.stats.Dropped++
		return append(out, t.terminate(f.Time, true, false))
	}

	if f.Fingers != t.state.Fingers && f.Fingers > 0 {
		t.stats.FingerDrift++
		if t.settings.FingerPolicy == FingerPolicyRestart {
			out = append(out, t.terminate(f.Time, true, false))
			t.start(f)
		}
	}

	s := t.state
	s.DX += f.DX
	s.DY += f.DY
	s.Scale += f.Scale
	s.Angle += f.Angle
	s.LastUpdate = f.Time
	s.Updates++
	s.Direction = t.classify(s)

	c := t.snapshot(s, PhaseUpdate)
	c.DX, c.DY, c.Scale, c.Angle = f.DX, f.DY, f.Scale, f.Angle
	return append(out, c)
}

func (t *Tracker) end(f RawFrame) []Classification {
	if t.state == nil {
		t.stats.Dropped++
		return nil
	}
	return []Classification{t.terminate(f.Time, false, f.Cancelled)}
}

// terminate finalizes the active state into a terminal classification and destroys it
func (t *Tracker) terminate(at time.Time, implicit, cancelled bool) Classification {
	s := t.state
	if !at.IsZero() && at.After(s.LastUpdate) {
		s.LastUpdate = at
	}
	s.Direction = t.classify(s)

	c := t.snapshot(s, PhaseEnd)
	c.Implicit = implicit
	c.Cancelled = cancelled

	if implicit {
		t.stats.Implicit++
	} else {
		t.stats.Completed++
	}
	t.state = nil
	return c
}

func (t *Tracker) classify(s *State) Direction {
	switch s.Kind {
	case KindSwipe:
		return SwipeDirection(s.DX, s.DY, t.settings.Direction.Swipe, t.settings.Diagonals)
	case KindPinch:
		return PinchDirection(s.Scale, t.settings.Direction.Pinch)
	case KindRotate:
		return RotateDirection(s.Angle, t.settings.Direction.Rotate)
	case KindHold:
		if s.Duration() >= t.settings.HoldDuration {
			return DirAny
		}
		return DirNone
	default:
		return DirNone
	}
}

func (t *Tracker) snapshot(s *State, phase Phase) Classification {
	return Classification{
		Device:     t.device,
		Seq:        s.Seq,
		Kind:       s.Kind,
		Fingers:    s.Fingers,
		Phase:      phase,
		Direction:  s.Direction,
		TotalDX:    s.DX,
		TotalDY:    s.DY,
		TotalScale: s.Scale,
		TotalAngle: s.Angle,
		Magnitude:  s.Magnitude(),
		Duration:   s.Duration(),
	}
}
