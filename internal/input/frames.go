package input

import (
	"math"
	"time"

	"github.com/bnema/gesturesd/internal/gesture"
	evdev "github.com/gvalkov/golang-evdev"
)

// maxSlots bounds ABS_MT_SLOT values accepted from a device
const maxSlots = 16

// SynthConfig holds the thresholds used to recognize the start of a gesture
type SynthConfig struct {
	// SwipeStart is the centroid travel, in device units, that starts a swipe
	SwipeStart float64
	// PinchStart is the relative spread change that starts a pinch
	PinchStart float64
	// RotateStart is the two-finger angle change, in degrees, that starts a rotation
	RotateStart float64
	// HoldDelay is how long contacts must stay put before a hold begins
	HoldDelay time.Duration
	// Grab requests exclusive access to the device
	Grab bool
}

// DefaultSynthConfig returns thresholds that suit common touchpads
func DefaultSynthConfig() SynthConfig {
	return SynthConfig{
		SwipeStart:  30,
		PinchStart:  0.15,
		RotateStart: 12,
		HoldDelay:   250 * time.Millisecond,
	}
}

// Event is a single evdev input event with its kernel timestamp
type Event struct {
	Time  time.Time
	Type  uint16
	Code  uint16
	Value int32
}

func fromEvdev(ev evdev.InputEvent) Event {
	return Event{
		Time:  time.Unix(int64(ev.Time.Sec), int64(ev.Time.Usec)*1000),
		Type:  ev.Type,
		Code:  ev.Code,
		Value: ev.Value,
	}
}

type contact struct {
	id   int32
	x, y float64
}

// snapshot describes the contacts of one SYN_REPORT
type snapshot struct {
	n      int
	x, y   float64
	spread float64
	angle  float64
}

type synthPhase int

const (
	phaseIdle synthPhase = iota
	phasePending
	phaseActive
)

// Synthesizer turns multi-touch protocol B events into gesture frames
type Synthesizer struct {
	device string
	cfg    SynthConfig

	slots []contact
	slot  int
	tools int

	// events of the report being assembled
	batch   []Event
	dropped bool

	phase   synthPhase
	kind    gesture.Kind
	fingers int
	since   time.Time
	origin  snapshot
	last    snapshot
}

// NewSynthesizer creates a synthesizer for one device
func NewSynthesizer(device string, cfg SynthConfig) *Synthesizer {
	s := &Synthesizer{device: device, cfg: cfg}
	s.resize(2)
	return s
}

func (s *Synthesizer) resize(n int) {
	for len(s.slots) < n {
		s.slots = append(s.slots, contact{id: -1})
	}
}

// Deadline returns when a pending hold would begin if nothing moves
func (s *Synthesizer) Deadline() (time.Time, bool) {
	if s.phase != phasePending || s.cfg.HoldDelay <= 0 {
		return time.Time{}, false
	}
	return s.since.Add(s.cfg.HoldDelay), true
}

// Tick lets a pending hold begin without a new report
func (s *Synthesizer) Tick(now time.Time) []gesture.RawFrame {
	deadline, ok := s.Deadline()
	if !ok || now.Before(deadline) {
		return nil
	}
	return s.beginHold(now)
}

// Feed consumes one event and returns the frames completed by it
func (s *Synthesizer) Feed(ev Event) []gesture.RawFrame {
	if ev.Type != evdev.EV_SYN {
		if !s.dropped {
			s.batch = append(s.batch, ev)
		}
		return nil
	}

	switch ev.Code {
	case evdev.SYN_DROPPED:
		return s.drop(ev.Time)
	case evdev.SYN_REPORT:
		if s.dropped {
			s.dropped = false
			s.batch = s.batch[:0]
			return nil
		}
		for _, e := range s.batch {
			s.apply(e)
		}
		s.batch = s.batch[:0]
		return s.report(ev.Time)
	}
	return nil
}

func (s *Synthesizer) apply(ev Event) {
	switch ev.Type {
	case evdev.EV_ABS:
		switch ev.Code {
		case evdev.ABS_MT_SLOT:
			if ev.Value >= 0 && ev.Value < maxSlots {
				s.slot = int(ev.Value)
				s.resize(s.slot + 1)
			}
		case evdev.ABS_MT_TRACKING_ID:
			s.slots[s.slot].id = ev.Value
		case evdev.ABS_MT_POSITION_X:
			s.slots[s.slot].x = float64(ev.Value)
		case evdev.ABS_MT_POSITION_Y:
			s.slots[s.slot].y = float64(ev.Value)
		}
	case evdev.EV_KEY:
		n := toolFingers(ev.Code)
		if n == 0 {
			return
		}
		if ev.Value != 0 {
			s.tools = n
		} else if s.tools == n {
			s.tools = 0
		}
	}
}

func toolFingers(code uint16) int {
	switch code {
	case evdev.BTN_TOOL_FINGER:
		return 1
	case evdev.BTN_TOOL_DOUBLETAP:
		return 2
	case evdev.BTN_TOOL_TRIPLETAP:
		return 3
	case evdev.BTN_TOOL_QUADTAP:
		return 4
	case evdev.BTN_TOOL_QUINTTAP:
		return 5
	default:
		return 0
	}
}

// Fingers returns the number of fingers currently on the device
func (s *Synthesizer) Fingers() int {
	n := 0
	for _, c := range s.slots {
		if c.id >= 0 {
			n++
		}
	}
	if s.tools > n {
		return s.tools
	}
	return n
}

func (s *Synthesizer) snapshot() snapshot {
	var snap snapshot
	var first, second *contact
	for i := range s.slots {
		c := &s.slots[i]
		if c.id < 0 {
			continue
		}
		switch snap.n {
		case 0:
			first = c
		case 1:
			second = c
		}
		snap.n++
		snap.x += c.x
		snap.y += c.y
	}
	if snap.n == 0 {
		return snap
	}
	snap.x /= float64(snap.n)
	snap.y /= float64(snap.n)

	for _, c := range s.slots {
		if c.id >= 0 {
			snap.spread += math.Hypot(c.x-snap.x, c.y-snap.y)
		}
	}
	snap.spread /= float64(snap.n)

	if second != nil {
		snap.angle = math.Atan2(second.y-first.y, second.x-first.x) * 180 / math.Pi
	}
	return snap
}

func (s *Synthesizer) report(at time.Time) []gesture.RawFrame {
	fingers := s.Fingers()
	snap := s.snapshot()

	switch s.phase {
	case phaseIdle:
		if fingers >= 2 && snap.n >= 2 {
			s.pend(fingers, snap, at)
		}
		return nil
	case phasePending:
		if fingers < 2 || snap.n < 2 {
			s.phase = phaseIdle
			return nil
		}
		if fingers != s.fingers || snap.n != s.origin.n {
			// a contact landed or lifted, the centroid jumped
			s.pend(fingers, snap, at)
			return nil
		}
		return s.detect(snap, at)
	default:
		return s.track(fingers, snap, at)
	}
}

func (s *Synthesizer) pend(fingers int, snap snapshot, at time.Time) {
	s.phase = phasePending
	s.fingers = fingers
	s.origin = snap
	s.last = snap
	s.since = at
}

func (s *Synthesizer) detect(snap snapshot, at time.Time) []gesture.RawFrame {
	rot := angleDelta(s.origin.angle, snap.angle)
	var ratio float64
	if s.origin.spread > 0 {
		ratio = (snap.spread - s.origin.spread) / s.origin.spread
	}
	moved := math.Hypot(snap.x-s.origin.x, snap.y-s.origin.y)

	switch {
	case s.cfg.RotateStart > 0 && math.Abs(rot) >= s.cfg.RotateStart:
		return s.begin(gesture.KindRotate, snap, at)
	case s.cfg.PinchStart > 0 && math.Abs(ratio) >= s.cfg.PinchStart:
		return s.begin(gesture.KindPinch, snap, at)
	case moved >= s.cfg.SwipeStart:
		return s.begin(gesture.KindSwipe, snap, at)
	}

	if s.cfg.HoldDelay > 0 && at.Sub(s.since) >= s.cfg.HoldDelay {
		return s.beginHold(at)
	}
	return nil
}

// begin starts a motion gesture and reports the motion accumulated while pending
func (s *Synthesizer) begin(kind gesture.Kind, snap snapshot, at time.Time) []gesture.RawFrame {
	s.phase = phaseActive
	s.kind = kind
	s.last = s.origin
	return []gesture.RawFrame{
		s.frame(gesture.PhaseBegin, at),
		s.motion(snap, at),
	}
}

func (s *Synthesizer) beginHold(at time.Time) []gesture.RawFrame {
	s.phase = phaseActive
	s.kind = gesture.KindHold
	return []gesture.RawFrame{s.frame(gesture.PhaseBegin, at)}
}

func (s *Synthesizer) track(fingers int, snap snapshot, at time.Time) []gesture.RawFrame {
	if fingers < 2 || snap.n == 0 {
		end := s.frame(gesture.PhaseEnd, at)
		s.phase = phaseIdle
		s.kind = 0
		return []gesture.RawFrame{end}
	}

	if s.kind == gesture.KindHold {
		if math.Hypot(snap.x-s.origin.x, snap.y-s.origin.y) < s.cfg.SwipeStart {
			s.fingers = fingers
			return nil
		}
		end := s.frame(gesture.PhaseEnd, at)
		end.Cancelled = true
		// the movement that broke the hold may start a swipe right away
		s.pend(fingers, s.origin, at)
		s.origin.n = snap.n
		return append([]gesture.RawFrame{end}, s.detect(snap, at)...)
	}

	if fingers != s.fingers || snap.n != s.last.n {
		s.fingers = fingers
		s.last = snap
		if s.kind == gesture.KindPinch && snap.spread > 0 {
			s.origin.spread = snap.spread
		}
		return []gesture.RawFrame{s.frame(gesture.PhaseUpdate, at)}
	}

	f := s.motion(snap, at)
	if f.DX == 0 && f.DY == 0 && f.Scale == 0 && f.Angle == 0 {
		return nil
	}
	return []gesture.RawFrame{f}
}

// motion builds an Update carrying the change since the last reported snapshot
func (s *Synthesizer) motion(snap snapshot, at time.Time) gesture.RawFrame {
	f := s.frame(gesture.PhaseUpdate, at)
	switch s.kind {
	case gesture.KindSwipe:
		f.DX = snap.x - s.last.x
		f.DY = snap.y - s.last.y
	case gesture.KindPinch:
		if s.origin.spread > 0 {
			f.Scale = (snap.spread - s.last.spread) / s.origin.spread
		}
	case gesture.KindRotate:
		f.Angle = angleDelta(s.last.angle, snap.angle)
	}
	s.last = snap
	return f
}

func (s *Synthesizer) frame(phase gesture.Phase, at time.Time) gesture.RawFrame {
	return gesture.RawFrame{
		Device:  s.device,
		Kind:    s.kind,
		Phase:   phase,
		Fingers: s.fingers,
		Time:    at,
	}
}

// drop handles a kernel buffer overrun. The lost events may include lifts,
// so an active gesture is cancelled and the contact state starts over empty.
// Contacts still down stay invisible until they lift and land again.
func (s *Synthesizer) drop(at time.Time) []gesture.RawFrame {
	var out []gesture.RawFrame
	if s.phase == phaseActive {
		end := s.frame(gesture.PhaseEnd, at)
		end.Cancelled = true
		out = append(out, end)
	}
	s.Reset()
	s.dropped = true
	return out
}

// Reset forgets all contacts, used after the device was reopened
func (s *Synthesizer) Reset() {
	for i := range s.slots {
		s.slots[i] = contact{id: -1}
	}
	s.slot = 0
	s.tools = 0
	s.batch = s.batch[:0]
	s.dropped = false
	s.phase = phaseIdle
	s.kind = 0
	s.fingers = 0
}

// angleDelta returns the signed difference b-a in degrees, within (-180, 180]
func angleDelta(a, b float64) float64 {
	d := math.Mod(b-a, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}
