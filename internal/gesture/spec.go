package gesture

import (
	"fmt"
	"strings"
	"time"
)

// Mode distinguishes bindings that fire once at the end of a gesture from
// bindings that fire on every update
type Mode int

const (
	ModeOneShot Mode = iota + 1
	ModeContinuous
)

func (m Mode) String() string {
	switch m {
	case ModeOneShot:
		return "oneshot"
	case ModeContinuous:
		return "continuous"
	default:
		return "unknown"
	}
}

// ParseMode converts a config string into a Mode. Empty means one-shot.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "oneshot", "one_shot", "one-shot":
		return ModeOneShot, nil
	case "continuous":
		return ModeContinuous, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}

// InjectOp is a pointer effect a binding can request from the output backend
type InjectOp int

const (
	InjectNone InjectOp = iota
	// InjectMove moves the pointer by the scaled gesture delta (continuous)
	InjectMove
	// InjectDrag holds a button for the gesture lifetime and moves the pointer (continuous)
	InjectDrag
	// InjectClick presses and releases a button (one-shot)
	InjectClick
	InjectButtonDown
	InjectButtonUp
)

var injectNames = map[InjectOp]string{
	InjectMove:       "move",
	InjectDrag:       "drag",
	InjectClick:      "click",
	InjectButtonDown: "button_down",
	InjectButtonUp:   "button_up",
}

func (o InjectOp) String() string {
	if name, ok := injectNames[o]; ok {
		return name
	}
	return "none"
}

// ParseInjectOp converts a config string into an InjectOp. Empty means none.
func ParseInjectOp(s string) (InjectOp, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	if key == "" {
		return InjectNone, nil
	}
	for op, name := range injectNames {
		if name == key {
			return op, nil
		}
	}
	return InjectNone, fmt.Errorf("unknown inject operation %q", s)
}

// Continuous reports whether the operation needs a stream of updates
func (o InjectOp) Continuous() bool {
	return o == InjectMove || o == InjectDrag
}

// Button identifies a pointer button
type Button int

const (
	ButtonLeft Button = iota + 1
	ButtonRight
	ButtonMiddle
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonRight:
		return "right"
	case ButtonMiddle:
		return "middle"
	default:
		return "unknown"
	}
}

// ParseButton converts a config string into a Button. Empty means left.
func ParseButton(s string) (Button, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "left":
		return ButtonLeft, nil
	case "right":
		return ButtonRight, nil
	case "middle":
		return ButtonMiddle, nil
	default:
		return 0, fmt.Errorf("unknown button %q", s)
	}
}

// Trigger is the gesture half of a binding
type Trigger struct {
	Kind      Kind
	Fingers   int
	Direction Direction
	Mode      Mode
}

func (t Trigger) String() string {
	return fmt.Sprintf("%s/%d/%s/%s", t.Kind, t.Fingers, t.Direction, t.Mode)
}

// Effect is the action half of a binding. Exactly one of Command and Inject is set.
type Effect struct {
	Command string
	Inject  InjectOp
	Button  Button
	// Scale maps raw deltas to injected deltas for continuous effects
	Scale float64
	// StartCommand and EndCommand run around a continuous binding
	StartCommand string
	EndCommand   string
	// ReleaseDelay postpones the button release of a drag
	ReleaseDelay time.Duration
}

// Spec is one configured binding
type Spec struct {
	Name    string
	Trigger Trigger
	Effect  Effect
}

// Matches reports whether the trigger accepts the given classification key
func (t Trigger) Matches(kind Kind, fingers int, dir Direction, mode Mode) bool {
	if dir == DirNone {
		return false
	}
	if t.Kind != kind || t.Fingers != fingers || t.Mode != mode {
		return false
	}
	return t.Direction == DirAny || t.Direction == dir
}
