// Package gesture tracks touchpad gestures, classifies them and matches them against bindings
package gesture

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the category of a multi-touch gesture
type Kind int

const (
	KindSwipe Kind = iota + 1
	KindPinch
	KindRotate
	KindHold
)

func (k Kind) String() string {
	switch k {
	case KindSwipe:
		return "swipe"
	case KindPinch:
		return "pinch"
	case KindRotate:
		return "rotate"
	case KindHold:
		return "hold"
	default:
		return "unknown"
	}
}

// ParseKind converts a config string into a Kind
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "swipe":
		return KindSwipe, nil
	case "pinch":
		return KindPinch, nil
	case "rotate":
		return KindRotate, nil
	case "hold":
		return KindHold, nil
	default:
		return 0, fmt.Errorf("unknown gesture kind %q", s)
	}
}

// Phase is the lifecycle stage of one gesture instance
type Phase int

const (
	PhaseBegin Phase = iota + 1
	PhaseUpdate
	PhaseEnd
)

func (p Phase) String() string {
	switch p {
	case PhaseBegin:
		return "begin"
	case PhaseUpdate:
		return "update"
	case PhaseEnd:
		return "end"
	default:
		return "unknown"
	}
}

// RawFrame is a single gesture event as produced by a device source.
// DX/DY are used by swipes, Scale by pinches and Angle (degrees) by rotations.
type RawFrame struct {
	Device    string
	Kind      Kind
	Phase     Phase
	Fingers   int
	DX        float64
	DY        float64
	Scale     float64
	Angle     float64
	Time      time.Time
	Cancelled bool
}

func (f RawFrame) String() string {
	return fmt.Sprintf("%s %s fingers=%d dx=%.2f dy=%.2f scale=%.3f angle=%.2f",
		f.Kind, f.Phase, f.Fingers, f.DX, f.DY, f.Scale, f.Angle)
}
