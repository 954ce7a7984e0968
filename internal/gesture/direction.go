package gesture

import (
	"fmt"
	"math"
	"strings"
)

// Direction is the classified direction of a gesture.
// Swipes use the eight compass directions, pinches In/Out and rotations
// Clockwise/CounterClockwise. Any is the trigger wildcard and the direction
// of a hold that lasted long enough.
type Direction int

const (
	DirNone Direction = iota
	DirAny
	DirUp
	DirDown
	DirLeft
	DirRight
	DirUpLeft
	DirUpRight
	DirDownLeft
	DirDownRight
	DirIn
	DirOut
	DirClockwise
	DirCounterClockwise
)

var directionNames = map[Direction]string{
	DirNone:             "none",
	DirAny:              "any",
	DirUp:               "up",
	DirDown:             "down",
	DirLeft:             "left",
	DirRight:            "right",
	DirUpLeft:           "up_left",
	DirUpRight:          "up_right",
	DirDownLeft:         "down_left",
	DirDownRight:        "down_right",
	DirIn:               "in",
	DirOut:              "out",
	DirClockwise:        "clockwise",
	DirCounterClockwise: "counter_clockwise",
}

// compass aliases accepted in config files
var directionAliases = map[string]Direction{
	"*":   DirAny,
	"n":   DirUp,
	"s":   DirDown,
	"w":   DirLeft,
	"e":   DirRight,
	"nw":  DirUpLeft,
	"ne":  DirUpRight,
	"sw":  DirDownLeft,
	"se":  DirDownRight,
	"cw":  DirClockwise,
	"ccw": DirCounterClockwise,
}

func (d Direction) String() string {
	if name, ok := directionNames[d]; ok {
		return name
	}
	return "unknown"
}

// ParseDirection converts a config string into a Direction. An empty string means Any.
func ParseDirection(s string) (Direction, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "-", "_")
	if key == "" {
		return DirAny, nil
	}
	if d, ok := directionAliases[key]; ok {
		return d, nil
	}
	for d, name := range directionNames {
		if name == key && d != DirNone {
			return d, nil
		}
	}
	return DirNone, fmt.Errorf("unknown direction %q", s)
}

// ValidFor reports whether a trigger direction makes sense for the given kind
func (d Direction) ValidFor(k Kind) bool {
	if d == DirAny {
		return true
	}
	switch k {
	case KindSwipe:
		return d >= DirUp && d <= DirDownRight
	case KindPinch:
		return d == DirIn || d == DirOut
	case KindRotate:
		return d == DirClockwise || d == DirCounterClockwise
	default:
		return false
	}
}

// tan(22.5°), the slope of the boundary between an axis sector and a diagonal sector
var octantSlope = math.Sqrt2 - 1

// SwipeDirection classifies a cumulative swipe vector. Device coordinates grow
// downward, so a positive dy is Down. Vectors shorter than gate have no direction.
//
// A vector lying exactly on a sector boundary resolves to the more horizontal
// neighbour: with four sectors |dx| == |dy| is Left/Right, with eight sectors
// the 22.5° boundary is Left/Right and the 67.5° boundary is the diagonal.
func SwipeDirection(dx, dy, gate float64, diagonals bool) Direction {
	if math.Hypot(dx, dy) < gate || (dx == 0 && dy == 0) {
		return DirNone
	}

	ax, ay := math.Abs(dx), math.Abs(dy)

	horizontal := DirRight
	if dx < 0 {
		horizontal = DirLeft
	}
	vertical := DirDown
	if dy < 0 {
		vertical = DirUp
	}

	if !diagonals {
		if ax >= ay {
			return horizontal
		}
		return vertical
	}

	switch {
	case ay <= octantSlope*ax:
		return horizontal
	case ax < octantSlope*ay:
		return vertical
	}

	switch {
	case dy < 0 && dx < 0:
		return DirUpLeft
	case dy < 0:
		return DirUpRight
	case dx < 0:
		return DirDownLeft
	default:
		return DirDownRight
	}
}

// PinchDirection classifies an accumulated scale change
func PinchDirection(scale, gate float64) Direction {
	if math.Abs(scale) < gate || scale == 0 {
		return DirNone
	}
	if scale > 0 {
		return DirOut
	}
	return DirIn
}

// RotateDirection classifies an accumulated angle change in degrees.
// Positive angles are clockwise in device coordinates.
func RotateDirection(angle, gate float64) Direction {
	if math.Abs(angle) < gate || angle == 0 {
		return DirNone
	}
	if angle > 0 {
		return DirClockwise
	}
	return DirCounterClockwise
}
