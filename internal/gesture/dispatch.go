package gesture

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OpType is a synthetic pointer operation
type OpType int

const (
	OpMove OpType = iota + 1
	OpButtonDown
	OpButtonUp
)

func (o OpType) String() string {
	switch o {
	case OpMove:
		return "move"
	case OpButtonDown:
		return "button_down"
	case OpButtonUp:
		return "button_up"
	default:
		return "unknown"
	}
}

// PointerOp is what an output backend injects
type PointerOp struct {
	Type   OpType
	DX, DY int32
	Button Button
}

// MoveRelative builds a relative motion operation
func MoveRelative(dx, dy int32) PointerOp {
	return PointerOp{Type: OpMove, DX: dx, DY: dy}
}

// ButtonDown builds a button press operation
func ButtonDown(b Button) PointerOp {
	return PointerOp{Type: OpButtonDown, Button: b}
}

// ButtonUp builds a button release operation
func ButtonUp(b Button) PointerOp {
	return PointerOp{Type: OpButtonUp, Button: b}
}

func (o PointerOp) String() string {
	if o.Type == OpMove {
		return fmt.Sprintf("move(%d,%d)", o.DX, o.DY)
	}
	return fmt.Sprintf("%s(%s)", o.Type, o.Button)
}

// DispatchKind selects the backend entry point
type DispatchKind int

const (
	DispatchSpawn DispatchKind = iota + 1
	DispatchInject
)

// Dispatch is one backend call produced by a pipeline
type Dispatch struct {
	Kind    DispatchKind
	Device  string
	Seq     uint64
	Binding int
	Command string
	Op      PointerOp
	// Delay defers the call; only used for drag releases
	Delay time.Duration
	// Resume marks the press of a drag lock, which takes over a deferred
	// release of the same button instead of pressing again
	Resume bool
}

func (d Dispatch) String() string {
	var target string
	if d.Kind == DispatchSpawn {
		target = fmt.Sprintf("spawn(%q)", d.Command)
	} else {
		target = "inject(" + d.Op.String() + ")"
	}
	if d.Delay > 0 {
		target += " after " + d.Delay.String()
	}
	return fmt.Sprintf("%s#%d binding=%d %s", d.Device, d.Seq, d.Binding, target)
}

// ExpandCommand substitutes gesture values into a command template.
// Progress classifications expose instantaneous deltas, terminal ones the totals.
func ExpandCommand(template string, c Classification) string {
	if !strings.Contains(template, "$") {
		return template
	}
	dx, dy, scale, angle := c.DX, c.DY, c.Scale, c.Angle
	if c.Terminal() {
		dx, dy, scale, angle = c.TotalDX, c.TotalDY, c.TotalScale, c.TotalAngle
	}
	r := strings.NewReplacer(
		"$dx", formatFloat(dx),
		"$dy", formatFloat(dy),
		"$scale", formatFloat(scale),
		"$angle", formatFloat(angle),
		"$fingers", strconv.Itoa(c.Fingers),
		"$direction", c.Direction.String(),
		"$kind", c.Kind.String(),
	)
	return r.Replace(template)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
