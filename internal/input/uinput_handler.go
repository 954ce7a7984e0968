package input

import (
	"fmt"
	"sync"

	"github.com/ThomasT75/uinput"
	"github.com/bnema/gesturesd/internal/gesture"
)

// UinputDevicePath is the uinput control node
const UinputDevicePath = "/dev/uinput"

// UinputPointer implements Injector with a virtual uinput mouse
type UinputPointer struct {
	mouse  uinput.Mouse
	mu     sync.Mutex
	closed bool
}

// NewUinputPointer creates the virtual mouse
func NewUinputPointer(name string) (*UinputPointer, error) {
	if name == "" {
		name = "gesturesd virtual pointer"
	}
	mouse, err := uinput.CreateMouse(UinputDevicePath, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("failed to create virtual mouse: %w", err)
	}
	return &UinputPointer{mouse: mouse}, nil
}

// Inject performs one pointer operation
func (p *UinputPointer) Inject(op gesture.PointerOp) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrHandlerClosed
	}
	if err := ValidateOp(op); err != nil {
		return err
	}

	switch op.Type {
	case gesture.OpMove:
		if op.DX == 0 && op.DY == 0 {
			return nil
		}
		return p.mouse.Move(op.DX, op.DY)
	case gesture.OpButtonDown:
		return p.press(op.Button)
	default:
		return p.release(op.Button)
	}
}

func (p *UinputPointer) press(b gesture.Button) error {
	switch b {
	case gesture.ButtonRight:
		return p.mouse.RightPress()
	case gesture.ButtonMiddle:
		return p.mouse.MiddlePress()
	default:
		return p.mouse.LeftPress()
	}
}

func (p *UinputPointer) release(b gesture.Button) error {
	switch b {
	case gesture.ButtonRight:
		return p.mouse.RightRelease()
	case gesture.ButtonMiddle:
		return p.mouse.MiddleRelease()
	default:
		return p.mouse.LeftRelease()
	}
}

// Close destroys the virtual mouse
func (p *UinputPointer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.mouse.Close()
}
