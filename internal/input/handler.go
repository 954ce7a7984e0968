// Package input reads touchpads through evdev and injects pointer events through uinput
package input

import (
	"errors"
	"fmt"

	"github.com/bnema/gesturesd/internal/gesture"
)

var (
	// ErrHandlerClosed is returned when operating on a closed handler
	ErrHandlerClosed = errors.New("handler is closed")
	// ErrInvalidEvent is returned for invalid events
	ErrInvalidEvent = errors.New("invalid event")
)

// Injector performs synthetic pointer operations
type Injector interface {
	Inject(op gesture.PointerOp) error
	Close() error
}

// ValidateOp rejects operations an injector cannot perform
func ValidateOp(op gesture.PointerOp) error {
	switch op.Type {
	case gesture.OpMove:
		return nil
	case gesture.OpButtonDown, gesture.OpButtonUp:
		switch op.Button {
		case gesture.ButtonLeft, gesture.ButtonRight, gesture.ButtonMiddle:
			return nil
		}
		return fmt.Errorf("%w: unknown button %d", ErrInvalidEvent, op.Button)
	default:
		return fmt.Errorf("%w: unknown operation %d", ErrInvalidEvent, op.Type)
	}
}
