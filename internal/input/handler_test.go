package input

import (
	"errors"
	"testing"

	"github.com/bnema/gesturesd/internal/gesture"
)

func TestValidateOp(t *testing.T) {
	tests := []struct {
		name    string
		op      gesture.PointerOp
		wantErr bool
	}{
		{
			name: "move event",
			op:   gesture.MoveRelative(10, -4),
		},
		{
			name: "zero move event",
			op:   gesture.MoveRelative(0, 0),
		},
		{
			name: "left press event",
			op:   gesture.ButtonDown(gesture.ButtonLeft),
		},
		{
			name: "middle release event",
			op:   gesture.ButtonUp(gesture.ButtonMiddle),
		},
		{
			name:    "press without button",
			op:      gesture.PointerOp{Type: gesture.OpButtonDown},
			wantErr: true,
		},
		{
			name:    "unknown operation",
			op:      gesture.PointerOp{Type: 42},
			wantErr: true,
		},
		{
			name:    "zero value",
			op:      gesture.PointerOp{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOp(tt.op)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOp() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("Expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}
