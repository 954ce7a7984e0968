package output

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/gesturesd/internal/gesture"
	"github.com/bnema/gesturesd/internal/input"
	"github.com/bnema/gesturesd/internal/ipc"
)

// Helper forwards pointer operations to the privileged helper over its socket
type Helper struct {
	*Spawner

	ctx    context.Context
	client *ipc.Client
}

// NewHelper connects to the helper. The first connection must succeed; after
// that a lost helper is reconnected in the background and Inject drops
// operations until it is back.
func NewHelper(ctx context.Context, socketPath string, opts ipc.ClientOptions, spawner *Spawner) (*Helper, error) {
	client := ipc.NewClient(socketPath, opts)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return &Helper{Spawner: spawner, ctx: ctx, client: client}, nil
}

// Name implements Backend
func (h *Helper) Name() string {
	return KindHelper
}

// Inject implements Backend
func (h *Helper) Inject(op gesture.PointerOp) error {
	if err := input.ValidateOp(op); err != nil {
		return err
	}
	if err := h.client.Send(h.ctx, op); err != nil {
		if errors.Is(err, ipc.ErrHelperUnavailable) {
			return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		return err
	}
	return nil
}

// Close implements Backend
func (h *Helper) Close() error {
	return h.client.Close()
}
