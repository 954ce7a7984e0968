// Package output executes gesture actions: pointer injection through a
// backend and detached command spawning
package output

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bnema/gesturesd/internal/gesture"
	"github.com/bnema/gesturesd/internal/ipc"
	"github.com/bnema/gesturesd/internal/logger"
)

var (
	// ErrBackendUnavailable is returned when the injection target cannot be reached
	ErrBackendUnavailable = errors.New("output backend unavailable")
	// ErrSpawnFailed is returned when a command could not be launched
	ErrSpawnFailed = errors.New("spawn failed")
)

// Backend performs the effects of matched gestures. It has a single caller.
type Backend interface {
	// Name identifies the backend in logs
	Name() string
	// Inject performs one synthetic pointer operation
	Inject(op gesture.PointerOp) error
	// Spawn launches a shell command and returns without waiting for it
	Spawn(command string) error
	// Close releases the backend connection
	Close() error
}

// Backend kinds accepted by New
const (
	KindNative = "native"
	KindHelper = "helper"
	KindDryRun = "dry-run"
)

// Options selects and configures a backend
type Options struct {
	Kind         string
	HelperSocket string
	Client       ipc.ClientOptions
	Shell        string
}

// New creates the configured backend. Failing to reach the injection target
// here is fatal for the caller.
func New(ctx context.Context, opts Options) (Backend, error) {
	spawner := NewSpawner(opts.Shell)

	switch strings.ToLower(strings.TrimSpace(opts.Kind)) {
	case "", KindNative:
		logger.Info("Using native X11 XTEST backend")
		return NewNative(spawner)
	case KindHelper:
		logger.Info("Using privileged helper backend", "socket", opts.HelperSocket)
		return NewHelper(ctx, opts.HelperSocket, opts.Client, spawner)
	case KindDryRun:
		logger.Info("Using dry-run backend, nothing will be injected or spawned")
		return NewDryRun(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want %s, %s or %s)", opts.Kind, KindNative, KindHelper, KindDryRun)
	}
}
