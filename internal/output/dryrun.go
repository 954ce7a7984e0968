package output

import (
	"fmt"
	"sync"

	"github.com/bnema/gesturesd/internal/gesture"
	"github.com/bnema/gesturesd/internal/input"
	"github.com/bnema/gesturesd/internal/logger"
)

// DryRun logs and records actions without performing them
type DryRun struct {
	mu      sync.Mutex
	records []string
	closed  bool
}

// NewDryRun creates a dry-run backend
func NewDryRun() *DryRun {
	return &DryRun{}
}

// Name implements Backend
func (d *DryRun) Name() string {
	return KindDryRun
}

// Inject implements Backend
func (d *DryRun) Inject(op gesture.PointerOp) error {
	if err := input.ValidateOp(op); err != nil {
		return err
	}
	d.record(fmt.Sprintf("inject(%s)", op))
	return nil
}

// Spawn implements Backend
func (d *DryRun) Spawn(command string) error {
	if command == "" {
		return fmt.Errorf("%w: empty command", ErrSpawnFailed)
	}
	d.record(fmt.Sprintf("spawn(%q)", command))
	return nil
}

func (d *DryRun) record(s string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append(d.records, s)
	logger.Info("dry-run", "action", s)
}

// Records returns every action seen so far
func (d *DryRun) Records() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.records...)
}

// Close implements Backend
func (d *DryRun) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
