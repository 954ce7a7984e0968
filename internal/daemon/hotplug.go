package daemon

import (
	"context"
	"path/filepath"

	"github.com/bnema/gesturesd/internal/input"
	"github.com/bnema/gesturesd/internal/logger"
)

// DeviceFilter restricts which device nodes are attached. Configured paths may
// be by-id or by-path links; they are resolved on every check because the
// event node behind them changes across replugs.
type DeviceFilter struct {
	configured []string
	resolve    func(string) (string, error)
}

// NewDeviceFilter creates a filter. No paths means every touchpad.
func NewDeviceFilter(paths []string) *DeviceFilter {
	return &DeviceFilter{configured: paths, resolve: input.ResolveEventPath}
}

// Allows reports whether the event node at path should be attached
func (f *DeviceFilter) Allows(path string) bool {
	if f == nil || len(f.configured) == 0 {
		return true
	}
	for _, c := range f.configured {
		if filepath.Clean(c) == filepath.Clean(path) {
			return true
		}
		if resolved, err := f.resolve(c); err == nil && resolved == filepath.Clean(path) {
			return true
		}
	}
	return false
}

// AttachAll attaches every allowed path and returns how many were attached.
// Nodes that are not touchpads or cannot be opened are skipped.
func (l *Loop) AttachAll(paths []string, filter *DeviceFilter) int {
	n := 0
	for _, path := range paths {
		if !filter.Allows(path) {
			continue
		}
		if err := l.Attach(path); err != nil {
			logger.Warn("Skipping device", "path", path, "err", err)
			continue
		}
		n++
	}
	return n
}

// HandleChange follows a device monitor: added touchpads are attached and
// removed nodes are detached
func (l *Loop) HandleChange(change input.DeviceChange, filter *DeviceFilter) {
	switch change.Type {
	case input.DeviceAdded:
		if !filter.Allows(change.Path) {
			logger.Debugf("Ignoring %s, not in daemon.devices", change.Path)
			return
		}
		if err := l.Attach(change.Path); err != nil {
			logger.Debug("Ignoring new device", "path", change.Path, "err", err)
		}
	case input.DeviceRemoved:
		if l.Attached(change.Device) {
			l.Detach(change.Device)
		}
	}
}

// Watcher reports device hot-plug changes, like input.DeviceMonitor
type Watcher interface {
	Start(ctx context.Context, onChange func(input.DeviceChange)) error
}

// Follow starts w and only then attaches what scan finds, so a touchpad
// plugged in during the scan is seen by one or the other. Attach ignores the
// second sighting. A watcher that fails to start is logged and the initial
// scan still runs.
func (l *Loop) Follow(ctx context.Context, w Watcher, scan func() []string, filter *DeviceFilter) int {
	if err := w.Start(ctx, func(change input.DeviceChange) {
		l.HandleChange(change, filter)
	}); err != nil {
		logger.Warnf("Hot-plug monitoring disabled: %v", err)
	}
	return l.AttachAll(scan(), filter)
}
