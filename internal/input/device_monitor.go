package input

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bnema/gesturesd/internal/logger"
	"github.com/jochenvg/go-udev"
)

// DeviceMonitor reports touchpads appearing and disappearing. It listens on
// the udev netlink socket and falls back to polling /dev/input.
type DeviceMonitor struct {
	ctx      context.Context
	cancel   context.CancelFunc
	inputDir string
	interval time.Duration
	wg       sync.WaitGroup

	udev *udev.Udev
}

// DeviceChange represents a device change event
type DeviceChange struct {
	Type   DeviceChangeType
	Path   string
	Device string // device name (e.g., "event0")
}

// DeviceChangeType represents the type of device change
type DeviceChangeType int

const (
	DeviceAdded DeviceChangeType = iota
	DeviceRemoved
)

func (t DeviceChangeType) String() string {
	if t == DeviceRemoved {
		return "removed"
	}
	return "added"
}

// NewDeviceMonitor creates a new device monitor
func NewDeviceMonitor() *DeviceMonitor {
	return &DeviceMonitor{
		inputDir: "/dev/input",
		interval: 2 * time.Second,
		udev:     &udev.Udev{},
	}
}

// Start starts monitoring for device changes. The callback runs on the
// monitor goroutine.
func (dm *DeviceMonitor) Start(ctx context.Context, callback func(DeviceChange)) error {
	dm.ctx, dm.cancel = context.WithCancel(ctx)

	changes, err := dm.startUdev()
	if err != nil {
		logger.Warnf("udev monitor unavailable, polling %s instead: %v", dm.inputDir, err)
		dm.wg.Add(1)
		go dm.monitorWithPolling(callback)
		return nil
	}

	dm.wg.Add(1)
	go dm.monitorWithUdev(changes, callback)
	logger.Debug("Device monitor started with udev")
	return nil
}

// Stop stops the device monitor
func (dm *DeviceMonitor) Stop() {
	if dm.cancel != nil {
		dm.cancel()
	}
	dm.wg.Wait()
	logger.Debug("Device monitor stopped")
}

func (dm *DeviceMonitor) startUdev() (<-chan *udev.Device, error) {
	m := dm.udev.NewMonitorFromNetlink("udev")
	if m == nil {
		return nil, os.ErrNotExist
	}
	if err := m.FilterAddMatchSubsystem("input"); err != nil {
		return nil, err
	}
	return m.DeviceChan(dm.ctx.Done())
}

func (dm *DeviceMonitor) monitorWithUdev(changes <-chan *udev.Device, callback func(DeviceChange)) {
	defer dm.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Device monitor panic: %v", r)
		}
	}()

	for {
		select {
		case <-dm.ctx.Done():
			return
		case d, ok := <-changes:
			if !ok {
				return
			}
			change, ok := udevChange(d)
			if !ok {
				continue
			}
			logger.Debugf("Device %s: %s", change.Type, change.Path)
			callback(change)
		}
	}
}

// udevChange converts a udev event on an evdev touchpad node into a DeviceChange
func udevChange(d *udev.Device) (DeviceChange, bool) {
	node := d.Devnode()
	if !strings.HasPrefix(filepath.Base(node), "event") {
		return DeviceChange{}, false
	}

	change := DeviceChange{Path: node, Device: filepath.Base(node)}
	switch d.Action() {
	case "add":
		if d.PropertyValue("ID_INPUT_TOUCHPAD") != "1" {
			return DeviceChange{}, false
		}
		change.Type = DeviceAdded
	case "remove":
		change.Type = DeviceRemoved
	default:
		return DeviceChange{}, false
	}
	return change, true
}

// monitorWithPolling monitors device changes using polling
func (dm *DeviceMonitor) monitorWithPolling(callback func(DeviceChange)) {
	defer dm.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Device monitor panic: %v", r)
		}
	}()

	ticker := time.NewTicker(dm.interval)
	defer ticker.Stop()

	lastDevices := dm.getCurrentDevices()
	for {
		select {
		case <-dm.ctx.Done():
			return
		case <-ticker.C:
			currentDevices := dm.getCurrentDevices()
			for _, change := range diffDevices(dm.inputDir, lastDevices, currentDevices) {
				logger.Debugf("Device %s: %s", change.Type, change.Path)
				callback(change)
			}
			lastDevices = currentDevices
		}
	}
}

// diffDevices returns additions before removals, each sorted by name
func diffDevices(dir string, before, after map[string]bool) []DeviceChange {
	var added, removed []string
	for device := range after {
		if !before[device] {
			added = append(added, device)
		}
	}
	for device := range before {
		if !after[device] {
			removed = append(removed, device)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)

	var changes []DeviceChange
	for _, device := range added {
		changes = append(changes, DeviceChange{Type: DeviceAdded, Path: filepath.Join(dir, device), Device: device})
	}
	for _, device := range removed {
		changes = append(changes, DeviceChange{Type: DeviceRemoved, Path: filepath.Join(dir, device), Device: device})
	}
	return changes
}

// getCurrentDevices returns a map of currently available input devices
func (dm *DeviceMonitor) getCurrentDevices() map[string]bool {
	devices := make(map[string]bool)

	entries, err := os.ReadDir(dm.inputDir)
	if err != nil {
		logger.Warnf("Failed to read input directory: %v", err)
		return devices
	}

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), "event") {
			devices[entry.Name()] = true
		}
	}

	return devices
}

// ListCurrentTouchpads returns the device nodes of the touchpads udev knows
// about, or every event node when udev cannot be queried
func (dm *DeviceMonitor) ListCurrentTouchpads() []string {
	e := dm.udev.NewEnumerate()
	if e != nil {
		e.AddMatchSubsystem("input")
		e.AddMatchIsInitialized()
		e.AddMatchProperty("ID_INPUT_TOUCHPAD", "1")
		if devices, err := e.Devices(); err == nil {
			var paths []string
			for _, d := range devices {
				if node := d.Devnode(); strings.HasPrefix(filepath.Base(node), "event") {
					paths = append(paths, node)
				}
			}
			sort.Strings(paths)
			return paths
		}
	}

	var paths []string
	for device := range dm.getCurrentDevices() {
		paths = append(paths, filepath.Join(dm.inputDir, device))
	}
	sort.Strings(paths)
	return paths
}
