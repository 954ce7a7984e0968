package input

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/bnema/gesturesd/internal/logger"
	evdev "github.com/gvalkov/golang-evdev"
)

// DefaultDeviceGlob matches every evdev node
const DefaultDeviceGlob = "/dev/input/event*"

// DeviceInfo describes a touchpad found on the system
type DeviceInfo struct {
	Path     string
	ID       string
	Name     string
	MaxTools int
	// Identity is the persistent by-id/by-path information, if any
	Identity *PersistentDeviceInfo
}

// Descriptive returns a label for selection lists
func (d DeviceInfo) Descriptive() string {
	return fmt.Sprintf("%s (%s, %d fingers)", d.Name, d.ID, d.MaxTools)
}

func hasCode(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// IsTouchpad reports whether the device speaks multi-touch protocol B and
// reports finger tools, which excludes mice and most touchscreens
func IsTouchpad(dev *evdev.InputDevice) bool {
	abs := dev.CapabilitiesFlat[evdev.EV_ABS]
	keys := dev.CapabilitiesFlat[evdev.EV_KEY]

	return hasCode(abs, evdev.ABS_MT_SLOT) &&
		hasCode(abs, evdev.ABS_MT_POSITION_X) &&
		hasCode(abs, evdev.ABS_MT_POSITION_Y) &&
		hasCode(keys, evdev.BTN_TOOL_FINGER) &&
		hasCode(keys, evdev.BTN_TOOL_DOUBLETAP)
}

func maxTools(keys []int) int {
	n := 0
	for _, c := range keys {
		if f := toolFingers(uint16(c)); f > n {
			n = f
		}
	}
	return n
}

// ListTouchpads scans the nodes matching glob and returns the touchpads among them
func ListTouchpads(glob string) ([]DeviceInfo, error) {
	if glob == "" {
		glob = DefaultDeviceGlob
	}
	devices, err := evdev.ListInputDevices(glob)
	if err != nil {
		return nil, fmt.Errorf("failed to list input devices: %w", err)
	}

	var pads []DeviceInfo
	for _, dev := range devices {
		if IsTouchpad(dev) {
			info := DeviceInfo{
				Path:     dev.Fn,
				ID:       filepath.Base(dev.Fn),
				Name:     dev.Name,
				MaxTools: maxTools(dev.CapabilitiesFlat[evdev.EV_KEY]),
			}
			if identity, err := ResolveToPersistentPath(dev.Fn); err == nil {
				info.Identity = identity
			}
			pads = append(pads, info)
			logger.Debugf("Found touchpad %s at %s", dev.Name, dev.Fn)
		}
		dev.File.Close()
	}

	sort.Slice(pads, func(i, j int) bool { return pads[i].Path < pads[j].Path })
	return pads, nil
}
