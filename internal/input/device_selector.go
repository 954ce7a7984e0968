package input

import (
	"errors"
	"fmt"

	"github.com/bnema/gesturesd/internal/logger"
	"github.com/charmbracelet/huh"
)

// ErrNoTouchpads is returned when no touchpad can be offered for selection
var ErrNoTouchpads = errors.New("no touchpads found")

// DeviceSelector provides interactive touchpad selection using huh
type DeviceSelector struct {
	glob string
	// list is swapped in tests
	list func(glob string) ([]DeviceInfo, error)
}

// NewDeviceSelector creates a new device selector scanning glob
func NewDeviceSelector(glob string) *DeviceSelector {
	return &DeviceSelector{glob: glob, list: ListTouchpads}
}

// SelectTouchpads asks which touchpads the daemon should open. Devices in
// current are preselected. Paths are returned in their persistent form when
// one exists so the choice survives reboots.
func (s *DeviceSelector) SelectTouchpads(current []string) ([]string, error) {
	devices, err := s.list(s.glob)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, ErrNoTouchpads
	}

	// If only one device, use it automatically
	if len(devices) == 1 {
		logger.Infof("Auto-selected touchpad: %s", devices[0].Descriptive())
		return []string{selectionPath(devices[0])}, nil
	}

	options := selectionOptions(devices, current)

	var selected []string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Select Touchpads").
				Description("Choose the touchpads to read gestures from. Selecting none means all.").
				Options(options...).
				Value(&selected),
		),
	)

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("device selection cancelled: %w", err)
	}

	return selected, nil
}

func selectionOptions(devices []DeviceInfo, current []string) []huh.Option[string] {
	chosen := make(map[string]bool, len(current))
	for _, c := range current {
		if path, err := ResolveEventPath(c); err == nil {
			chosen[path] = true
		}
		chosen[c] = true
	}

	options := make([]huh.Option[string], len(devices))
	for i, dev := range devices {
		options[i] = huh.NewOption(dev.Descriptive(), selectionPath(dev)).
			Selected(chosen[dev.Path] || chosen[selectionPath(dev)])
	}
	return options
}

func selectionPath(dev DeviceInfo) string {
	if dev.Identity != nil {
		if p := dev.Identity.Preferred(); p != "" {
			return p
		}
	}
	return dev.Path
}
