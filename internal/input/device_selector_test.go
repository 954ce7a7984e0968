package input

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubSelector(devices []DeviceInfo, err error) *DeviceSelector {
	s := NewDeviceSelector("")
	s.list = func(string) ([]DeviceInfo, error) { return devices, err }
	return s
}

func TestDeviceSelector_NoTouchpads(t *testing.T) {
	_, err := stubSelector(nil, nil).SelectTouchpads(nil)
	assert.ErrorIs(t, err, ErrNoTouchpads)

	boom := errors.New("permission denied")
	_, err = stubSelector(nil, boom).SelectTouchpads(nil)
	assert.ErrorIs(t, err, boom)
}

func TestDeviceSelector_SingleTouchpadIsAutoSelected(t *testing.T) {
	pad := DeviceInfo{
		Path:     "/dev/input/event7",
		ID:       "event7",
		Name:     "SYNA1D31:00 06CB:CD48 Touchpad",
		MaxTools: 5,
		Identity: &PersistentDeviceInfo{ByPathPath: "/dev/input/by-path/platform-i8042-serio-1-event-mouse"},
	}

	selected, err := stubSelector([]DeviceInfo{pad}, nil).SelectTouchpads(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/input/by-path/platform-i8042-serio-1-event-mouse"}, selected)
}

func TestSelectionOptions(t *testing.T) {
	devices := []DeviceInfo{
		{Path: "/dev/input/event5", ID: "event5", Name: "Apple Magic Trackpad", MaxTools: 5},
		{Path: "/dev/input/event7", ID: "event7", Name: "SYNA Touchpad", MaxTools: 3,
			Identity: &PersistentDeviceInfo{ByIDPath: "/dev/input/by-id/syna-event-mouse"}},
	}

	options := selectionOptions(devices, []string{"/dev/input/event5"})
	require.Len(t, options, 2)
	assert.Equal(t, "/dev/input/event5", options[0].Value)
	assert.Equal(t, "Apple Magic Trackpad (event5, 5 fingers)", options[0].Key)
	assert.Equal(t, "/dev/input/by-id/syna-event-mouse", options[1].Value)
}
