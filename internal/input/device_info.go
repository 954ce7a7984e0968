package input

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PersistentDeviceInfo contains device information that survives reboots and replugs
type PersistentDeviceInfo struct {
	// ByIDPath is the persistent path in /dev/input/by-id/ (if available)
	ByIDPath string `json:"by_id_path" mapstructure:"by_id_path"`

	// ByPathPath is the persistent path in /dev/input/by-path/ (fallback)
	ByPathPath string `json:"by_path_path" mapstructure:"by_path_path"`

	// Phys is the physical location reported by the kernel
	Phys string `json:"phys,omitempty" mapstructure:"phys"`
}

// Preferred returns the most stable path for configuration files
func (p *PersistentDeviceInfo) Preferred() string {
	if p.ByIDPath != "" {
		return p.ByIDPath
	}
	return p.ByPathPath
}

func findSymlink(dir, eventName string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.Contains(entry.Name(), "event") {
			continue
		}
		link := filepath.Join(dir, entry.Name())
		if target, err := os.Readlink(link); err == nil && filepath.Base(target) == eventName {
			return link
		}
	}
	return ""
}

// ResolveToPersistentPath finds the persistent paths for a given event device
func ResolveToPersistentPath(eventPath string) (*PersistentDeviceInfo, error) {
	eventName := filepath.Base(eventPath)
	info := &PersistentDeviceInfo{
		ByIDPath:   findSymlink("/dev/input/by-id", eventName),
		ByPathPath: findSymlink("/dev/input/by-path", eventName),
	}

	physPath := fmt.Sprintf("/sys/class/input/%s/device/phys", eventName)
	if data, err := os.ReadFile(physPath); err == nil {
		info.Phys = strings.TrimSpace(string(data))
	}

	if info.ByIDPath == "" && info.ByPathPath == "" && info.Phys == "" {
		return nil, fmt.Errorf("could not find persistent identifier for %s", eventPath)
	}
	return info, nil
}

// ResolveEventPath turns a configured path, possibly a by-id or by-path
// symlink, into the current /dev/input/eventN node
func ResolveEventPath(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrDeviceUnavailable, path, err)
	}
	return resolved, nil
}
