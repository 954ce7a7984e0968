// Package config handles configuration management using Viper
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/gesturesd/internal/gesture"
	"github.com/bnema/gesturesd/internal/input"
	"github.com/bnema/gesturesd/internal/ipc"
	"github.com/mattn/go-shellwords"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned by Validate and the conversions built on it
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the application configuration
type Config struct {
	Daemon      DaemonConfig      `mapstructure:"daemon"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Touchpad    TouchpadConfig    `mapstructure:"touchpad"`
	Helper      HelperConfig      `mapstructure:"helper"`
	Logging     LoggingConfig     `mapstructure:"logging"`

	// Gestures are matched in order, first match wins
	Gestures []GestureConfig `mapstructure:"gestures"`
}

// DaemonConfig contains daemon-wide settings
type DaemonConfig struct {
	Backend string   `mapstructure:"backend"` // native, helper or dry-run
	Shell   string   `mapstructure:"shell"`
	Devices []string `mapstructure:"devices"` // empty means every touchpad
	// FingerPolicy is ignore or restart
	FingerPolicy string `mapstructure:"finger_policy"`
}

// RecognitionConfig contains classification thresholds
type RecognitionConfig struct {
	SwipeThreshold  float64       `mapstructure:"swipe_threshold"`
	PinchThreshold  float64       `mapstructure:"pinch_threshold"`
	RotateThreshold float64       `mapstructure:"rotate_threshold"`
	OneShotSwipe    float64       `mapstructure:"oneshot_swipe"`
	OneShotPinch    float64       `mapstructure:"oneshot_pinch"`
	OneShotRotate   float64       `mapstructure:"oneshot_rotate"`
	HoldDuration    time.Duration `mapstructure:"hold_duration"`
	Diagonals       bool          `mapstructure:"diagonals"`
}

// TouchpadConfig contains device reading settings
type TouchpadConfig struct {
	Glob        string        `mapstructure:"glob"`
	Grab        bool          `mapstructure:"grab"`
	SwipeStart  float64       `mapstructure:"swipe_start"`
	PinchStart  float64       `mapstructure:"pinch_start"`
	RotateStart float64       `mapstructure:"rotate_start"`
	HoldDelay   time.Duration `mapstructure:"hold_delay"`
}

// HelperConfig contains the injection helper socket settings, shared by the
// daemon (client side) and the helper (server side)
type HelperConfig struct {
	Socket      string        `mapstructure:"socket"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Retries     int           `mapstructure:"retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
	Group       string        `mapstructure:"group"`
	Mode        string        `mapstructure:"mode"` // octal, e.g. "0660"
	AllowedUIDs []uint32      `mapstructure:"allowed_uids"`
	DeviceName  string        `mapstructure:"device_name"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	FileLogging bool   `mapstructure:"file_logging"`
	File        string `mapstructure:"file"`
	LogLevel    string `mapstructure:"log_level"` // Override LOG_LEVEL env var
}

// GestureConfig is one binding as written in the config file
type GestureConfig struct {
	Name      string `mapstructure:"name" toml:"name,omitempty"`
	Kind      string `mapstructure:"kind" toml:"kind"`
	Fingers   int    `mapstructure:"fingers" toml:"fingers"`
	Direction string `mapstructure:"direction" toml:"direction,omitempty"`
	Mode      string `mapstructure:"mode" toml:"mode,omitempty"`

	Command      string  `mapstructure:"command" toml:"command,omitempty"`
	Inject       string  `mapstructure:"inject" toml:"inject,omitempty"`
	Button       string  `mapstructure:"button" toml:"button,omitempty"`
	Scale        float64 `mapstructure:"scale" toml:"scale,omitempty"`
	StartCommand string  `mapstructure:"start_command" toml:"start_command,omitempty"`
	EndCommand   string  `mapstructure:"end_command" toml:"end_command,omitempty"`
	ReleaseDelay string  `mapstructure:"release_delay" toml:"release_delay,omitempty"`
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Daemon: DaemonConfig{
			Backend:      "native",
			Shell:        "/bin/sh",
			Devices:      []string{},
			FingerPolicy: "ignore",
		},
		Recognition: RecognitionConfig{
			SwipeThreshold:  2,
			PinchThreshold:  0.05,
			RotateThreshold: 5,
			OneShotSwipe:    50,
			OneShotPinch:    0.15,
			OneShotRotate:   20,
			HoldDuration:    300 * time.Millisecond,
			Diagonals:       true,
		},
		Touchpad: TouchpadConfig{
			Glob:        input.DefaultDeviceGlob,
			Grab:        false,
			SwipeStart:  30,
			PinchStart:  0.15,
			RotateStart: 12,
			HoldDelay:   250 * time.Millisecond,
		},
		Helper: HelperConfig{
			Socket:      ipc.DefaultSocketPath,
			Timeout:     2 * time.Second,
			Retries:     3,
			RetryDelay:  200 * time.Millisecond,
			Cooldown:    5 * time.Second,
			Group:       "",
			Mode:        "0660",
			AllowedUIDs: []uint32{},
			DeviceName:  "gesturesd virtual pointer",
		},
		Logging: LoggingConfig{
			FileLogging: false,
			File:        "",
			LogLevel:    "", // Empty means use LOG_LEVEL env var
		},
		Gestures: []GestureConfig{},
	}

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("gesturesd")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		// Add config paths in order of precedence
		viper.AddConfigPath(".")
		if dir := userConfigDir(); dir != "" {
			viper.AddConfigPath(dir)
		}
		viper.AddConfigPath("/etc/gesturesd")
	}

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// A missing file, searched for or named with --config, means defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	return nil
}

func setDefaults() {
	d := DefaultConfig

	viper.SetDefault("daemon.backend", d.Daemon.Backend)
	viper.SetDefault("daemon.shell", d.Daemon.Shell)
	viper.SetDefault("daemon.devices", d.Daemon.Devices)
	viper.SetDefault("daemon.finger_policy", d.Daemon.FingerPolicy)

	viper.SetDefault("recognition.swipe_threshold", d.Recognition.SwipeThreshold)
	viper.SetDefault("recognition.pinch_threshold", d.Recognition.PinchThreshold)
	viper.SetDefault("recognition.rotate_threshold", d.Recognition.RotateThreshold)
	viper.SetDefault("recognition.oneshot_swipe", d.Recognition.OneShotSwipe)
	viper.SetDefault("recognition.oneshot_pinch", d.Recognition.OneShotPinch)
	viper.SetDefault("recognition.oneshot_rotate", d.Recognition.OneShotRotate)
	viper.SetDefault("recognition.hold_duration", d.Recognition.HoldDuration)
	viper.SetDefault("recognition.diagonals", d.Recognition.Diagonals)

	viper.SetDefault("touchpad.glob", d.Touchpad.Glob)
	viper.SetDefault("touchpad.grab", d.Touchpad.Grab)
	viper.SetDefault("touchpad.swipe_start", d.Touchpad.SwipeStart)
	viper.SetDefault("touchpad.pinch_start", d.Touchpad.PinchStart)
	viper.SetDefault("touchpad.rotate_start", d.Touchpad.RotateStart)
	viper.SetDefault("touchpad.hold_delay", d.Touchpad.HoldDelay)

	viper.SetDefault("helper.socket", d.Helper.Socket)
	viper.SetDefault("helper.timeout", d.Helper.Timeout)
	viper.SetDefault("helper.retries", d.Helper.Retries)
	viper.SetDefault("helper.retry_delay", d.Helper.RetryDelay)
	viper.SetDefault("helper.cooldown", d.Helper.Cooldown)
	viper.SetDefault("helper.group", d.Helper.Group)
	viper.SetDefault("helper.mode", d.Helper.Mode)
	viper.SetDefault("helper.allowed_uids", d.Helper.AllowedUIDs)
	viper.SetDefault("helper.device_name", d.Helper.DeviceName)

	viper.SetDefault("logging.file_logging", d.Logging.FileLogging)
	viper.SetDefault("logging.file", d.Logging.File)
	viper.SetDefault("logging.log_level", d.Logging.LogLevel)

	viper.SetDefault("gestures", d.Gestures)
}

// Get returns the current configuration
func Get() *Config {
	if cfg == nil {
		// Return defaults if not initialized
		return &DefaultConfig
	}
	return cfg
}

// Set sets the current configuration (for testing)
func Set(c *Config) {
	cfg = c
}

// Save saves the current configuration to file
func Save() error {
	configPath := GetConfigPath()

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		if os.IsPermission(err) && strings.Contains(configPath, "/etc/") {
			return fmt.Errorf("failed to create config directory %s: permission denied. Try running with sudo", dir)
		}
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := viper.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// SetDevices records the touchpads the daemon should open and saves the config
func SetDevices(paths []string) error {
	c := Get()
	c.Daemon.Devices = paths
	viper.Set("daemon.devices", paths)
	return Save()
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	if viper.ConfigFileUsed() != "" {
		return viper.ConfigFileUsed()
	}

	// The helper runs as root and reads the system config
	if os.Getuid() == 0 && os.Getenv("SUDO_USER") == "" {
		return "/etc/gesturesd/gesturesd.toml"
	}

	if dir := userConfigDir(); dir != "" {
		return filepath.Join(dir, "gesturesd.toml")
	}
	return "/etc/gesturesd/gesturesd.toml"
}

// userConfigDir honors XDG_CONFIG_HOME and the invoking user under sudo
func userConfigDir() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		return filepath.Join("/home", sudoUser, ".config", "gesturesd")
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "gesturesd")
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", "gesturesd")
	}
	return ""
}

// WriteDefault writes a commented starter config to path
func WriteDefault(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(DefaultTOML), 0640); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects malformed or contradictory settings and bindings
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch strings.ToLower(c.Daemon.Backend) {
	case "", "native", "helper", "dry-run":
	default:
		add("daemon.backend: unknown backend %q", c.Daemon.Backend)
	}
	if _, err := gesture.ParseFingerPolicy(c.Daemon.FingerPolicy); err != nil {
		add("daemon.finger_policy: %v", err)
	}
	if _, err := c.Helper.FileMode(); err != nil {
		add("helper.mode: %v", err)
	}
	if c.Helper.Retries < 0 {
		add("helper.retries: must not be negative")
	}
	if c.Helper.Cooldown < 0 {
		add("helper.cooldown: must not be negative")
	}

	for i, g := range c.Gestures {
		if _, err := g.Spec(); err != nil {
			add("gestures[%d]%s: %v", i, g.label(), err)
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w:\n  %s", ErrInvalidConfig, strings.Join(problems, "\n  "))
	}
	return nil
}

// Bindings converts the gesture list into matcher specs, in config order
func (c *Config) Bindings() ([]gesture.Spec, error) {
	specs := make([]gesture.Spec, 0, len(c.Gestures))
	for i, g := range c.Gestures {
		spec, err := g.Spec()
		if err != nil {
			return nil, fmt.Errorf("%w: gestures[%d]%s: %v", ErrInvalidConfig, i, g.label(), err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// Settings returns the classification settings
func (c *Config) Settings() (gesture.Settings, error) {
	policy, err := gesture.ParseFingerPolicy(c.Daemon.FingerPolicy)
	if err != nil {
		return gesture.Settings{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	r := c.Recognition
	return gesture.Settings{
		Direction:    gesture.Gates{Swipe: r.SwipeThreshold, Pinch: r.PinchThreshold, Rotate: r.RotateThreshold},
		OneShot:      gesture.Gates{Swipe: r.OneShotSwipe, Pinch: r.OneShotPinch, Rotate: r.OneShotRotate},
		HoldDuration: r.HoldDuration,
		Diagonals:    r.Diagonals,
		FingerPolicy: policy,
	}, nil
}

// SynthConfig returns the gesture start thresholds of the touchpad reader
func (c *Config) SynthConfig() input.SynthConfig {
	t := c.Touchpad
	return input.SynthConfig{
		SwipeStart:  t.SwipeStart,
		PinchStart:  t.PinchStart,
		RotateStart: t.RotateStart,
		HoldDelay:   t.HoldDelay,
		Grab:        t.Grab,
	}
}

// ClientOptions returns the helper connection settings
func (c *Config) ClientOptions() ipc.ClientOptions {
	return ipc.ClientOptions{
		Timeout:    c.Helper.Timeout,
		Retries:    c.Helper.Retries,
		RetryDelay: c.Helper.RetryDelay,
		Cooldown:   c.Helper.Cooldown,
	}
}

// ServerOptions returns the helper socket permissions
func (c *Config) ServerOptions() (ipc.ServerOptions, error) {
	mode, err := c.Helper.FileMode()
	if err != nil {
		return ipc.ServerOptions{}, fmt.Errorf("%w: helper.mode: %v", ErrInvalidConfig, err)
	}
	return ipc.ServerOptions{Mode: mode, Group: c.Helper.Group, AllowedUIDs: c.Helper.AllowedUIDs}, nil
}

// FileMode parses the octal socket mode
func (h HelperConfig) FileMode() (os.FileMode, error) {
	if h.Mode == "" {
		return 0660, nil
	}
	m, err := strconv.ParseUint(h.Mode, 8, 32)
	if err != nil || m > 0777 {
		return 0, fmt.Errorf("invalid octal mode %q", h.Mode)
	}
	return os.FileMode(m), nil
}

func (g GestureConfig) label() string {
	if g.Name == "" {
		return ""
	}
	return " (" + g.Name + ")"
}

// Spec converts and validates one binding
func (g GestureConfig) Spec() (gesture.Spec, error) {
	var spec gesture.Spec
	spec.Name = g.Name

	kind, err := gesture.ParseKind(g.Kind)
	if err != nil {
		return spec, err
	}
	if g.Fingers < 1 {
		return spec, fmt.Errorf("fingers must be at least 1, got %d", g.Fingers)
	}
	dir, err := gesture.ParseDirection(g.Direction)
	if err != nil {
		return spec, err
	}
	if !dir.ValidFor(kind) {
		return spec, fmt.Errorf("direction %s is not valid for a %s", dir, kind)
	}
	mode, err := gesture.ParseMode(g.Mode)
	if err != nil {
		return spec, err
	}
	spec.Trigger = gesture.Trigger{Kind: kind, Fingers: g.Fingers, Direction: dir, Mode: mode}

	op, err := gesture.ParseInjectOp(g.Inject)
	if err != nil {
		return spec, err
	}
	switch {
	case g.Command == "" && op == gesture.InjectNone:
		return spec, errors.New("either command or inject must be set")
	case g.Command != "" && op != gesture.InjectNone:
		return spec, errors.New("command and inject are mutually exclusive")
	case op != gesture.InjectNone && op.Continuous() != (mode == gesture.ModeContinuous):
		return spec, fmt.Errorf("inject %s cannot be used in %s mode", op, mode)
	}

	for field, cmd := range map[string]string{"command": g.Command, "start_command": g.StartCommand, "end_command": g.EndCommand} {
		if err := checkCommand(cmd); err != nil {
			return spec, fmt.Errorf("%s: %w", field, err)
		}
	}
	if (g.StartCommand != "" || g.EndCommand != "") && mode != gesture.ModeContinuous {
		return spec, errors.New("start_command and end_command need continuous mode")
	}

	button, err := gesture.ParseButton(g.Button)
	if err != nil {
		return spec, err
	}
	if g.Scale < 0 {
		return spec, fmt.Errorf("scale must not be negative, got %g", g.Scale)
	}
	scale := g.Scale
	if scale == 0 {
		scale = 1
	}
	var delay time.Duration
	if g.ReleaseDelay != "" {
		if delay, err = time.ParseDuration(g.ReleaseDelay); err != nil || delay < 0 {
			return spec, fmt.Errorf("invalid release_delay %q", g.ReleaseDelay)
		}
		if op != gesture.InjectDrag {
			return spec, errors.New("release_delay only applies to drag")
		}
	}

	spec.Effect = gesture.Effect{
		Command:      g.Command,
		Inject:       op,
		Button:       button,
		Scale:        scale,
		StartCommand: g.StartCommand,
		EndCommand:   g.EndCommand,
		ReleaseDelay: delay,
	}
	return spec, nil
}

// checkCommand rejects commands the shell could not parse
func checkCommand(cmd string) error {
	if cmd == "" {
		return nil
	}
	words, err := shellwords.Parse(cmd)
	if err != nil {
		return fmt.Errorf("unparseable command %q: %v", cmd, err)
	}
	if len(words) == 0 {
		return fmt.Errorf("empty command %q", cmd)
	}
	return nil
}
