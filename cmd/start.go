package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/gesturesd/internal/config"
	"github.com/bnema/gesturesd/internal/daemon"
	"github.com/bnema/gesturesd/internal/input"
	"github.com/bnema/gesturesd/internal/logger"
	"github.com/bnema/gesturesd/internal/output"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the gesture daemon",
	Long: `Run the gesture daemon in the foreground. Touchpads are opened as they appear
and closed when they disappear. Stop it with Ctrl+C or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var observer daemon.Observer
		if verbose || debug {
			observer = logEvent
		}
		return runDaemon(ctx, config.Get(), observer)
	},
}

func init() {
	addDaemonFlags(startCmd)
	rootCmd.AddCommand(startCmd)
}

// addDaemonFlags registers the flags shared by start and watch
func addDaemonFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("backend", "b", "", "Output backend: native, helper or dry-run")
	cmd.Flags().StringSlice("device", nil, "Touchpad to open, may be repeated (default: all touchpads)")
	cmd.Flags().Bool("grab", false, "Grab touchpads exclusively")
	cmd.Flags().String("socket", "", "Helper socket path")

	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		bindFlag(cmd, "daemon.backend", "backend")
		bindFlag(cmd, "daemon.devices", "device")
		bindFlag(cmd, "touchpad.grab", "grab")
		bindFlag(cmd, "helper.socket", "socket")
		if err := viper.Unmarshal(config.Get()); err != nil {
			logger.Warnf("Failed to apply flags: %v", err)
		}
	}
}

// bindFlag lets an explicitly set flag override the config file
func bindFlag(cmd *cobra.Command, key, name string) {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		if err := viper.BindPFlag(key, f); err != nil {
			logger.Warnf("Failed to bind --%s: %v", name, err)
		}
	}
}

// runDaemon wires the device monitor, the dispatch loop and the output
// backend together and blocks until ctx is cancelled
func runDaemon(ctx context.Context, cfg *config.Config, observer daemon.Observer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	specs, err := cfg.Bindings()
	if err != nil {
		return err
	}
	settings, err := cfg.Settings()
	if err != nil {
		return err
	}
	if len(specs) == 0 {
		logger.Warnf("No gestures configured in %s, nothing will happen", config.GetConfigPath())
	}

	backend, err := output.New(ctx, output.Options{
		Kind:         cfg.Daemon.Backend,
		HelperSocket: cfg.Helper.Socket,
		Client:       cfg.ClientOptions(),
		Shell:        cfg.Daemon.Shell,
	})
	if err != nil {
		return fmt.Errorf("failed to start output backend: %w", err)
	}
	defer backend.Close()

	loop := daemon.NewLoop(specs, backend, daemon.Options{
		Settings: settings,
		Open:     daemon.TouchpadOpener(cfg.SynthConfig()),
		Observer: observer,
	})
	filter := daemon.NewDeviceFilter(cfg.Daemon.Devices)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return loop.Run(ctx)
	})

	monitor := input.NewDeviceMonitor()
	scan := func() []string {
		pads, err := input.ListTouchpads(cfg.Touchpad.Glob)
		if err != nil {
			logger.Warnf("Touchpad scan failed: %v", err)
		}
		paths := make([]string, 0, len(pads))
		for _, p := range pads {
			paths = append(paths, p.Path)
		}
		if len(paths) == 0 {
			// nodes we could not inspect may still be known to udev
			paths = monitor.ListCurrentTouchpads()
		}
		return paths
	}
	attached := loop.Follow(ctx, monitor, scan, filter)
	logger.Info("gesturesd started", "backend", backend.Name(), "bindings", len(specs), "touchpads", attached)
	if attached == 0 {
		logger.Warn("No touchpad attached yet, waiting for one to appear")
	}

	err = g.Wait()
	monitor.Stop()

	stats := loop.Stats()
	logger.Info("gesturesd stopped",
		"frames", stats.Frames,
		"dispatches", stats.Dispatches,
		"backend_errors", stats.BackendErrors,
		"spawn_errors", stats.SpawnErrors,
		"devices_lost", stats.DevicesLost)
	return err
}

func logEvent(ev daemon.Event) {
	switch ev.Kind {
	case daemon.EventClassified:
		if ev.Classification.Terminal() {
			logger.Info("Gesture", "device", ev.Device, "gesture", ev.Classification.String())
		} else {
			logger.Debug("Gesture update", "device", ev.Device, "gesture", ev.Classification.String())
		}
	case daemon.EventDispatched:
		logger.Info("Dispatch", "device", ev.Device, "action", ev.Dispatch.String())
	}
}
