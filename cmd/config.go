package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/bnema/gesturesd/internal/config"
	"github.com/bnema/gesturesd/internal/logger"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage gesturesd configuration",
	Long:  `Manage gesturesd configuration including gesture bindings and thresholds.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		logger.Info("Current Configuration:")
		logger.Infof("Config file: %s\n", config.GetConfigPath())

		logger.Info("[Daemon]")
		logger.Infof("  Backend: %s", cfg.Daemon.Backend)
		logger.Infof("  Shell: %s", cfg.Daemon.Shell)
		logger.Infof("  Finger Policy: %s", cfg.Daemon.FingerPolicy)
		if len(cfg.Daemon.Devices) == 0 {
			logger.Info("  Devices: all touchpads")
		} else {
			logger.Info("  Devices:")
			for _, d := range cfg.Daemon.Devices {
				logger.Infof("    - %s", d)
			}
		}

		logger.Info("\n[Recognition]")
		logger.Infof("  Swipe Threshold: %.2f", cfg.Recognition.SwipeThreshold)
		logger.Infof("  Pinch Threshold: %.2f", cfg.Recognition.PinchThreshold)
		logger.Infof("  Rotate Threshold: %.2f", cfg.Recognition.RotateThreshold)
		logger.Infof("  One-shot Swipe: %.2f", cfg.Recognition.OneShotSwipe)
		logger.Infof("  One-shot Pinch: %.2f", cfg.Recognition.OneShotPinch)
		logger.Infof("  One-shot Rotate: %.2f", cfg.Recognition.OneShotRotate)
		logger.Infof("  Hold Duration: %s", cfg.Recognition.HoldDuration)
		logger.Infof("  Diagonals: %v", cfg.Recognition.Diagonals)

		logger.Info("\n[Touchpad]")
		logger.Infof("  Glob: %s", cfg.Touchpad.Glob)
		logger.Infof("  Grab: %v", cfg.Touchpad.Grab)
		logger.Infof("  Swipe Start: %.1f", cfg.Touchpad.SwipeStart)
		logger.Infof("  Pinch Start: %.2f", cfg.Touchpad.PinchStart)
		logger.Infof("  Rotate Start: %.1f", cfg.Touchpad.RotateStart)
		logger.Infof("  Hold Delay: %s", cfg.Touchpad.HoldDelay)

		logger.Info("\n[Helper]")
		logger.Infof("  Socket: %s", cfg.Helper.Socket)
		logger.Infof("  Timeout: %s", cfg.Helper.Timeout)
		logger.Infof("  Retries: %d (every %s, then %s cooldown)", cfg.Helper.Retries, cfg.Helper.RetryDelay, cfg.Helper.Cooldown)
		logger.Infof("  Mode: %s", cfg.Helper.Mode)
		if cfg.Helper.Group != "" {
			logger.Infof("  Group: %s", cfg.Helper.Group)
		}
		if len(cfg.Helper.AllowedUIDs) > 0 {
			logger.Infof("  Allowed UIDs: %v", cfg.Helper.AllowedUIDs)
		}

		if len(cfg.Gestures) > 0 {
			logger.Info("\n[Gestures]")
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			if _, err := fmt.Fprintln(w, "  Name\tGesture\tMode\tAction"); err != nil {
				logger.Errorf("Failed to write header: %v", err)
			}
			for _, g := range cfg.Gestures {
				if _, err := fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", g.Name, gestureLabel(g), modeLabel(g), actionLabel(g)); err != nil {
					logger.Errorf("Failed to write gesture: %v", err)
				}
			}
			if err := w.Flush(); err != nil {
				logger.Errorf("Failed to flush writer: %v", err)
			}
		}

		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and every gesture binding",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger.Infof("Configuration OK: %d gesture(s) bound", len(cfg.Gestures))
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.GetConfigPath())
	},
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save current configuration to file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Save(); err != nil {
			return err
		}
		logger.Infof("Configuration saved to: %s", config.GetConfigPath())
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file with an example",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.GetConfigPath()
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(configPath); err == nil && !force {
			logger.Infof("Configuration file already exists at: %s", configPath)
			logger.Info("Use --force to overwrite")
			return nil
		}

		if err := config.WriteDefault(configPath, force); err != nil {
			return err
		}

		logger.Infof("Configuration initialized at: %s", configPath)
		logger.Info("\nYou can now:")
		logger.Info("  - Edit the gesture bindings in the configuration file")
		logger.Info("  - Use 'gesturesd config validate' to check them")
		logger.Info("  - Use 'gesturesd watch' to try them live")

		return nil
	},
}

func gestureLabel(g config.GestureConfig) string {
	label := fmt.Sprintf("%s %d", g.Kind, g.Fingers)
	if g.Direction != "" {
		label += " " + g.Direction
	}
	return label
}

func modeLabel(g config.GestureConfig) string {
	if g.Mode == "" {
		return "oneshot"
	}
	return g.Mode
}

func actionLabel(g config.GestureConfig) string {
	switch {
	case g.Inject != "" && g.Button != "":
		return "inject " + g.Inject + " " + g.Button
	case g.Inject != "":
		return "inject " + g.Inject
	default:
		return g.Command
	}
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configSaveCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().Bool("force", false, "Force overwrite existing configuration")
	rootCmd.AddCommand(configCmd)
}
