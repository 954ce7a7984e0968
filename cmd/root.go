package cmd

import (
	"os"
	"path/filepath"

	"github.com/bnema/gesturesd/internal/config"
	"github.com/bnema/gesturesd/internal/logger"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "gesturesd",
		Short: "gesturesd - touchpad gestures for X11",
		Long: `gesturesd reads multi-touch events from touchpads, recognizes swipe, pinch,
rotate and hold gestures, and runs the shell commands or pointer actions
bound to them in the configuration file.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
)

// Execute runs the root command
func Execute() error {
	defer logger.Close()
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: search ., ~/.config/gesturesd, /etc/gesturesd)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log recognized gestures")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Log every frame and dispatch")
}

// setup loads the configuration and applies the logging settings
func setup(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		config.SetConfigPath(configPath)
	}
	if err := config.Init(); err != nil {
		return err
	}

	cfg := config.Get()
	if cfg.Logging.LogLevel != "" {
		logger.SetLevel(cfg.Logging.LogLevel)
	}
	switch {
	case debug:
		logger.SetDebug()
	case verbose:
		logger.SetLevel("info")
	}

	if cfg.Logging.FileLogging {
		path := cfg.Logging.File
		if path == "" {
			path = defaultLogFile()
		}
		if err := logger.EnableFileLogging(path); err != nil {
			logger.Warnf("File logging disabled: %v", err)
		}
	}
	return nil
}

func defaultLogFile() string {
	if os.Geteuid() == 0 {
		return "/var/log/gesturesd/gesturesd.log"
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "gesturesd", "gesturesd.log")
	}
	return "/tmp/gesturesd.log"
}
