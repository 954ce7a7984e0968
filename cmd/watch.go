package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/gesturesd/internal/config"
	"github.com/bnema/gesturesd/internal/logger"
	"github.com/bnema/gesturesd/internal/output"
	"github.com/bnema/gesturesd/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the daemon with a live view of recognized gestures",
	Long: `Run the gesture daemon and show every recognized gesture and the action it
triggered. Use --backend dry-run to try bindings without running anything.`,
	RunE: runWatch,
}

func init() {
	addDaemonFlags(watchCmd)
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	backend := cfg.Daemon.Backend
	if backend == "" {
		backend = output.KindNative
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	feed := ui.NewEventFeed(512)
	p := tea.NewProgram(ui.NewWatchModel(feed, backend), tea.WithAltScreen())

	// log lines would tear the TUI apart
	if !debug {
		logger.SetLevel("error")
	}

	daemonErr := make(chan error, 1)
	go func() {
		err := runDaemon(ctx, cfg, feed.Observe)
		daemonErr <- err
		if err != nil {
			p.Quit()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			p.Quit()
		case <-ctx.Done():
		}
	}()

	_, runErr := p.Run()
	cancel()
	return errors.Join(runErr, <-daemonErr)
}
