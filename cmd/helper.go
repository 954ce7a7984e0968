package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/gesturesd/internal/config"
	"github.com/bnema/gesturesd/internal/input"
	"github.com/bnema/gesturesd/internal/ipc"
	"github.com/bnema/gesturesd/internal/logger"
	"github.com/spf13/cobra"
)

var helperCmd = &cobra.Command{
	Use:   "helper",
	Short: "Run the privileged pointer injection helper",
	Long: `Run the helper that owns a uinput virtual pointer and injects the pointer
operations sent by a daemon started with --backend helper. It needs write
access to /dev/uinput, usually root.`,
	RunE: runHelper,
}

func init() {
	helperCmd.Flags().String("socket", "", "Socket path to listen on")
	rootCmd.AddCommand(helperCmd)
}

func runHelper(cmd *cobra.Command, args []string) error {
	cfg := config.Get()
	socket := cfg.Helper.Socket
	if s, _ := cmd.Flags().GetString("socket"); s != "" {
		socket = s
	}

	opts, err := cfg.ServerOptions()
	if err != nil {
		return err
	}

	if _, err := os.Stat(input.UinputDevicePath); err != nil {
		return fmt.Errorf("uinput is not available: %w\nLoad it with: sudo modprobe uinput", err)
	}

	pointer, err := input.NewUinputPointer(cfg.Helper.DeviceName)
	if err != nil {
		if os.Geteuid() != 0 {
			return fmt.Errorf("%w\nThe helper needs write access to %s, try: sudo gesturesd helper", err, input.UinputDevicePath)
		}
		return err
	}
	defer pointer.Close()

	server := ipc.NewSocketServer(socket, pointer, opts)
	if err := server.Start(); err != nil {
		return err
	}
	defer server.Stop()

	if len(opts.AllowedUIDs) > 0 {
		logger.Info("Helper restricted to peers", "uids", opts.AllowedUIDs)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("Received %s, shutting down", sig)
	return nil
}
