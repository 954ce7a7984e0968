package output

import (
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/bnema/gesturesd/internal/logger"
)

// DefaultShell runs every configured command
const DefaultShell = "/bin/sh"

// Spawner launches commands detached from the daemon. Children get their own
// process group and are reaped by a goroutine, never by the caller.
type Spawner struct {
	shell string

	launched atomic.Uint64
	failures atomic.Uint64
	wg       sync.WaitGroup
}

// NewSpawner creates a spawner running commands through shell
func NewSpawner(shell string) *Spawner {
	if shell == "" {
		shell = DefaultShell
	}
	return &Spawner{shell: shell}
}

// Spawn starts `shell -c command` and returns as soon as it is running
func (s *Spawner) Spawn(command string) error {
	if command == "" {
		s.failures.Add(1)
		return fmt.Errorf("%w: empty command", ErrSpawnFailed)
	}

	cmd := exec.Command(s.shell, "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		s.failures.Add(1)
		logger.Error("Failed to launch command", "command", command, "err", err)
		return fmt.Errorf("%w: %q: %v", ErrSpawnFailed, command, err)
	}
	s.launched.Add(1)
	logger.Debug("Launched command", "command", command, "pid", cmd.Process.Pid)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := cmd.Wait(); err != nil {
			logger.Debug("Command exited", "command", command, "err", err)
		}
	}()
	return nil
}

// Launched returns the number of commands started
func (s *Spawner) Launched() uint64 {
	return s.launched.Load()
}

// Failures returns the number of commands that could not be launched
func (s *Spawner) Failures() uint64 {
	return s.failures.Load()
}

// Wait blocks until every launched command has exited
func (s *Spawner) Wait() {
	s.wg.Wait()
}
