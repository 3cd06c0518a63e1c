package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	logx "eventcast/pkg/logx"
)

// EnvDaemonChild marks the detached copy started by the watchdog.
const EnvDaemonChild = "EVENTCAST_DAEMON_CHILD"

// IsDaemonChild reports whether this process was started by a Watchdog.
func IsDaemonChild() bool { return os.Getenv(EnvDaemonChild) == "1" }

// Watchdog starts the daemon as a detached child and watches it for a short
// grace period. A child still alive when the period ends is assumed healthy;
// this is a liveness heuristic, not proof of a working daemon.
type Watchdog struct {
	// Path defaults to the running executable.
	Path  string
	Args  []string
	Grace time.Duration
	Log   logx.Logger
}

// Start launches the child and returns its pid once the grace period has
// passed. A child that exits first yields ErrStartup.
func (w *Watchdog) Start(ctx context.Context) (int, error) {
	log := w.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	path := w.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return 0, fmt.Errorf("%w: locate executable: %v", ErrStartup, err)
		}
		path = exe
	}
	grace := w.Grace
	if grace <= 0 {
		grace = 2 * time.Second
	}

	cmd := exec.Command(path, w.Args...)
	cmd.Env = append(os.Environ(), EnvDaemonChild+"=1")
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, nil, nil
	cmd.SysProcAttr = detachAttr()
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStartup, err)
	}
	pid := cmd.Process.Pid

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case err := <-exited:
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			return pid, fmt.Errorf("%w: daemon exited with status %d", ErrStartup, ee.ExitCode())
		}
		if err != nil {
			return pid, fmt.Errorf("%w: %v", ErrStartup, err)
		}
		return pid, fmt.Errorf("%w: daemon exited during startup", ErrStartup)
	case <-t.C:
		log.Info("daemon started", logx.Int("pid", pid), logx.Duration("grace", grace))
		return pid, nil
	case <-ctx.Done():
		return pid, ctx.Err()
	}
}
