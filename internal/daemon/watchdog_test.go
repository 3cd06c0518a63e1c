//go:build unix

package daemon

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"
)

func shell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestWatchdogReportsEarlyExit(t *testing.T) {
	t.Parallel()
	w := &Watchdog{Path: shell(t), Args: []string{"-c", "exit 3"}, Grace: 5 * time.Second}
	start := time.Now()
	_, err := w.Start(context.Background())
	if !errors.Is(err, ErrStartup) {
		t.Fatalf("Start() = %v, want ErrStartup", err)
	}
	if time.Since(start) >= 5*time.Second {
		t.Fatalf("Start waited for the full grace period on a dead child")
	}
}

func TestWatchdogAssumesHealthyAfterGrace(t *testing.T) {
	t.Parallel()
	w := &Watchdog{Path: shell(t), Args: []string{"-c", "sleep 2"}, Grace: 100 * time.Millisecond}
	pid, err := w.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() = %v, want nil", err)
	}
	if pid <= 0 {
		t.Fatalf("pid = %d, want > 0", pid)
	}
}

func TestWatchdogMarksChild(t *testing.T) {
	t.Parallel()
	w := &Watchdog{Path: shell(t), Args: []string{"-c", `test "$` + EnvDaemonChild + `" = 1 || exit 1; sleep 2`}, Grace: 200 * time.Millisecond}
	if _, err := w.Start(context.Background()); err != nil {
		t.Fatalf("child did not see %s: %v", EnvDaemonChild, err)
	}
}
