package daemon

import "errors"

var (
	// ErrStartup is returned by the watchdog when the detached daemon exits
	// before its grace period ends.
	ErrStartup = errors.New("daemon startup failed")

	// ErrStopped is returned by Post once the controller has exited.
	ErrStopped = errors.New("controller stopped")
)
