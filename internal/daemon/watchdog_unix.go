//go:build unix

package daemon

import "syscall"

// detachAttr moves the child into its own session so it survives the
// launcher and its terminal.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
