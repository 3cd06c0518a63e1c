package daemon

import (
	"context"
	"time"

	sddaemon "github.com/coreos/go-systemd/v22/daemon"

	logx "eventcast/pkg/logx"
)

// Notifier reports lifecycle transitions to a service manager.
type Notifier interface {
	Ready()
	Reloading()
	Stopping()
	Status(msg string)
}

type nopNotifier struct{}

func (nopNotifier) Ready()        {}
func (nopNotifier) Reloading()    {}
func (nopNotifier) Stopping()     {}
func (nopNotifier) Status(string) {}

// Systemd sends sd_notify messages. Every call is a no-op when NOTIFY_SOCKET
// is unset.
type Systemd struct {
	log logx.Logger
}

func NewSystemd(log logx.Logger) *Systemd {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Systemd{log: log}
}

func (s *Systemd) send(state string) {
	ok, err := sddaemon.SdNotify(false, state)
	if err != nil {
		s.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if ok {
		s.log.Trace("sd_notify", logx.String("state", state))
	}
}

func (s *Systemd) Ready()            { s.send(sddaemon.SdNotifyReady) }
func (s *Systemd) Reloading()        { s.send(sddaemon.SdNotifyReloading) }
func (s *Systemd) Stopping()         { s.send(sddaemon.SdNotifyStopping) }
func (s *Systemd) Status(msg string) { s.send("STATUS=" + msg) }

// RunWatchdog pings the service manager at half the configured WatchdogSec
// until ctx is canceled. It returns immediately when no watchdog is armed or its environment is malformed.
func (s *Systemd) RunWatchdog(ctx context.Context) error {
	interval, err := sddaemon.SdWatchdogEnabled(false)
	if err != nil {
		s.log.Warn("service watchdog disabled", logx.Err(err))
		return nil
	}
	if interval <= 0 {
		return nil
	}
	every := interval / 2
	s.log.Debug("service watchdog armed", logx.Duration("interval", interval))

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.send(sddaemon.SdNotifyWatchdog)
		}
	}
}
