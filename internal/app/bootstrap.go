package app

import (
	"eventcast/internal/config"
	"eventcast/internal/daemon"
	"eventcast/internal/dispatch"
	"eventcast/internal/mcast"
	logx "eventcast/pkg/logx"
)

// Option customizes New.
type Option func(*options)

type options struct {
	wrapWriter func(dispatch.PacketWriter) dispatch.PacketWriter
	notifier   bool
	signals    *daemon.Signals
}

// WithSignals hands over a subscription made before New. Without it New
// subscribes on entry.
func WithSignals(s *daemon.Signals) Option {
	return func(o *options) { o.signals = s }
}

// WithServiceNotify toggles sd_notify integration (on by default).
func WithServiceNotify(enabled bool) Option {
	return func(o *options) { o.notifier = enabled }
}

func senderOptions(s *config.Settings) mcast.SenderOptions {
	return mcast.SenderOptions{
		Address:   s.Multicast.Address,
		Port:      s.Multicast.Port,
		Interface: s.Multicast.Interface,
		TTL:       s.Multicast.TTL,
		Loopback:  s.Multicast.Loopback,
	}
}

// Logging builds the log service for s.
func Logging(s *config.Settings) (*logx.Service, logx.Logger) {
	return logx.New(s.LogConfig())
}
