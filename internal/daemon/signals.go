package daemon

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	logx "eventcast/pkg/logx"
)

// Poster is the controller's inbox as seen by message sources.
type Poster interface {
	Post(ctx context.Context, m Message) error
	TryPost(m Message) bool
}

// Translate maps a signal to its control message.
func Translate(sig os.Signal) (Message, bool) {
	switch sig {
	case os.Interrupt, syscall.SIGTERM:
		return Shutdown, true
	case syscall.SIGHUP:
		return Reload, true
	case syscall.SIGALRM:
		return Reap, true
	}
	return 0, false
}

// Signals holds the process's control signals from the moment it is created,
// so a signal arriving during startup is queued rather than handled by the
// default action.
type Signals struct {
	ch chan os.Signal
}

// NotifySignals subscribes to SIGINT/SIGTERM, SIGHUP and SIGALRM.
func NotifySignals() *Signals {
	s := &Signals{ch: make(chan os.Signal, 8)}
	signal.Notify(s.ch, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGALRM)
	return s
}

// Stop restores default signal handling. Queued signals are discarded.
func (s *Signals) Stop() { signal.Stop(s.ch) }

// Forward turns queued and future signals into Shutdown, Reload and Reap
// until ctx is canceled.
func (s *Signals) Forward(ctx context.Context, to Poster, log logx.Logger) error {
	return forward(ctx, s.ch, to, log)
}

func forward(ctx context.Context, ch <-chan os.Signal, to Poster, log logx.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-ch:
			m, ok := Translate(sig)
			if !ok {
				continue
			}
			log.Debug("signal received", logx.String("signal", sig.String()), logx.String("msg", m.String()))
			if m == Reap {
				to.TryPost(m)
				continue
			}
			if err := to.Post(ctx, m); err != nil {
				if err == ErrStopped {
					return nil
				}
				return err
			}
		}
	}
}
