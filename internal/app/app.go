// Package app wires the broadcast daemon together: sender socket, journal,
// controller and the helper goroutines that feed it.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventcast/internal/config"
	"eventcast/internal/daemon"
	"eventcast/internal/dispatch"
	"eventcast/internal/eventbus"
	"eventcast/internal/mcast"
	"eventcast/internal/runtime/supervisor"
	"eventcast/internal/storage"
	logx "eventcast/pkg/logx"
)

const stopTimeout = 5 * time.Second

type App struct {
	settings *config.Settings
	instance string

	log   logx.Logger
	sigs  *daemon.Signals
	sock  *mcast.Socket
	bus   eventbus.Bus
	store storage.Store
	sd    *daemon.Systemd
	ctrl  *daemon.Controller
}

// New subscribes to control signals, then opens the sender socket and the
// journal. Signals are queued until Run forwards them.
func New(ctx context.Context, s *config.Settings, log logx.Logger, opts ...Option) (*App, error) {
	o := options{notifier: true}
	for _, fn := range opts {
		fn(&o)
	}
	if o.signals == nil {
		o.signals = daemon.NotifySignals()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	instance := uuid.NewString()
	log = log.With(logx.String("comp", "app"))

	factory := mcast.NewFactory(nil, log.With(logx.String("comp", "mcast")))
	sock, err := factory.NewSender(ctx, senderOptions(s))
	if err != nil {
		o.signals.Stop()
		return nil, err
	}

	var store storage.Store
	if sc, enabled := mapStorageConfig(s); enabled {
		store, err = storage.Open(sc, log.With(logx.String("comp", "journal")))
		if err != nil {
			_ = sock.Close()
			o.signals.Stop()
			return nil, fmt.Errorf("open journal: %w", err)
		}
		log.Info("journal enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	a := &App{
		settings: s,
		instance: instance,
		log:      log,
		sigs:     o.signals,
		sock:     sock,
		bus:      eventbus.New(),
		store:    store,
	}
	deps := &daemon.Dependencies{Bus: a.bus}
	if o.notifier {
		a.sd = daemon.NewSystemd(log.With(logx.String("comp", "systemd")))
		deps.Notifier = a.sd
	}
	var w dispatch.PacketWriter = sock.Conn()
	if o.wrapWriter != nil {
		w = o.wrapWriter(w)
	}
	a.ctrl = daemon.New(daemon.Config{
		EventsPath:      s.Events,
		Instance:        instance,
		DispatchLogRate: s.Daemon.DispatchLogRate,
	}, dispatch.NewSharedSocket(w, sock.Destination()), sock, deps, log.With(logx.String("comp", "daemon")))

	log.Info("sender ready",
		logx.String("instance", instance),
		logx.String("group", sock.Destination().String()),
		logx.Bool("ipv6", sock.IPv6()),
		logx.Int("ttl", s.Multicast.TTL))
	return a, nil
}

// Controller exposes the control loop, mainly for posting messages.
func (a *App) Controller() *daemon.Controller { return a.ctrl }

// Run blocks until the controller exits: Shutdown (signal or ctx), a failed
// initial load, a send failure or a failed helper goroutine. The socket is
// closed on return.
func (a *App) Run(ctx context.Context) error {
	var recorded chan struct{}
	var unsub func()
	if a.store != nil {
		var ch <-chan eventbus.Event
		ch, unsub = a.bus.Subscribe(256, eventbus.EpochStarted, eventbus.WorkerFinished)
		recorded = make(chan struct{})
		go func() {
			defer close(recorded)
			storage.Record(a.store, ch, a.log.With(logx.String("comp", "journal")))
		}()
	}

	// A failing helper takes the daemon down with it.
	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true))
	defer a.sigs.Stop()
	sup.Go("signals", func(c context.Context) error {
		return a.sigs.Forward(c, a.ctrl, a.log)
	})
	sup.Go("reaper", func(c context.Context) error {
		return daemon.RunReaper(c, a.settings.Daemon.ReapEvery, a.ctrl, a.log.With(logx.String("comp", "reaper")))
	})
	if a.sd != nil {
		sup.GoRestart("systemd.watchdog", a.sd.RunWatchdog, supervisor.WithMaxRestarts(5))
	}
	if a.settings.Daemon.WatchEvents {
		w := &config.Watcher{
			Path: a.settings.Events,
			Log:  a.log.With(logx.String("comp", "watch")),
			OnChange: func() {
				if !a.ctrl.TryPost(daemon.Reload) {
					a.log.Warn("reload request dropped, control queue full")
				}
			},
		}
		sup.Go("events.watch", w.Run)
	}

	runErr := a.ctrl.Run(sup.Context())
	if runErr == nil && ctx.Err() == nil {
		// Not a signal or caller cancellation: report the helper that failed.
		runErr = sup.Err()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := sup.Stop(stopCtx); err != nil && err != runErr {
		a.log.Warn("helpers stopped with error", logx.Err(err))
	}

	if a.store != nil {
		unsub()
		<-recorded
		if t, err := a.store.Totals(stopCtx); err == nil {
			a.log.Debug("journal totals",
				logx.Uint64("epochs", t.Epochs),
				logx.Uint64("workers", t.Workers),
				logx.Uint64("sends", t.Sends))
		}
		if err := a.store.Close(); err != nil {
			a.log.Warn("journal close failed", logx.Err(err))
		}
	}
	return runErr
}
