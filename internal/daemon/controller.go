// Package daemon drives the broadcast daemon: the control loop that owns the
// schedule and its workers, the OS signal and timer sources feeding it, and
// the detached-start watchdog.
package daemon

import (
	"context"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"eventcast/internal/config"
	"eventcast/internal/dispatch"
	"eventcast/internal/event"
	"eventcast/internal/eventbus"
	logx "eventcast/pkg/logx"
)

// Loader reads the events file into a fresh list.
type Loader func(path string) (*event.List, error)

type Config struct {
	EventsPath string
	// Instance tags log lines and journal records. Empty generates a UUID.
	Instance string
	// DispatchLogRate caps per-send debug lines per second. 0 disables them.
	DispatchLogRate int
}

// Dependencies are optional collaborators. Nil fields get defaults: the
// events file is read from the OS filesystem, no bus, no service manager.
type Dependencies struct {
	Load     Loader
	Bus      eventbus.Bus
	Notifier Notifier
}

type handle struct {
	w       *dispatch.Worker
	cancel  context.CancelFunc
	done    chan struct{}
	res     dispatch.Result
	err     error
	running bool
}

// Controller owns the shared socket, the current event list and one handle
// per worker. Everything but the message channels belongs to the goroutine
// executing Run.
type Controller struct {
	cfg    Config
	log    logx.Logger
	dlog   *logx.Sampled
	load   Loader
	bus    eventbus.Bus
	notify Notifier

	sock   *dispatch.SharedSocket
	closer io.Closer

	msgs  chan Message
	fatal chan error
	done  chan struct{}

	state   State
	list    *event.List
	handles []*handle
	epoch   uint64
	sends   uint64
	bytes   uint64
}

// New builds a controller around an already configured socket. closer is
// closed once when Run returns; it may be nil.
func New(cfg Config, sock *dispatch.SharedSocket, closer io.Closer, deps *Dependencies, log logx.Logger) *Controller {
	var d Dependencies
	if deps != nil {
		d = *deps
	}
	if cfg.Instance == "" {
		cfg.Instance = uuid.NewString()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("instance", cfg.Instance))
	if d.Load == nil {
		fs := afero.NewOsFs()
		d.Load = func(path string) (*event.List, error) {
			return config.ParseFile(fs, path, log.With(logx.String("comp", "events")))
		}
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}

	c := &Controller{
		cfg:    cfg,
		log:    log,
		load:   d.Load,
		bus:    d.Bus,
		notify: d.Notifier,
		sock:   sock,
		closer: closer,
		msgs:   make(chan Message, 8),
		fatal:  make(chan error, 1),
		done:   make(chan struct{}),
	}
	if cfg.DispatchLogRate > 0 {
		c.dlog = logx.NewSampled(log.With(logx.String("comp", "dispatch")), cfg.DispatchLogRate)
	}
	return c
}

// Instance returns the id used in logs and journal records.
func (c *Controller) Instance() string { return c.cfg.Instance }

// Done is closed when Run returns.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Post queues m, blocking while the queue is full. It returns ErrStopped once
// Run has returned.
func (c *Controller) Post(ctx context.Context, m Message) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.msgs <- m:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPost queues m unless the queue is full. Used for periodic messages that
// are safe to coalesce.
func (c *Controller) TryPost(m Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.msgs <- m:
		return true
	default:
		return false
	}
}

// Run loads the schedule, spawns the workers and consumes control messages
// until Shutdown, ctx cancellation or a worker failure. A failed initial load
// and any send failure are returned; everything else yields nil. The socket
// is closed before Run returns.
func (c *Controller) Run(ctx context.Context) (err error) {
	defer close(c.done)
	defer func() {
		if c.closer == nil {
			return
		}
		if cerr := c.closer.Close(); cerr != nil {
			if err == nil {
				err = fmt.Errorf("close socket: %w", cerr)
			} else {
				err = multierror.Append(err, fmt.Errorf("close socket: %w", cerr))
			}
		}
	}()

	initial := true
	c.state = StateRebuild
	for {
		switch c.state {
		case StateRebuild:
			if err := c.rebuild(ctx, initial); err != nil {
				return err
			}
			initial = false
			c.notify.Ready()
			c.notify.Status(fmt.Sprintf("epoch %d: %d events", c.epoch, len(c.handles)))
			c.state = StateRunning

		case StateRunning:
			var m Message
			select {
			case <-ctx.Done():
				m = Shutdown
			case m = <-c.msgs:
			case ferr := <-c.fatal:
				return c.abort(ferr)
			}
			c.log.Debug("control message", logx.String("msg", m.String()), logx.Uint64("epoch", c.epoch))

			switch m {
			case Shutdown:
				c.notify.Stopping()
				if serr := c.stopAll(); serr != nil {
					c.drop()
					return serr
				}
				c.state = StateExit
			case Reload:
				c.notify.Reloading()
				if serr := c.stopAll(); serr != nil {
					c.drop()
					return serr
				}
				c.state = StateRebuild
			case Reap:
				if rerr := c.reap(); rerr != nil {
					return c.abort(rerr)
				}
			}

		case StateExit:
			c.drop()
			c.log.Info("daemon stopped",
				logx.Uint64("epochs", c.epoch),
				logx.String("datagrams", humanize.Comma(int64(c.sends))),
				logx.String("sent", humanize.Bytes(c.bytes)))
			return nil
		}
	}
}

// rebuild replaces the list and spawns a new epoch. Only the initial load can
// fail; a failed reload respawns the previous schedule.
func (c *Controller) rebuild(ctx context.Context, initial bool) error {
	reason := "reload"
	if initial {
		reason = "startup"
	}

	next, err := c.load(c.cfg.EventsPath)
	switch {
	case err != nil && (initial || c.list == nil):
		return fmt.Errorf("load events: %w", err)
	case err != nil:
		c.log.Warn("reload failed, keeping previous schedule", logx.String("path", c.cfg.EventsPath), logx.Err(err))
		reason = "reload-kept"
	default:
		if c.list != nil {
			c.list.Destroy()
		}
		c.list = next
	}

	c.epoch++
	c.handles = make([]*handle, 0, c.list.Len())
	c.publish(eventbus.EpochStarted, eventbus.Epoch{
		Instance: c.cfg.Instance,
		Number:   c.epoch,
		Events:   c.list.Len(),
		Reason:   reason,
	})

	c.list.Each(func(ev event.Event) bool {
		c.spawn(ctx, ev)
		return true
	})
	c.log.Info("schedule started",
		logx.Uint64("epoch", c.epoch),
		logx.Int("events", len(c.handles)),
		logx.String("reason", reason))
	if len(c.handles) == 0 {
		c.log.Warn("schedule is empty", logx.String("path", c.cfg.EventsPath))
	}
	return nil
}

func (c *Controller) spawn(ctx context.Context, ev event.Event) {
	wctx, cancel := context.WithCancel(ctx)
	h := &handle{
		w:       dispatch.NewWorker(len(c.handles), ev, c.sock, c.dlog),
		cancel:  cancel,
		done:    make(chan struct{}),
		running: true,
	}
	c.handles = append(c.handles, h)

	go func() {
		defer close(h.done)
		h.res, h.err = h.w.Run(wctx)
		if h.err != nil {
			select {
			case c.fatal <- h.err:
			default:
			}
		}
	}()
}

// join waits for h and records its result. h must have been canceled or
// already finished.
func (c *Controller) join(h *handle) {
	<-h.done
	h.cancel()
	h.running = false
	c.sends += h.res.Sends
	c.bytes += h.res.Bytes

	ev := h.w.Event()
	canceled := "no"
	if h.res.Canceled {
		canceled = "yes"
	}
	c.log.Debug("worker joined",
		logx.Int("worker", h.w.ID()),
		logx.String("description", ev.Description),
		logx.String("canceled", canceled),
		logx.Uint64("sends", h.res.Sends),
		logx.Duration("elapsed", h.res.Elapsed))

	done := eventbus.WorkerDone{
		Instance:     c.cfg.Instance,
		Epoch:        c.epoch,
		Worker:       h.w.ID(),
		Description:  ev.Description,
		RepeatAfter:  ev.RepeatAfter,
		RepeatDuring: ev.RepeatDuring,
		Sends:        h.res.Sends,
		Bytes:        h.res.Bytes,
		Canceled:     h.res.Canceled,
		Elapsed:      h.res.Elapsed,
	}
	if h.err != nil {
		done.Err = h.err.Error()
	}
	c.publish(eventbus.WorkerFinished, done)
}

// stopAll cancels every live worker, then joins them all. Send failures seen
// while joining are returned.
func (c *Controller) stopAll() error {
	for _, h := range c.handles {
		if h.running {
			h.cancel()
		}
	}
	var result *multierror.Error
	for _, h := range c.handles {
		if !h.running {
			continue
		}
		c.join(h)
		if h.err != nil {
			result = multierror.Append(result, h.err)
		}
	}
	return result.ErrorOrNil()
}

// reap joins, without canceling, the workers that finished on their own.
func (c *Controller) reap() error {
	var (
		reaped int
		live   int
		result *multierror.Error
	)
	for _, h := range c.handles {
		if !h.running {
			continue
		}
		select {
		case <-h.done:
			c.join(h)
			reaped++
			if h.err != nil {
				result = multierror.Append(result, h.err)
			}
		default:
			live++
		}
	}
	if reaped > 0 {
		c.log.Debug("reaped finished workers",
			logx.Int("reaped", reaped),
			logx.Int("live", live),
			logx.String("sent", humanize.Bytes(c.bytes)))
	}
	return result.ErrorOrNil()
}

// abort stops every worker after a failure and returns err. Further errors
// found while joining are only logged.
func (c *Controller) abort(err error) error {
	c.log.Error("worker failed, stopping daemon", logx.Err(err))
	c.notify.Stopping()
	if serr := c.stopAll(); serr != nil {
		c.log.Debug("stop after failure", logx.Err(serr))
	}
	c.drop()
	return err
}

// drop discards per-epoch state. All workers must be joined.
func (c *Controller) drop() {
	if c.list != nil {
		c.list.Destroy()
	}
	c.handles = nil
}

func (c *Controller) publish(kind eventbus.Kind, data any) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(eventbus.Event{Kind: kind, Data: data})
}
