// Package dispatch runs the periodic broadcast of a single event.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"eventcast/internal/event"
	logx "eventcast/pkg/logx"
)

// Result summarizes a finished worker.
type Result struct {
	Sends    uint64
	Bytes    uint64
	Canceled bool
	Elapsed  time.Duration
}

// Worker repeatedly broadcasts one event. Its inputs are copied at
// construction so nothing it touches belongs to the controller's list.
type Worker struct {
	id      int
	ev      event.Event
	payload []byte
	sock    *SharedSocket
	log     *logx.Sampled
}

// NewWorker copies ev. log may be nil.
func NewWorker(id int, ev event.Event, sock *SharedSocket, log *logx.Sampled) *Worker {
	return &Worker{
		id:      id,
		ev:      ev,
		payload: ev.Payload(),
		sock:    sock,
		log:     log,
	}
}

func (w *Worker) ID() int { return w.id }

// Event returns the worker's private copy of its event.
func (w *Worker) Event() event.Event { return w.ev }

// Run sends the payload, sleeps RepeatAfter, and repeats until RepeatDuring
// has elapsed (never, when it is zero) or ctx is canceled. Cancellation is
// only observed between sends. A send failure ends the worker with ErrSend.
func (w *Worker) Run(ctx context.Context) (Result, error) {
	var res Result
	start := time.Now()

	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			res.Canceled = true
			break
		}

		if err := w.sock.Send(w.payload); err != nil {
			res.Elapsed = time.Since(start)
			return res, fmt.Errorf("%w: worker %d %q: %v", ErrSend, w.id, w.ev.Description, err)
		}
		res.Sends++
		res.Bytes += uint64(len(w.payload))
		if w.log != nil {
			w.log.Debug("event dispatched",
				logx.Int("worker", w.id),
				logx.String("description", w.ev.Description),
				logx.Duration("repeat_during", w.ev.RepeatDuring),
				logx.Duration("repeat_after", w.ev.RepeatAfter))
		}

		timer.Reset(w.ev.RepeatAfter)
		select {
		case <-ctx.Done():
			res.Canceled = true
			res.Elapsed = time.Since(start)
			return res, nil
		case <-timer.C:
		}

		if w.ev.RepeatDuring != 0 && time.Since(start) >= w.ev.RepeatDuring {
			break
		}
	}
	res.Elapsed = time.Since(start)
	return res, nil
}
