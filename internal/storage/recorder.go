package storage

import (
	"context"
	"time"

	"eventcast/internal/eventbus"
	logx "eventcast/pkg/logx"
)

const writeTimeout = 2 * time.Second

// Record persists bus notifications until events is closed. Write failures
// are logged and do not stop the loop.
func Record(st Store, events <-chan eventbus.Event, log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	for e := range events {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := recordOne(ctx, st, e)
		cancel()
		if err != nil {
			log.Warn("journal write failed", logx.String("kind", string(e.Kind)), logx.Err(err))
		}
	}
}

func recordOne(ctx context.Context, st Store, e eventbus.Event) error {
	switch d := e.Data.(type) {
	case eventbus.Epoch:
		return st.AppendEpoch(ctx, EpochRecord{
			At:       e.Time,
			Instance: d.Instance,
			Epoch:    d.Number,
			Events:   d.Events,
			Reason:   d.Reason,
		})
	case eventbus.WorkerDone:
		return st.AppendWorker(ctx, WorkerRecord{
			At:           e.Time,
			Instance:     d.Instance,
			Epoch:        d.Epoch,
			Worker:       d.Worker,
			Description:  d.Description,
			RepeatAfter:  d.RepeatAfter,
			RepeatDuring: d.RepeatDuring,
			Sends:        d.Sends,
			Bytes:        d.Bytes,
			Canceled:     d.Canceled,
			Elapsed:      d.Elapsed,
			Error:        d.Err,
		})
	}
	return nil
}
