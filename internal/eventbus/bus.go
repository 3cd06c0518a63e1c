// Package eventbus carries daemon lifecycle notifications (epochs started,
// workers finished) from the controller to passive observers such as the
// dispatch journal.
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind names a notification.
type Kind string

const (
	// EpochStarted carries an Epoch.
	EpochStarted Kind = "epoch.started"
	// WorkerFinished carries a WorkerDone.
	WorkerFinished Kind = "worker.finished"
)

// Event is a notification. Publishing never blocks: a subscriber whose
// buffer is full misses the event.
type Event struct {
	Kind Kind
	Time time.Time
	Data any
}

// Epoch describes one generation of workers.
type Epoch struct {
	Instance string
	Number   uint64
	Events   int
	// Reason is "startup", "reload" or "reload-kept" (events file unreadable,
	// previous schedule respawned).
	Reason string
}

// WorkerDone describes a joined worker.
type WorkerDone struct {
	Instance     string
	Epoch        uint64
	Worker       int
	Description  string
	RepeatAfter  time.Duration
	RepeatDuring time.Duration
	Sends        uint64
	Bytes        uint64
	Canceled     bool
	Elapsed      time.Duration
	Err          string
}

type Bus interface {
	Publish(e Event)
	// Subscribe returns a channel receiving events of the given kinds (all
	// kinds when none are given) and a function that closes it.
	Subscribe(buffer int, kinds ...Kind) (ch <-chan Event, unsubscribe func())
	// Dropped counts deliveries lost to full subscriber buffers.
	Dropped() uint64
}

func New() Bus {
	return &memBus{subs: map[uint64]*sub{}}
}

type sub struct {
	ch    chan Event
	kinds map[Kind]struct{}
}

func (s *sub) wants(k Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[k]
	return ok
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]*sub
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	// deliver under the read lock so unsubscribe cannot close a channel mid-send
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !s.wants(e.Kind) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int, kinds ...Kind) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	s := &sub{ch: make(chan Event, buffer)}
	if len(kinds) > 0 {
		s.kinds = make(map[Kind]struct{}, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = struct{}{}
		}
	}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(s.ch)
			b.mu.Unlock()
		})
	}
}

func (b *memBus) Dropped() uint64 { return b.dropped.Load() }
