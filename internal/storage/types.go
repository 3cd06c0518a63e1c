package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("journal disabled")
	ErrClosed   = errors.New("journal closed")
)

// Config selects a driver. Empty or "none" disables the journal.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// EpochRecord is written when a generation of workers is spawned.
type EpochRecord struct {
	At       time.Time `json:"at"`
	Instance string    `json:"instance"`
	Epoch    uint64    `json:"epoch"`
	Events   int       `json:"events"`
	Reason   string    `json:"reason"`
}

// WorkerRecord is written when a worker has been joined.
type WorkerRecord struct {
	At           time.Time     `json:"at"`
	Instance     string        `json:"instance"`
	Epoch        uint64        `json:"epoch"`
	Worker       int           `json:"worker"`
	Description  string        `json:"description"`
	RepeatAfter  time.Duration `json:"repeat_after"`
	RepeatDuring time.Duration `json:"repeat_during"`
	Sends        uint64        `json:"sends"`
	Bytes        uint64        `json:"bytes"`
	Canceled     bool          `json:"canceled"`
	Elapsed      time.Duration `json:"elapsed"`
	Error        string        `json:"error,omitempty"`
}

// Totals aggregates the whole journal.
type Totals struct {
	Epochs  uint64
	Workers uint64
	Sends   uint64
	Bytes   uint64
}

// Store is the journal API used by the daemon.
type Store interface {
	AppendEpoch(ctx context.Context, r EpochRecord) error
	AppendWorker(ctx context.Context, r WorkerRecord) error
	Totals(ctx context.Context) (Totals, error)
	Close() error
}
