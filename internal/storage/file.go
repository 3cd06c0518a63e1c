package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "eventcast/pkg/logx"
)

// fileStore appends one JSON object per line. Running totals are rebuilt by
// replaying the file at open.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	f      *os.File
	enc    *json.Encoder
	totals Totals
}

// line is the on-disk envelope; exactly one of Epoch and Worker is set.
type line struct {
	Epoch  *EpochRecord  `json:"epoch,omitempty"`
	Worker *WorkerRecord `json:"worker,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("journal path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	var t Totals
	if err := replay(path, &t); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("journal replay incomplete", logx.String("path", path), logx.Err(err))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileStore{log: log, f: f, enc: json.NewEncoder(f), totals: t}, nil
}

func replay(path string, t *Totals) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() {
		var l line
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			continue
		}
		t.add(l)
	}
	return sc.Err()
}

func (t *Totals) add(l line) {
	if l.Epoch != nil {
		t.Epochs++
	}
	if l.Worker != nil {
		t.Workers++
		t.Sends += l.Worker.Sends
		t.Bytes += l.Worker.Bytes
	}
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) write(l line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}
	if err := s.enc.Encode(l); err != nil {
		return err
	}
	s.totals.add(l)
	return nil
}

func (s *fileStore) AppendEpoch(_ context.Context, r EpochRecord) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	return s.write(line{Epoch: &r})
}

func (s *fileStore) AppendWorker(_ context.Context, r WorkerRecord) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	return s.write(line{Worker: &r})
}

func (s *fileStore) Totals(context.Context) (Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals, nil
}
