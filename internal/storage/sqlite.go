package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "eventcast/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("journal path is required for sqlite driver")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	timeout := cfg.BusyTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", timeout.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendEpoch(ctx context.Context, r EpochRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO epochs(instance, epoch, at, events, reason) VALUES(?,?,?,?,?)
		 ON CONFLICT(instance, epoch) DO UPDATE SET at=excluded.at, events=excluded.events, reason=excluded.reason`,
		r.Instance, int64(r.Epoch), r.At.Format(time.RFC3339Nano), r.Events, r.Reason,
	)
	return err
}

func (s *sqliteStore) AppendWorker(ctx context.Context, r WorkerRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workers(instance, epoch, worker, at, description, repeat_after_ms, repeat_during_ms,
		                     sends, bytes, canceled, elapsed_ms, err)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.Instance, int64(r.Epoch), r.Worker, r.At.Format(time.RFC3339Nano), r.Description,
		r.RepeatAfter.Milliseconds(), r.RepeatDuring.Milliseconds(),
		int64(r.Sends), int64(r.Bytes), r.Canceled, r.Elapsed.Milliseconds(), nullStr(r.Error),
	)
	return err
}

func (s *sqliteStore) Totals(ctx context.Context) (Totals, error) {
	if s == nil || s.db == nil {
		return Totals{}, ErrDisabled
	}
	var t Totals
	var epochs, workers, sends, bytes int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM epochs`).Scan(&epochs); err != nil {
		return t, err
	}
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(sends), 0), COALESCE(SUM(bytes), 0) FROM workers`,
	).Scan(&workers, &sends, &bytes)
	if err != nil {
		return t, err
	}
	t.Epochs, t.Workers, t.Sends, t.Bytes = uint64(epochs), uint64(workers), uint64(sends), uint64(bytes)
	return t, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
