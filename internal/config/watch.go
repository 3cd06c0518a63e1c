package config

import (
	"context"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "eventcast/pkg/logx"
)

// Watcher calls OnChange whenever the content of a file changes.
//
// It watches the parent directory (editors often replace files by rename),
// debounces bursts of events and recreates the fsnotify watcher with a
// jittered backoff if it breaks.
type Watcher struct {
	Path     string
	OnChange func()
	Log      logx.Logger

	// Debounce defaults to 250ms.
	Debounce time.Duration

	mu       sync.Mutex
	lastHash uint64
}

func hashFile(path string) uint64 {
	b, err := os.ReadFile(path)
	if err != nil || len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// Run blocks until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	log := w.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	dir := filepath.Dir(w.Path)
	file := filepath.Base(w.Path)
	delay := w.Debounce
	if delay <= 0 {
		delay = 250 * time.Millisecond
	}

	w.mu.Lock()
	w.lastHash = hashFile(w.Path)
	w.mu.Unlock()

	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		if backoff < restartBackoffMax {
			backoff = min(backoff*2, restartBackoffMax)
		}
		return wait
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(delay, func() {
			if ctx.Err() != nil {
				return
			}
			h := hashFile(w.Path)
			w.mu.Lock()
			unchanged := h == w.lastHash
			w.lastHash = h
			w.mu.Unlock()
			if unchanged {
				log.Debug("events file unchanged; skipping reload", logx.String("path", w.Path))
				return
			}
			log.Info("events file changed", logx.String("path", w.Path))
			if w.OnChange != nil {
				w.OnChange()
			}
		})
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		fw, err := fsnotify.NewWatcher()
		if err != nil {
			log.Warn("events watch init failed", logx.Err(err), logx.String("dir", dir))
			if !sleepCtx(ctx, nextWait()) {
				return nil
			}
			continue
		}
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			log.Warn("events watch add failed", logx.Err(err), logx.String("dir", dir))
			if !sleepCtx(ctx, nextWait()) {
				return nil
			}
			continue
		}

		backoff = restartBackoffBase
		log.Debug("events watcher started", logx.String("dir", dir), logx.String("file", file))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = fw.Close()
				return nil
			case ev, ok := <-fw.Events:
				if !ok {
					broken = true
					break
				}
				if filepath.Base(ev.Name) == file &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					debounce()
				}
			case err, ok := <-fw.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				// Overflow means events were missed; reload once and keep going.
				if strings.Contains(strings.ToLower(err.Error()), "overflow") {
					log.Warn("events watch overflow; forcing reload check", logx.Err(err))
					debounce()
					continue
				}
				log.Warn("events watch error", logx.Err(err), logx.String("dir", dir))
			}
		}

		_ = fw.Close()
		wait := nextWait()
		log.Warn("events watcher stopped; restarting", logx.String("dir", dir), logx.Duration("backoff", wait))
		if !sleepCtx(ctx, wait) {
			return nil
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
