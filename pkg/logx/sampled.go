package logx

import (
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Sampled puts a token bucket in front of a Logger. Hot paths (per-datagram
// lines, receive error loops) log through it.
type Sampled struct {
	log     Logger
	lim     *rate.Limiter
	dropped atomic.Uint64
}

// NewSampled allows perSec lines per second with an equal burst.
func NewSampled(log Logger, perSec int) *Sampled {
	perSec = max(1, perSec)
	return &Sampled{log: log, lim: rate.NewLimiter(rate.Limit(perSec), perSec)}
}

// Dropped returns the number of lines suppressed since the last written one.
func (s *Sampled) Dropped() uint64 { return s.dropped.Load() }

func (s *Sampled) Debug(msg string, fields ...Field) { s.sample(LevelDebug, msg, fields) }
func (s *Sampled) Warn(msg string, fields ...Field)  { s.sample(LevelWarn, msg, fields) }

func (s *Sampled) sample(level Level, msg string, fields []Field) {
	// Disabled levels do not consume tokens.
	if !s.log.Enabled(level) {
		return
	}
	if !s.lim.Allow() {
		s.dropped.Add(1)
		return
	}
	if n := s.dropped.Swap(0); n > 0 {
		fields = append(fields, Uint64("suppressed", n))
	}
	s.log.write(2, level, msg, fields)
}
