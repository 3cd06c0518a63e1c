package daemon

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"eventcast/internal/config"
	logx "eventcast/pkg/logx"
)

// cronLogger routes cron's own diagnostics into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Trace("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Warn("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}

// RunReaper posts Reap on every tick of spec (cron fields or a descriptor
// such as "@every 1s") until ctx is canceled. Ticks that find the inbox full
// are dropped.
func RunReaper(ctx context.Context, spec string, to Poster, log logx.Logger) error {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := cron.New(
		cron.WithParser(config.SpecParser),
		cron.WithLogger(cronLogger{log: log}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{log: log})),
	)
	if _, err := c.AddFunc(spec, func() { to.TryPost(Reap) }); err != nil {
		return fmt.Errorf("reap schedule %q: %w", spec, err)
	}
	c.Start()
	log.Debug("reaper started", logx.String("spec", spec))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
