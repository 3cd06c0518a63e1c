package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/afero"

	logx "eventcast/pkg/logx"
)

// Defaults mirror the historical command-line defaults of the broadcaster.
const (
	DefaultEvents       = "etc/events.txt"
	DefaultAddress      = "ff02::2:3:2:4"
	DefaultPort         = "8000"
	DefaultTTL          = 1
	DefaultReapEvery    = "@every 1s"
	DefaultStartupGrace = 2 * time.Second
	DefaultLogRate      = 20
)

// SpecParser accepts 5-field and 6-field (with seconds) cron specs and
// descriptors such as "@every 1s".
var SpecParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Defaults returns settings used when no settings file is given.
func Defaults() *Settings {
	return &Settings{
		Events: DefaultEvents,
		Multicast: MulticastSettings{
			Address:  DefaultAddress,
			Port:     DefaultPort,
			TTL:      DefaultTTL,
			Loopback: true,
		},
		Daemon: DaemonSettings{
			ReapEvery:       DefaultReapEvery,
			StartupGrace:    DefaultStartupGrace.String(),
			DispatchLogRate: DefaultLogRate,
		},
		Logging: LoggingSettings{
			Level:   "info",
			Console: true,
		},
	}
}

// Load reads and validates a settings file. An empty path yields Defaults().
// Fields omitted from the file keep their defaults.
func Load(fs afero.Fs, path string) (*Settings, error) {
	s := Defaults()
	if strings.TrimSpace(path) == "" {
		return s, nil
	}
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	jb, err := toJSON(path, b)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("%s: trailing data", path)
		}
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate checks every field that could only fail later, at runtime.
func (s *Settings) Validate() error {
	if strings.TrimSpace(s.Events) == "" {
		return fmt.Errorf("%w: events path is required", ErrInvalidSettings)
	}
	if strings.TrimSpace(s.Multicast.Address) == "" {
		return fmt.Errorf("%w: multicast.address is required", ErrInvalidSettings)
	}
	if strings.TrimSpace(s.Multicast.Port) == "" {
		return fmt.Errorf("%w: multicast.port is required", ErrInvalidSettings)
	}
	if s.Multicast.TTL < 0 || s.Multicast.TTL > 255 {
		return fmt.Errorf("%w: multicast.ttl must be within 0..255, got %d", ErrInvalidSettings, s.Multicast.TTL)
	}
	if _, err := SpecParser.Parse(s.Daemon.ReapEvery); err != nil {
		return fmt.Errorf("%w: daemon.reap_every: %v", ErrInvalidSettings, err)
	}
	if _, err := parseDurationField("daemon.startup_grace", s.Daemon.StartupGrace); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if s.Daemon.DispatchLogRate < 0 {
		return fmt.Errorf("%w: daemon.dispatch_log_rate must be >= 0", ErrInvalidSettings)
	}
	switch strings.ToLower(strings.TrimSpace(s.Daemon.Journal.Driver)) {
	case "", "none":
	case "sqlite", "sqlite3", "file":
		if strings.TrimSpace(s.Daemon.Journal.Path) == "" {
			return fmt.Errorf("%w: daemon.journal.path is required for driver %q", ErrInvalidSettings, s.Daemon.Journal.Driver)
		}
	default:
		return fmt.Errorf("%w: daemon.journal.driver: unknown driver %q", ErrInvalidSettings, s.Daemon.Journal.Driver)
	}
	if !logx.ValidLevel(s.Logging.Level) {
		return fmt.Errorf("%w: logging.level: unknown level %q", ErrInvalidSettings, s.Logging.Level)
	}
	return nil
}

// StartupGrace returns the parsed watchdog grace period.
func (s *Settings) StartupGrace() time.Duration {
	d, err := parseDurationField("daemon.startup_grace", s.Daemon.StartupGrace)
	if err != nil || d <= 0 {
		return DefaultStartupGrace
	}
	return d
}

// LogConfig maps the logging section onto the log service config.
func (s *Settings) LogConfig() logx.Config {
	return logx.Config{
		Level:   s.Logging.Level,
		Console: s.Logging.Console,
		File: logx.FileConfig{
			Enabled: s.Logging.File.Enabled,
			Path:    s.Logging.File.Path,
		},
	}
}

func parseDurationField(path, raw string) (time.Duration, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}
