package config

// Settings is the daemon settings file (JSON or YAML).
//
// Every field has a default (see Defaults); a settings file only needs to
// name what it changes. Command-line flags are applied on top.
type Settings struct {
	// Events is the path of the line-based events file.
	Events string `json:"events"`

	Multicast MulticastSettings `json:"multicast"`
	Daemon    DaemonSettings    `json:"daemon"`
	Logging   LoggingSettings   `json:"logging"`
}

// MulticastSettings describes the destination group and sender socket.
//
// Example:
//
//	"multicast": { "address": "ff02::2:3:2:4", "port": "8000", "ttl": 1 }
type MulticastSettings struct {
	Address   string `json:"address"`
	Port      string `json:"port"`
	Interface string `json:"interface,omitempty"`
	TTL       int    `json:"ttl"`
	Loopback  bool   `json:"loopback"`
}

// DaemonSettings controls the control loop and its helpers.
type DaemonSettings struct {
	// ReapEvery is a cron spec (5/6 fields or a descriptor such as
	// "@every 1s") for the finished-worker reap trigger.
	ReapEvery string `json:"reap_every"`

	// WatchEvents reloads the schedule whenever the events file changes,
	// in addition to SIGHUP.
	WatchEvents bool `json:"watch_events,omitempty"`

	// StartupGrace is a Go duration string. With --daemonize the launcher
	// assumes the daemon is healthy once it survived this long.
	StartupGrace string `json:"startup_grace"`

	Journal JournalSettings `json:"journal"`

	// DispatchLogRate caps per-send debug lines per second.
	DispatchLogRate int `json:"dispatch_log_rate,omitempty"`
}

// JournalSettings selects the dispatch journal backend.
//
// Driver is "sqlite", "file" (JSON Lines) or empty/"none" to disable.
type JournalSettings struct {
	Driver string `json:"driver,omitempty"`
	Path   string `json:"path,omitempty"`
}

type LoggingSettings struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}
