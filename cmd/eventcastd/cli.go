package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"eventcast/internal/app"
	"eventcast/internal/config"
	"eventcast/internal/daemon"
	"eventcast/internal/storage"
	logx "eventcast/pkg/logx"
)

const description = `Broadcasts the events listed in an events file to a multicast group.

Each line of the events file reads "<repeat_after> <repeat_during> <description>":
the description is sent every repeat_after seconds for repeat_during seconds
(0 means forever). SIGHUP rereads the file, SIGINT/SIGTERM stop the daemon.`

var daemonFlags = []cli.Flag{
	cli.StringFlag{Name: "config, c", Usage: "settings file (JSON or YAML)"},
	cli.StringFlag{Name: "events, f", Usage: "events file", Value: config.DefaultEvents},
	cli.StringFlag{Name: "address, a", Usage: "multicast group address", Value: config.DefaultAddress},
	cli.StringFlag{Name: "port, p", Usage: "destination port or service name", Value: config.DefaultPort},
	cli.StringFlag{Name: "interface, i", Usage: "outbound interface name"},
	cli.IntFlag{Name: "ttl, t", Usage: "multicast TTL / hop limit", Value: config.DefaultTTL},
	cli.BoolFlag{Name: "disable-loopback", Usage: "do not deliver datagrams to local listeners"},
	cli.BoolFlag{Name: "daemonize, d", Usage: "detach and run in the background"},
	cli.BoolFlag{Name: "verbose, v", Usage: "log at debug level"},
	cli.StringFlag{Name: "log, l", Usage: "also write logs to this file"},
	cli.StringFlag{Name: "journal", Usage: "record epochs and sends in this file (.jsonl for JSON Lines, sqlite otherwise)"},
	cli.BoolFlag{Name: "watch", Usage: "reload when the events file changes"},
}

func newApp() *cli.App {
	a := cli.NewApp()
	a.Name = "eventcastd"
	a.Usage = "multicast event broadcaster"
	a.Version = version
	a.Description = description
	a.Flags = daemonFlags
	a.Action = runDaemon
	a.Commands = []cli.Command{
		{
			Name:      "journal",
			Usage:     "print totals recorded in a dispatch journal",
			ArgsUsage: "<path>",
			Action:    printJournal,
		},
	}
	return a
}

// loadSettings reads the settings file, then applies explicitly set flags.
func loadSettings(c *cli.Context) (*config.Settings, error) {
	s, err := config.Load(afero.NewOsFs(), c.String("config"))
	if err != nil {
		return nil, err
	}
	if c.IsSet("events") {
		s.Events = c.String("events")
	}
	if c.IsSet("address") {
		s.Multicast.Address = c.String("address")
	}
	if c.IsSet("port") {
		s.Multicast.Port = c.String("port")
	}
	if c.IsSet("interface") {
		s.Multicast.Interface = c.String("interface")
	}
	if c.IsSet("ttl") {
		s.Multicast.TTL = c.Int("ttl")
	}
	if c.Bool("disable-loopback") {
		s.Multicast.Loopback = false
	}
	if c.Bool("verbose") {
		s.Logging.Level = "debug"
	}
	if p := c.String("log"); p != "" {
		s.Logging.File = config.LoggingFile{Enabled: true, Path: p}
	}
	if p := c.String("journal"); p != "" {
		s.Daemon.Journal = config.JournalSettings{Driver: journalDriver(p), Path: p}
	}
	if c.Bool("watch") {
		s.Daemon.WatchEvents = true
	}
	return s, s.Validate()
}

func journalDriver(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".jsonl") {
		return "file"
	}
	return "sqlite"
}

func runDaemon(c *cli.Context) error {
	s, err := loadSettings(c)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	if c.Bool("daemonize") && !daemon.IsDaemonChild() {
		boot := logx.NewConsole(s.Logging.Level).With(logx.String("comp", "watchdog"))
		w := &daemon.Watchdog{Args: os.Args[1:], Grace: s.StartupGrace(), Log: boot}
		if _, err := w.Start(context.Background()); err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		return nil
	}

	// Subscribe before opening anything so early signals are queued.
	sigs := daemon.NotifySignals()
	defer sigs.Stop()

	logs, log := app.Logging(s)
	defer logs.Close()

	a, err := app.New(context.Background(), s, log, app.WithSignals(sigs))
	if err != nil {
		log.Error("startup failed", logx.Err(err))
		return cli.NewExitError(err.Error(), 1)
	}
	if err := a.Run(context.Background()); err != nil {
		log.Error("daemon failed", logx.Err(err))
		return cli.NewExitError(err.Error(), 1)
	}
	return nil
}

func printJournal(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.NewExitError("journal path required", 1)
	}
	if _, err := os.Stat(path); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	st, err := storage.Open(storage.Config{Driver: journalDriver(path), Path: path}, logx.Nop())
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer st.Close()

	t, err := st.Totals(context.Background())
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Fprintf(c.App.Writer, "epochs:    %s\nworkers:   %s\ndatagrams: %s\nsent:      %s\n",
		humanize.Comma(int64(t.Epochs)),
		humanize.Comma(int64(t.Workers)),
		humanize.Comma(int64(t.Sends)),
		humanize.Bytes(t.Bytes))
	return nil
}
