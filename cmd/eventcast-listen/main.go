package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"eventcast/internal/config"
	"eventcast/internal/mcast"
	"eventcast/internal/receiver"
	logx "eventcast/pkg/logx"
)

var version = "dev"

// -v is --verbose; the version flag moves to -V.
func init() {
	cli.VersionFlag = cli.BoolFlag{Name: "version, V", Usage: "print the version"}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "eventcast-listen: %s\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	a := cli.NewApp()
	a.Name = "eventcast-listen"
	a.Usage = "print datagrams received on a multicast group"
	a.Version = version
	a.Flags = []cli.Flag{
		cli.StringFlag{Name: "address, a", Usage: "multicast group address", Value: config.DefaultAddress},
		cli.StringFlag{Name: "port, p", Usage: "port or service name", Value: config.DefaultPort},
		cli.StringFlag{Name: "interface, i", Usage: "join the group on this interface"},
		cli.BoolFlag{Name: "verbose, v", Usage: "log at debug level"},
		cli.StringFlag{Name: "log, l", Usage: "also write logs to this file"},
	}
	a.Action = listen
	return a
}

func logConfig(c *cli.Context) logx.Config {
	cfg := logx.Config{Level: "info", Console: true}
	if c.Bool("verbose") {
		cfg.Level = "debug"
	}
	if p := c.String("log"); p != "" {
		cfg.File = logx.FileConfig{Enabled: true, Path: p}
	}
	return cfg
}

func listen(c *cli.Context) error {
	logs, log := logx.New(logConfig(c))
	defer logs.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	f := mcast.NewFactory(nil, log.With(logx.String("comp", "mcast")))
	sock, err := f.NewReceiver(ctx, mcast.ReceiverOptions{
		Address:   c.String("address"),
		Port:      c.String("port"),
		Interface: c.String("interface"),
	})
	if err != nil {
		log.Error("cannot join group", logx.Err(err))
		return cli.NewExitError(err.Error(), 1)
	}
	log.Info("listening", logx.String("group", sock.Destination().String()), logx.String("iface", c.String("interface")))

	r := receiver.New(sock, logx.Stdout(), log.With(logx.String("comp", "receiver")))
	if err := r.Run(ctx); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	return nil
}
