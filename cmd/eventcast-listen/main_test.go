package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/urfave/cli"

	logx "eventcast/pkg/logx"
)

func TestAppFlagSet(t *testing.T) {
	t.Parallel()
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"eventcast-listen", "--help"}, "--verbose, -v"},
		{[]string{"eventcast-listen", "--help"}, "--version, -V"},
		{[]string{"eventcast-listen", "-V"}, "eventcast-listen version " + version},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		a := newApp()
		a.Writer = &out
		if err := a.Run(tt.args); err != nil {
			t.Fatalf("Run(%v) = %v", tt.args, err)
		}
		if !strings.Contains(out.String(), tt.want) {
			t.Fatalf("Run(%v) output %q does not contain %q", tt.args, out.String(), tt.want)
		}
	}
}

func TestLogConfigFromFlags(t *testing.T) {
	t.Parallel()
	var got logx.Config
	a := newApp()
	a.Writer = &bytes.Buffer{}
	a.Action = func(c *cli.Context) error {
		got = logConfig(c)
		return nil
	}
	if err := a.Run([]string{"eventcast-listen", "-v", "-l", "listen.log", "-a", "239.1.1.1"}); err != nil {
		t.Fatalf("Run = %v", err)
	}
	if got.Level != "debug" {
		t.Fatalf("Level = %q, want debug", got.Level)
	}
	if !got.File.Enabled || got.File.Path != "listen.log" {
		t.Fatalf("File = %+v, want listen.log enabled", got.File)
	}
}
