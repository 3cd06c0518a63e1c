package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli"
)

var version = "dev"

// -v is --verbose; the version flag moves to -V.
func init() {
	cli.VersionFlag = cli.BoolFlag{Name: "version, V", Usage: "print the version"}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "eventcastd: %s\n", err)
		os.Exit(1)
	}
}
