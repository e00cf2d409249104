// Command raisu-cli seals snapshots into envelopes, publishes them and views
// them from a terminal.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"raisu/svc/util"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "raisu-cli",
		Usage: "Seal, publish and view diagnostic snapshots",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			util.InitLogTo(os.Stderr, c.String("log-level"))
			return nil
		},
		Commands: []*cli.Command{
			tokenCommand(),
			sealCommand(),
			openCommand(),
			viewCommand(),
			publishCommand(),
		},
	}
}
