package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/synth/copilot-review-agent/cmd"
)

const (
	version = "0.1.0"
)

func main() {
	app := &cli.App{
		Name:    "copilot-review",
		Usage:   "Batch code review for git branches through a pluggable analyzer",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (default: ./copilot-review.toml, then ~/.copilot-review.toml)",
			},
		},
		Commands: []*cli.Command{
			cmd.ReviewCommand(),
			cmd.RunsCommand(),
			cmd.FindingsCommand(),
			cmd.ConfigCommand(),
			cmd.ServeCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
