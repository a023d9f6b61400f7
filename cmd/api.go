package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/synth/copilot-review-agent/internal/api"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"api"},
		Usage:   "Start the HTTP API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "Listen address (defaults to server.address)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			addr := cfg.Server.Address
			if v := c.String("addr"); v != "" {
				addr = v
			}

			st, err := openStore(c, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			fmt.Printf("Starting API server on %s...\n", addr)

			server := api.NewServer(addr, st)
			return server.Start(c.Context)
		},
	}
}
