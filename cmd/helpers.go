package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/synth/copilot-review-agent/internal/config"
	"github.com/synth/copilot-review-agent/internal/logging"
	"github.com/synth/copilot-review-agent/internal/store"
)

// loadConfig loads and validates configuration, then applies the logging
// level. The command-local verbose flag forces debug logging.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level := cfg.Logging.Level
	if c.Bool("verbose") {
		level = "debug"
	}
	logging.Setup(level)

	return cfg, nil
}

// openStore opens the configured SQLite database and applies migrations.
func openStore(c *cli.Context, cfg *config.Config) (store.Store, error) {
	st, err := store.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := st.Migrate(c.Context); err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}
	return st, nil
}
