package cmd

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/synth/copilot-review-agent/internal/config"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize a new configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "copilot-review.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "show",
				Usage:  "Show the effective configuration",
				Action: runConfigShow,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration file",
				Action: runConfigValidate,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Created configuration file at %s\n", outputPath)
	return nil
}

// runConfigShow prints the merged configuration the way a config file
// would declare it, so users can see what defaults, file and environment
// resolved to.
func runConfigShow(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("[review]")
	fmt.Printf("base_ref = %q\n", cfg.Review.BaseRef)
	fmt.Printf("head_ref = %q\n", cfg.Review.HeadRef)
	fmt.Printf("token_budget = %d\n", cfg.Review.TokenBudget)
	fmt.Printf("max_files_per_chunk = %d\n", cfg.Review.MaxFilesPerChunk)
	fmt.Printf("context_margin_lines = %d\n", cfg.Review.ContextMarginLines)
	fmt.Printf("chars_per_token = %d\n", cfg.Review.CharsPerToken)
	fmt.Printf("redact_secrets = %t\n", cfg.Review.RedactSecrets)
	fmt.Printf("exclude = %s\n", tomlStrings(cfg.Review.Exclude))
	fmt.Printf("instructions = %q\n", cfg.Review.Instructions)
	fmt.Println()
	fmt.Println("[dedup]")
	fmt.Printf("similarity_threshold = %g\n", cfg.Dedup.SimilarityThreshold)
	fmt.Println()
	fmt.Println("[analyzer]")
	fmt.Printf("command = %s\n", tomlStrings(cfg.Analyzer.Command))
	fmt.Printf("timeout_seconds = %d\n", cfg.Analyzer.TimeoutSeconds)
	fmt.Printf("workers = %d\n", cfg.Analyzer.Workers)
	fmt.Printf("rate_per_second = %g\n", cfg.Analyzer.RatePerSecond)
	fmt.Printf("max_retries = %d\n", cfg.Analyzer.MaxRetries)
	fmt.Println()
	fmt.Println("[storage]")
	fmt.Printf("path = %q\n", cfg.Storage.Path)
	fmt.Println()
	fmt.Println("[server]")
	fmt.Printf("address = %q\n", cfg.Server.Address)
	fmt.Println()
	fmt.Println("[logging]")
	fmt.Printf("level = %q\n", cfg.Logging.Level)
	return nil
}

func tomlStrings(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = fmt.Sprintf("%q", v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func runConfigValidate(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Println("Configuration is valid")
	return nil
}
