// Package config loads the application configuration from defaults, an
// optional TOML file and COPILOTREVIEW_ environment variables, in that
// order of increasing precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/synth/copilot-review-agent/internal/chunk"
	"github.com/synth/copilot-review-agent/internal/dedup"
)

// Config represents the application configuration.
type Config struct {
	Review   ReviewConfig   `koanf:"review"`
	Dedup    DedupConfig    `koanf:"dedup"`
	Analyzer AnalyzerConfig `koanf:"analyzer"`
	Storage  StorageConfig  `koanf:"storage"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ReviewConfig controls diff parsing, context rendering and chunking.
type ReviewConfig struct {
	BaseRef            string   `koanf:"base_ref"`
	HeadRef            string   `koanf:"head_ref"`
	TokenBudget        int      `koanf:"token_budget"`
	MaxFilesPerChunk   int      `koanf:"max_files_per_chunk"`
	ContextMarginLines int      `koanf:"context_margin_lines"`
	CharsPerToken      int      `koanf:"chars_per_token"`
	Exclude            []string `koanf:"exclude"`
	RedactSecrets      bool     `koanf:"redact_secrets"`
	Instructions       string   `koanf:"instructions"`
}

// DedupConfig controls finding deduplication.
type DedupConfig struct {
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
}

// AnalyzerConfig describes the external analyzer command and how hard
// to drive it.
type AnalyzerConfig struct {
	Command        []string `koanf:"command"`
	TimeoutSeconds int      `koanf:"timeout_seconds"`
	Workers        int      `koanf:"workers"`
	RatePerSecond  float64  `koanf:"rate_per_second"`
	MaxRetries     int      `koanf:"max_retries"`
}

// StorageConfig locates the run database.
type StorageConfig struct {
	Path string `koanf:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address string `koanf:"address"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level string `koanf:"level"`
}

// Load reads configuration from defaults, the TOML file at configPath
// (or the first default location that exists when configPath is empty)
// and finally COPILOTREVIEW_ environment variables. Environment keys use
// a double underscore between sections, e.g.
// COPILOTREVIEW_REVIEW__TOKEN_BUDGET.
func Load(configPath string) (*Config, error) {
	var k = koanf.New(".")

	k.Load(confmap.Provider(map[string]interface{}{
		"review.base_ref":             "main",
		"review.head_ref":             "HEAD",
		"review.token_budget":         chunk.DefaultTokenBudget,
		"review.max_files_per_chunk":  chunk.DefaultMaxFilesPerChunk,
		"review.context_margin_lines": 12,
		"review.chars_per_token":      chunk.DefaultCharsPerToken,
		"review.redact_secrets":       true,
		"dedup.similarity_threshold":  dedup.DefaultSimilarityThreshold,
		"analyzer.timeout_seconds":    120,
		"analyzer.workers":            4,
		"analyzer.rate_per_second":    0.0,
		"analyzer.max_retries":        2,
		"storage.path":                "./copilot-review.db",
		"server.address":              ":8080",
		"logging.level":               "info",
	}, "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		defaultPaths := []string{"./copilot-review.toml", "$HOME/.copilot-review.toml"}
		for _, path := range defaultPaths {
			path = os.ExpandEnv(path)
			if _, err := os.Stat(path); err == nil {
				if err := k.Load(file.Provider(path), toml.Parser()); err == nil {
					break
				}
			}
		}
	}

	k.Load(env.Provider("COPILOTREVIEW_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "COPILOTREVIEW_")
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil)

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return &config, nil
}

// InitConfig writes a sample configuration file to configPath.
func InitConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("configuration file already exists at %s", configPath)
	}

	sampleConfig := `# Copilot Review Agent configuration
#
# Every key can also be set through the environment with the
# COPILOTREVIEW_ prefix and a double underscore between sections,
# e.g. COPILOTREVIEW_REVIEW__TOKEN_BUDGET=30000.

[review]
base_ref = "main"
head_ref = "HEAD"
token_budget = 20000
max_files_per_chunk = 8
context_margin_lines = 12
chars_per_token = 4
redact_secrets = true
exclude = ["vendor/**", "**/*.min.js", "*.lock"]

[dedup]
similarity_threshold = 0.6

[analyzer]
# The analyzer receives a JSON request on stdin and prints findings as
# JSON on stdout.
command = ["my-analyzer", "--json"]
timeout_seconds = 120
workers = 4
rate_per_second = 0.0
max_retries = 2

[storage]
path = "./copilot-review.db"

[server]
address = ":8080"

[logging]
level = "info"
`

	return os.WriteFile(configPath, []byte(sampleConfig), 0644)
}

// Validate checks the configuration for values the pipeline cannot run
// with. The analyzer command is checked separately by commands that
// actually invoke it.
func Validate(config *Config) error {
	if config.Review.TokenBudget <= 0 {
		return fmt.Errorf("review.token_budget must be positive")
	}
	if config.Review.MaxFilesPerChunk <= 0 {
		return fmt.Errorf("review.max_files_per_chunk must be positive")
	}
	if config.Review.CharsPerToken <= 0 {
		return fmt.Errorf("review.chars_per_token must be positive")
	}
	if config.Review.ContextMarginLines < 0 {
		return fmt.Errorf("review.context_margin_lines must not be negative")
	}
	if t := config.Dedup.SimilarityThreshold; t <= 0 || t > 1 {
		return fmt.Errorf("dedup.similarity_threshold must be in (0, 1]")
	}
	if config.Analyzer.Workers <= 0 {
		return fmt.Errorf("analyzer.workers must be positive")
	}
	if config.Analyzer.TimeoutSeconds < 0 {
		return fmt.Errorf("analyzer.timeout_seconds must not be negative")
	}
	if config.Analyzer.MaxRetries < 0 {
		return fmt.Errorf("analyzer.max_retries must not be negative")
	}
	if config.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	if config.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}

	switch config.Logging.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", config.Logging.Level)
	}

	return nil
}
