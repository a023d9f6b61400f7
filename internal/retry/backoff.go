// Package retry provides exponential backoff with jitter for flaky
// operations such as analyzer invocations.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// Config controls backoff behavior.
type Config struct {
	MaxRetries int           // retries after the first attempt
	BaseDelay  time.Duration // delay before the first retry
	MaxDelay   time.Duration // cap on any single delay
	Multiplier float64       // exponential growth factor
}

// DefaultConfig returns retry settings suited to subprocess analyzers.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}
}

// Do runs op until it succeeds, retries are exhausted, or ctx ends.
// It returns the last error op produced, or the context error when
// cancelled between attempts.
func Do(ctx context.Context, cfg Config, op func() error) error {
	if cfg.Multiplier <= 1 {
		cfg.Multiplier = 2.0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}

	var err error
	for attempt := 0; ; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if attempt >= cfg.MaxRetries {
			return err
		}

		delay := backoffDelay(cfg, attempt)
		log.Debug().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying after failure")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// backoffDelay computes baseDelay * multiplier^attempt, capped at
// MaxDelay, with up to 10% random jitter either way.
func backoffDelay(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	jitterRange := delay * 0.1
	delay += (rand.Float64() - 0.5) * 2 * jitterRange
	if delay < 0 {
		delay = float64(cfg.BaseDelay)
	}
	return time.Duration(delay)
}
