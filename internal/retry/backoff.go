// Package retry provides bounded exponential backoff for the pipeline's two
// external calls: narrative generation and artifact storage. Both are
// idempotent given deterministic redaction, so re-running on transient
// failure is safe; the retry cap makes sure a dead dependency is surfaced
// instead of retried forever.
package retry

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls retry behavior.
type Config struct {
	MaxRetries int           `json:"max_retries"`
	BaseDelay  time.Duration `json:"base_delay"`
	MaxDelay   time.Duration `json:"max_delay"`
	Multiplier float64       `json:"multiplier"`
	Jitter     bool          `json:"jitter"`
}

// Result describes how an operation fared across attempts.
type Result struct {
	Attempts      int
	TotalDuration time.Duration
	LastError     error
	Success       bool
}

// DefaultConfig returns sensible defaults for storage calls.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// ModelConfig returns defaults tuned for model requests, which are slower
// and rate-limited more aggressively than storage.
func ModelConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.5,
		Jitter:     true,
	}
}

// Do executes operation with exponential backoff, stopping on success, on
// context cancellation, on a non-retryable error, or once the retry budget
// is spent.
func Do(ctx context.Context, cfg Config, logger zerolog.Logger, op func() error) Result {
	start := time.Now()
	result := Result{}

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		err := op()
		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(start)
			if attempt > 0 {
				logger.Info().Int("attempts", result.Attempts).Dur("total", result.TotalDuration).
					Msg("operation succeeded after retries")
			}
			return result
		}
		result.LastError = err

		if attempt >= cfg.MaxRetries || !Retryable(err) {
			result.TotalDuration = time.Since(start)
			logger.Warn().Err(err).Int("attempts", result.Attempts).
				Bool("retryable", Retryable(err)).Msg("operation failed")
			return result
		}
		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result
		}

		delay := Delay(cfg, attempt)
		logger.Debug().Err(err).Int("attempt", result.Attempts).Dur("delay", delay).
			Msg("retrying after backoff")

		select {
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result
		case <-time.After(delay):
		}
	}

	result.TotalDuration = time.Since(start)
	return result
}

// Delay computes the backoff for a given zero-based attempt.
func Delay(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(cfg.BaseDelay)
		}
	}
	return time.Duration(delay)
}

// Retryable reports whether an error looks transient. Data-integrity and
// configuration failures are deliberately not on this list; they must
// propagate unmodified.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, candidate := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"service unavailable",
		"model unavailable",
		"storage unavailable",
		"too many requests",
		"rate limit",
		"429",
		"502",
		"503",
		"504",
		"no such host",
		"network unreachable",
		"broken pipe",
	} {
		if strings.Contains(msg, candidate) {
			return true
		}
	}
	return false
}
