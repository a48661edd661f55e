// pkg/retry/retry.go - functions for retrying actions with exponential backoff.

package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/windowsadmins/reclaim/pkg/logging"
)

// NonRetryableError wraps an error that should not be retried, such as a
// package manager reporting that a target does not exist.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

// Config defines the configuration for retry attempts.
type Config struct {
	MaxRetries      int
	InitialInterval time.Duration
	Multiplier      float64
}

// DefaultConfig is suitable for flaky package manager invocations.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		InitialInterval: 2 * time.Second,
		Multiplier:      2.0,
	}
}

// Retry retries a given function with exponential backoff. It stops early
// when the context is canceled or the action returns a NonRetryableError.
func Retry(ctx context.Context, config Config, action func() error) error {
	interval := config.InitialInterval

	var lastErr error
	for attempt := 1; attempt <= config.MaxRetries; attempt++ {
		lastErr = action()
		if lastErr == nil {
			return nil
		}

		var nonRetryable NonRetryableError
		if errors.As(lastErr, &nonRetryable) {
			logging.Warn("Non-retryable error encountered",
				"attempt", attempt, "error", lastErr.Error())
			return lastErr
		}

		if attempt < config.MaxRetries {
			logging.Warn("Attempt failed, retrying",
				"attempt", attempt,
				"max_attempts", config.MaxRetries,
				"retry_delay", interval.String(),
				"error", lastErr.Error())
		} else {
			logging.Warn("Attempt failed, no more retries",
				"attempt", attempt,
				"max_attempts", config.MaxRetries,
				"error", lastErr.Error())
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		interval = time.Duration(float64(interval) * config.Multiplier)
	}

	return fmt.Errorf("action failed after %d attempts: %w", config.MaxRetries, lastErr)
}
