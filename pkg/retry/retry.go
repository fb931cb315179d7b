// Package retry runs a function with bounded exponential backoff and an
// optional shared rate limiter.
//
// Example:
//
//	cfg := retry.Config{MaxAttempts: 3, InitialDelay: time.Second, Multiplier: 2}
//	err := retry.Do(ctx, func() error { return fetch() }, cfg)
package retry

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Config controls the retry loop.
type Config struct {
	MaxAttempts  int           // total attempts, minimum 1
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // cap on the growing delay (0 = no cap)
	Multiplier   float64       // delay growth factor, defaults to 2
	Limiter      *rate.Limiter // optional shared limiter, waited on before each attempt
	OnRetry      func(attempt int, err error)
}

// Default matches the group metadata policy: three attempts with the delay
// doubling from one second.
func Default() Config {
	return Config{MaxAttempts: 3, InitialDelay: time.Second, Multiplier: 2}
}

// Do runs fn until it succeeds, the attempts are exhausted, or ctx is done.
// The last error is returned wrapped with the attempt count.
func Do(ctx context.Context, fn func() error, cfg Config) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 2
	}

	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if cfg.Limiter != nil {
			if err := cfg.Limiter.Wait(ctx); err != nil {
				return err
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("after %d attempts: %w", cfg.MaxAttempts, lastErr)
}
