package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

type permanent struct{ error }

func (p permanent) Unwrap() error { return p.error }

// Permanent marks err as not worth retrying. Retry returns the unwrapped
// error at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err}
}

// RetryConfig bounds Retry. Zero fields mean 3 attempts, 100ms initial delay
// and a 10s ceiling.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// An error with a RetryAfter method asks Retry to wait at least that long
// before the next attempt, e.g. a throttled HTTP response.
type retryAfter interface {
	RetryAfter() time.Duration
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	return c
}

// delay doubles per attempt up to MaxDelay and picks uniformly from the
// upper half of that window.
func (c RetryConfig) delay(attempt int, err error) time.Duration {
	window := c.MaxDelay
	if attempt < 32 {
		window = min(c.InitialDelay<<(attempt-1), c.MaxDelay)
	}
	d := window/2 + rand.N(window/2+1)

	var ra retryAfter
	if errors.As(err, &ra) {
		d = max(d, ra.RetryAfter())
	}
	return d
}

// Retry calls fn until it succeeds, fails permanently, runs out of attempts
// or ctx ends.
func Retry(ctx context.Context, name string, cfg RetryConfig, fn func() error) error {
	cfg = cfg.withDefaults()
	log := slog.Default().With("component", "retry", "operation", name)

	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				log.Debug("succeeded after retry", "attempts", attempt)
			}
			return nil
		}
		var p permanent
		if errors.As(err, &p) {
			return p.error
		}
		if attempt >= cfg.MaxAttempts {
			return fmt.Errorf("%s: giving up after %d attempts: %w", name, attempt, err)
		}

		wait := cfg.delay(attempt, err)
		log.Warn("attempt failed", "attempt", attempt, "of", cfg.MaxAttempts, "wait", wait, "error", err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%s: %w", name, ctx.Err())
		case <-timer.C:
		}
	}
}
