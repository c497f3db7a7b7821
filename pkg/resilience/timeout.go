package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout gives fn at most d (no limit when d <= 0). On expiry it returns
// an error wrapping context.DeadlineExceeded without waiting for fn, which
// is left to observe its cancelled context.
func WithTimeout(ctx context.Context, d time.Duration, name string, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeoutCause(ctx, d, fmt.Errorf("%s took longer than %v", name, d))
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- fn(ctx) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		if cause := context.Cause(ctx); !errors.Is(cause, ctx.Err()) {
			return fmt.Errorf("%w: %w", cause, ctx.Err())
		}
		return fmt.Errorf("%s: %w", name, ctx.Err())
	}
}
