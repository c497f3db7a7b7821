package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/resilience"
)

// StatusError is a non-2xx Graph response. Wait is the Retry-After delay
// of a throttled response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
	Wait       time.Duration
}

func (e *StatusError) RetryAfter() time.Duration { return e.Wait }

func (e *StatusError) Error() string {
	return fmt.Sprintf("graph %s: status %d: %s", e.URL, e.StatusCode, e.Body)
}

// retryable reports whether the status is worth another attempt.
func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// client issues authenticated GETs against Graph with pacing, retry and a
// circuit breaker.
type client struct {
	http    *http.Client
	limiter *rateLimiter
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// getJSON fetches url and decodes the JSON body into out. Client errors
// (4xx other than 429) are returned without counting against the breaker.
func (c *client) getJSON(ctx context.Context, url string, out any) error {
	var clientErr error
	err := c.breaker.Execute(func() error {
		err := resilience.Retry(ctx, "graph GET", c.retry, func() error {
			return c.getOnce(ctx, url, out)
		})
		var se *StatusError
		if errors.As(err, &se) && !retryable(se.StatusCode) {
			clientErr = err
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	return clientErr
}

func (c *client) getOnce(ctx context.Context, url string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return resilience.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return resilience.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return resilience.Permanent(err)
		}
		return fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		statusErr := &StatusError{URL: url, StatusCode: resp.StatusCode, Body: string(body)}
		if resp.StatusCode == http.StatusTooManyRequests {
			statusErr.Wait = c.limiter.Backoff(resp.Header.Get("Retry-After"))
			c.logger.Warn("graph throttled", "url", url, "retry_after", statusErr.Wait)
		}
		if retryable(resp.StatusCode) {
			return statusErr
		}
		return resilience.Permanent(statusErr)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resilience.Permanent(fmt.Errorf("decoding graph response: %w", err))
	}
	return nil
}

// isStatus reports whether err is a StatusError with the given code.
func isStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func defaultRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
	}
}
