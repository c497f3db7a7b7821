// Package errors defines the query server's sentinel errors and maps them
// to HTTP responses.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrSourceUnavailable = errors.New("document source unavailable")
	ErrMalformedRequest  = errors.New("malformed request")
	ErrNotReady          = errors.New("query server not ready")
	ErrAlreadyReady      = errors.New("query server already initialized")
	ErrCacheDisabled     = errors.New("caching is disabled")
	ErrInternal          = errors.New("internal error")
)

// statusOf maps sentinels to the status used when no AppError overrides it.
var statusOf = []struct {
	err    error
	status int
}{
	{ErrMalformedRequest, http.StatusBadRequest},
	{ErrAlreadyReady, http.StatusConflict},
	{ErrNotReady, http.StatusServiceUnavailable},
	{ErrCacheDisabled, http.StatusServiceUnavailable},
	{ErrSourceUnavailable, http.StatusServiceUnavailable},
	{context.DeadlineExceeded, http.StatusGatewayTimeout},
}

// AppError pairs a sentinel with a client-facing message and status.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string { return e.Err.Error() + ": " + e.Message }

func (e *AppError) Unwrap() error { return e.Err }

func Newf(sentinel error, status int, format string, args ...any) *AppError {
	return &AppError{Err: sentinel, Message: fmt.Sprintf(format, args...), StatusCode: status}
}

// Malformed is a 400 wrapping ErrMalformedRequest.
func Malformed(format string, args ...any) *AppError {
	return Newf(ErrMalformedRequest, http.StatusBadRequest, format, args...)
}

// TooLarge is a 413 wrapping ErrMalformedRequest.
func TooLarge(limit int64) *AppError {
	return Newf(ErrMalformedRequest, http.StatusRequestEntityTooLarge, "request body exceeds %d bytes", limit)
}

// PublicMessage is the text safe to show a client.
func PublicMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	for _, s := range statusOf {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}
