// Package logger configures the process-wide slog logger. Records logged
// with a context pick up that context's request ID automatically.
package logger

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/motemen/go-loghttp"
)

type requestIDKey struct{}

// Setup installs a logger writing to stdout as the slog default.
func Setup(level, format string) *slog.Logger {
	l := New(os.Stdout, level, format)
	slog.SetDefault(l)
	return l
}

// New returns a logger writing JSON when format is "json" and text otherwise.
// Unrecognised levels fall back to info.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(contextHandler{h})
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// contextHandler adds request_id to records whose context carries one.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := RequestID(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// HTTPTransport logs each outbound exchange made through base at debug
// level. URLs are redacted of userinfo.
func HTTPTransport(component string, base http.RoundTripper) http.RoundTripper {
	log := slog.Default().With("component", component)
	return &loghttp.Transport{
		Transport: base,
		LogRequest: func(req *http.Request) {
			log.DebugContext(req.Context(), "outbound request", "method", req.Method, "url", req.URL.Redacted())
		},
		LogResponse: func(resp *http.Response) {
			log.DebugContext(resp.Request.Context(), "outbound response",
				"method", resp.Request.Method,
				"url", resp.Request.URL.Redacted(),
				"status", resp.StatusCode,
				"content_length", resp.ContentLength,
			)
		},
	}
}
