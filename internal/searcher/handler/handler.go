// Package handler is the query server: it owns the document store, moves
// once from uninitialized to ready, and serves searches over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docquery/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docquery/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docquery/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/docquery/internal/searcher/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/docquery/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/middleware"
)

const maxBodyBytes = 1 << 20

// State is the lifecycle phase of the query server.
type State int32

const (
	StateUninitialized State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "uninitialized"
}

type Options struct {
	Cache      *cache.QueryCache
	Tracker    analytics.Tracker
	Metrics    *metrics.Metrics
	MaxResults int
}

type Handler struct {
	store      atomic.Pointer[document.Store]
	cache      *cache.QueryCache
	tracker    analytics.Tracker
	metrics    *metrics.Metrics
	maxResults int
	logger     *slog.Logger
}

// New returns an uninitialized Handler. Call Ready before serving.
func New(opts Options) *Handler {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = searcher.DefaultMaxResults
	}
	return &Handler{
		cache:      opts.Cache,
		tracker:    opts.Tracker,
		metrics:    opts.Metrics,
		maxResults: maxResults,
		logger:     slog.Default().With("component", "search-handler"),
	}
}

// Ready installs the document store and moves the handler to StateReady.
// It succeeds exactly once.
func (h *Handler) Ready(store *document.Store) error {
	if store == nil {
		return fmt.Errorf("nil document store: %w", apperrors.ErrInternal)
	}
	if !h.store.CompareAndSwap(nil, store) {
		return apperrors.ErrAlreadyReady
	}
	if h.metrics != nil {
		h.metrics.DocumentsLoaded.Set(float64(store.Size()))
	}
	h.logger.Info("query server ready",
		"documents", store.Size(),
		"fingerprint", store.Fingerprint(),
	)
	return nil
}

func (h *Handler) State() State {
	if h.store.Load() == nil {
		return StateUninitialized
	}
	return StateReady
}

// Store returns the installed store, or nil before Ready.
func (h *Handler) Store() *document.Store {
	return h.store.Load()
}

// HealthCheck reports down while uninitialized and degraded when the store
// came up empty.
func (h *Handler) HealthCheck() health.Check {
	return func(ctx context.Context) health.ComponentHealth {
		store := h.store.Load()
		switch {
		case store == nil:
			return health.ComponentHealth{Status: health.StatusDown, Message: "uninitialized"}
		case store.Size() == 0:
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "no documents loaded"}
		default:
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("%d documents", store.Size())}
		}
	}
}

// Handle answers a single query. The only error is ErrNotReady.
func (h *Handler) Handle(ctx context.Context, query string) (searcher.QueryResult, error) {
	start := time.Now()
	store := h.store.Load()
	if store == nil {
		return searcher.QueryResult{}, apperrors.ErrNotReady
	}

	compute := func() searcher.QueryResult {
		return searcher.Execute(query, store, h.maxResults)
	}

	var result searcher.QueryResult
	cacheHit := false
	if h.cache != nil && store.Size() > 0 {
		result, cacheHit = h.cache.Resolve(ctx, store.Fingerprint(), query, compute)
	} else {
		result = compute()
	}

	elapsed := time.Since(start)
	h.observe(ctx, result, cacheHit, elapsed)
	return result, nil
}

func (h *Handler) observe(ctx context.Context, result searcher.QueryResult, cacheHit bool, elapsed time.Duration) {
	eventType := analytics.EventSearch
	switch {
	case result.Status == searcher.StatusNoDocuments:
		eventType = analytics.EventNoDocuments
	case result.MatchingDocuments == 0:
		eventType = analytics.EventZeroResult
	}

	h.logger.InfoContext(ctx, "search completed",
		"query", result.Query,
		"status", result.Status,
		"matching", result.MatchingDocuments,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_us", elapsed.Microseconds(),
	)

	if h.metrics != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues(string(eventType)).Inc()
		h.metrics.SearchLatency.Observe(elapsed.Seconds())
		h.metrics.SearchMatches.Observe(float64(result.MatchingDocuments))
		if h.cache != nil {
			if cacheHit {
				h.metrics.CacheHitsTotal.Inc()
			} else {
				h.metrics.CacheMissesTotal.Inc()
			}
		}
	}

	if h.tracker != nil {
		h.tracker.Track(analytics.SearchEvent{
			Type:              eventType,
			Query:             result.Query,
			TotalDocuments:    result.TotalDocuments,
			MatchingDocuments: result.MatchingDocuments,
			Returned:          len(result.Results),
			LatencyMicros:     elapsed.Microseconds(),
			CacheHit:          cacheHit,
			Timestamp:         time.Now().UTC(),
			RequestID:         middleware.GetRequestID(ctx),
		})
	}
}

// Search serves GET requests carrying the query in the "query" URL
// parameter. An absent parameter is rejected; an empty one matches all.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	values, ok := r.URL.Query()["query"]
	if !ok {
		h.fail(w, r, apperrors.Malformed("query parameter 'query' is required"))
		return
	}
	h.respond(w, r, values[0])
}

// SearchJSON serves POST requests with a body of the form
// {"query": "<string>"}.
func (h *Handler) SearchJSON(w http.ResponseWriter, r *http.Request) {
	query, err := decodeQuery(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, query)
}

func decodeQuery(body io.Reader) (string, error) {
	var req map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", apperrors.TooLarge(maxErr.Limit)
		}
		return "", apperrors.Malformed("request body must be a JSON object")
	}
	raw, ok := req["query"]
	if !ok {
		return "", apperrors.Malformed("field 'query' is required")
	}
	var query string
	if string(raw) == "null" {
		return "", apperrors.Malformed("field 'query' must be a string")
	}
	if err := json.Unmarshal(raw, &query); err != nil {
		return "", apperrors.Malformed("field 'query' must be a string")
	}
	return query, nil
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, query string) {
	result, err := h.Handle(r.Context(), query)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Counts()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.fail(w, r, apperrors.ErrCacheDisabled)
		return
	}

	n, err := h.cache.Purge(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": n})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	if errors.Is(err, apperrors.ErrMalformedRequest) && h.metrics != nil {
		h.metrics.SearchQueriesTotal.WithLabelValues("malformed").Inc()
	}
	h.logger.WarnContext(r.Context(), "request rejected",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)
	h.writeError(w, status, apperrors.PublicMessage(err))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
