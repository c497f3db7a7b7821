// Package router wires the query server routes and applies the middleware
// chain (RequestID → CORS → RateLimit → Timeout → Metrics).
package router

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/docquery/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docquery/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/middleware"
)

// New builds the full HTTP handler.
//
// Route table:
//
//	POST   /                          → search, JSON body {"query": ...}
//	GET    /api/v1/search?query=...   → search
//	POST   /api/v1/search             → search, JSON body
//	GET    /api/v1/analytics          → in-process query statistics
//	GET    /api/v1/cache/stats        → cache hit/miss counters
//	POST   /api/v1/cache/invalidate   → drop cached results
//	GET    /health/live               → liveness
//	GET    /health/ready              → readiness
//
// m may be nil, in which case request metrics are not recorded. CORS and
// rate limiting are only applied when cfg enables them.
func New(h *handler.Handler, stats *analytics.Handler, checker *health.Checker, m *metrics.Metrics, cfg config.ServerConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /{$}", h.SearchJSON)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/search", h.SearchJSON)

	mux.HandleFunc("GET /api/v1/analytics", stats.Stats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	if cfg.WriteTimeout > 0 {
		chain = middleware.Timeout(cfg.WriteTimeout)(chain)
	}
	if cfg.RateLimit.RequestsPerSecond > 0 {
		chain = middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))(chain)
	}
	if len(cfg.AllowOrigins) > 0 {
		chain = middleware.CORS(cfg.AllowOrigins)(chain)
	}
	chain = middleware.RequestID(chain)

	return chain
}
