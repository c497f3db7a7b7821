package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docquery/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/docquery/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docquery/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/docquery/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/middleware"
)

func newServer(t *testing.T, store *document.Store) *httptest.Server {
	t.Helper()
	return newServerWithConfig(t, store, config.ServerConfig{WriteTimeout: time.Second})
}

func newServerWithConfig(t *testing.T, store *document.Store, cfg config.ServerConfig) *httptest.Server {
	t.Helper()
	agg := analytics.NewAggregator()
	h := handler.New(handler.Options{Tracker: agg})
	if store != nil {
		require.NoError(t, h.Ready(store))
	}
	checker := health.NewChecker()
	checker.Register("document_store", h.HealthCheck())

	srv := httptest.NewServer(New(h, analytics.NewHandler(agg), checker, metrics.New(prometheus.NewRegistry()), cfg))
	t.Cleanup(srv.Close)
	return srv
}

func TestSearchRoutes(t *testing.T) {
	srv := newServer(t, document.Build([]document.Record{
		{Name: "report.docx", Site: "Finance", URL: "u1"},
		{Name: "notes.txt", Site: "Ops", URL: "u2"},
	}))

	resp, err := http.Get(srv.URL + "/api/v1/search?query=report")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))

	var result searcher.QueryResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, 1, result.MatchingDocuments)
	assert.Equal(t, 2, result.TotalDocuments)

	for _, path := range []string{"/", "/api/v1/search"} {
		resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(`{"query":"ops"}`))
		require.NoError(t, err)
		var result searcher.QueryResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, "notes.txt", result.Results[0].Name, path)
	}

	resp, err = http.Get(srv.URL + "/api/v1/analytics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats analytics.AggregatedStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, int64(3), stats.TotalSearches)
}

func TestUnknownRoutes(t *testing.T) {
	srv := newServer(t, document.Build(nil))

	resp, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/v1/analytics", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name  string
		store *document.Store
		want  int
	}{
		{"uninitialized", nil, http.StatusServiceUnavailable},
		{"empty store", document.Build(nil), http.StatusOK},
		{"loaded", document.Build([]document.Record{{Name: "a"}}), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.store)
			resp, err := http.Get(srv.URL + "/health/ready")
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestNoDocumentsResponse(t *testing.T) {
	srv := newServer(t, document.Build(nil))

	resp, err := http.Get(srv.URL + "/api/v1/search?query=anything")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "no_documents", body["status"])
	assert.Equal(t, float64(0), body["total_documents"])
	assert.Equal(t, []any{}, body["results"])
}

func TestCORSAndRateLimit(t *testing.T) {
	srv := newServerWithConfig(t, document.Build([]document.Record{{Name: "a.txt"}}), config.ServerConfig{
		AllowOrigins: []string{"https://intranet.example"},
		RateLimit:    config.RateLimit{RequestsPerSecond: 0.001, Burst: 1},
	})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://intranet.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://intranet.example", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, err = http.Get(srv.URL + "/api/v1/search?query=a")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/search?query=a")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
