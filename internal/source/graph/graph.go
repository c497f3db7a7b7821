// Package graph lists documents from SharePoint/OneDrive through Microsoft
// Graph using an app-only client-credentials token.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docquery/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/tracing"
)

// Scope requests every application permission granted to the app.
const Scope = "https://graph.microsoft.com/.default"

// unknownSite names sites whose listing omits displayName.
const unknownSite = "Unknown"

var errMissingCredentials = errors.New("AZURE_TENANT_ID, AZURE_CLIENT_ID and AZURE_CLIENT_SECRET must be set")

type site struct {
	ID          string  `json:"id"`
	DisplayName *string `json:"displayName,omitempty"`
}

// name is the display name as listed; an empty name is kept as is.
func (s site) name() string {
	if s.DisplayName == nil {
		return unknownSite
	}
	return *s.DisplayName
}

type driveItem struct {
	Name   string    `json:"name"`
	WebURL string    `json:"webUrl"`
	File   *struct{} `json:"file"`
}

type page[T any] struct {
	Value    []T    `json:"value"`
	NextLink string `json:"@odata.nextLink"`
}

// Source lists up to MaxSites sites and, for each, the first
// MaxFilesPerSite items of the site's default drive root.
type Source struct {
	cfg     config.GraphConfig
	base    *http.Client
	metrics *metrics.Metrics
	retry   resilience.RetryConfig
	logger  *slog.Logger
}

// New returns a Graph source. m may be nil.
func New(cfg config.GraphConfig, m *metrics.Metrics) *Source {
	return &Source{
		cfg: cfg,
		base: &http.Client{
			Transport: logger.HTTPTransport("graph-http", http.DefaultTransport),
			Timeout:   30 * time.Second,
		},
		metrics: m,
		retry:   defaultRetry(),
		logger:  slog.Default().With("component", "graph-source"),
	}
}

func (s *Source) Name() string { return config.SourceGraph }

// Fetch acquires a token, lists sites and then each site's files. A site
// whose drive cannot be listed is skipped; failing to authenticate or to
// list sites fails the whole fetch.
func (s *Source) Fetch(ctx context.Context) ([]document.Record, error) {
	if !s.cfg.HasCredentials() {
		return nil, errMissingCredentials
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.base)
	cc := &clientcredentials.Config{
		ClientID:     s.cfg.ClientID,
		ClientSecret: s.cfg.ClientSecret,
		TokenURL:     s.cfg.TokenURL(),
		Scopes:       []string{Scope},
	}
	ts := cc.TokenSource(ctx)
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("acquiring graph token: %w", err)
	}

	c := s.newClient(oauth2.NewClient(ctx, ts))

	sites, err := s.listSites(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("listing sites: %w", err)
	}
	s.logger.Info("sharepoint sites found", "sites", len(sites))

	perSite := make([][]document.Record, len(sites))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.cfg.Concurrency, 1))
	for i, st := range sites {
		g.Go(func() error {
			docs, err := s.siteDocuments(gctx, c, st)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("skipping site", "site", st.name(), "site_id", st.ID, "error", err)
				return nil
			}
			perSite[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var records []document.Record
	for _, docs := range perSite {
		records = append(records, docs...)
	}
	s.logger.Info("documents fetched from graph", "documents", len(records))
	return records, nil
}

func (s *Source) newClient(httpClient *http.Client) *client {
	name := "graph"
	cbCfg := resilience.CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second}
	if s.metrics != nil {
		gauge := s.metrics.CircuitBreakerState
		gauge.WithLabelValues(name).Set(float64(resilience.StateClosed))
		cbCfg.OnStateChange = func(name string, to resilience.State) {
			gauge.WithLabelValues(name).Set(float64(to))
		}
	}
	return &client{
		http:    httpClient,
		limiter: newRateLimiter(s.cfg.RequestsPerSecond, max(s.cfg.Concurrency, 1)),
		breaker: resilience.NewCircuitBreaker(name, cbCfg),
		retry:   s.retry,
		logger:  s.logger,
	}
}

func (s *Source) listSites(ctx context.Context, c *client) ([]site, error) {
	next := strings.TrimRight(s.cfg.BaseURL, "/") + "/sites?search=*"
	var sites []site
	for next != "" && !reached(len(sites), s.cfg.MaxSites) {
		var p page[site]
		if err := c.getJSON(ctx, next, &p); err != nil {
			return nil, err
		}
		sites = append(sites, p.Value...)
		next = p.NextLink
	}
	return truncate(sites, s.cfg.MaxSites), nil
}

// siteDocuments considers the first MaxFilesPerSite drive items, then keeps
// files whose names end with a configured extension.
func (s *Source) siteDocuments(ctx context.Context, c *client, st site) ([]document.Record, error) {
	_, span := tracing.Start(ctx, "graph.site")
	defer span.End()
	span.Set("site_id", st.ID)

	siteName := st.name()

	next := fmt.Sprintf("%s/sites/%s/drive/root/children",
		strings.TrimRight(s.cfg.BaseURL, "/"), url.PathEscape(st.ID))
	var items []driveItem
	for next != "" && !reached(len(items), s.cfg.MaxFilesPerSite) {
		var p page[driveItem]
		if err := c.getJSON(ctx, next, &p); err != nil {
			if isStatus(err, http.StatusNotFound) {
				s.logger.Debug("site has no default drive", "site", siteName)
			}
			return nil, err
		}
		items = append(items, p.Value...)
		next = p.NextLink
	}
	items = truncate(items, s.cfg.MaxFilesPerSite)

	var docs []document.Record
	for _, item := range items {
		if item.File == nil || !s.wanted(item.Name) {
			continue
		}
		docs = append(docs, document.Record{
			Name:    item.Name,
			Site:    siteName,
			URL:     item.WebURL,
			Content: fmt.Sprintf("Document from %s: %s", siteName, item.Name),
		})
	}
	span.Set("documents", len(docs))
	return docs, nil
}

func (s *Source) wanted(name string) bool {
	if len(s.cfg.Extensions) == 0 {
		return true
	}
	for _, ext := range s.cfg.Extensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// reached reports whether n has hit limit; a non-positive limit never does.
func reached(n, limit int) bool {
	return limit > 0 && n >= limit
}

func truncate[T any](s []T, limit int) []T {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
