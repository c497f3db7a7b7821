// Package source fetches the startup document set. Load consults a Source
// once and always yields a store: any failure is logged as
// ErrSourceUnavailable and absorbed into an empty store.
package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docquery/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docquery/internal/source/file"
	"github.com/Adithya-Monish-Kumar-K/docquery/internal/source/graph"
	"github.com/Adithya-Monish-Kumar-K/docquery/internal/source/postgres"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/docquery/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/tracing"
)

// Source yields the documents to serve. Fetch is called at most once per
// process.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]document.Record, error)
}

type none struct{}

func (none) Name() string { return config.SourceNone }

func (none) Fetch(ctx context.Context) ([]document.Record, error) { return nil, nil }

// None is a Source that yields no documents.
func None() Source { return none{} }

// FromConfig builds the Source selected by cfg.Kind. Construction does not
// touch the network; connection problems surface from Fetch.
func FromConfig(cfg config.SourceConfig, m *metrics.Metrics) (Source, error) {
	switch cfg.Kind {
	case config.SourceGraph:
		return graph.New(cfg.Graph, m), nil
	case config.SourcePostgres:
		return postgres.New(cfg.Postgres), nil
	case config.SourceFile:
		return file.New(cfg.File.Path), nil
	case config.SourceNone:
		return None(), nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}

// Load fetches from src within timeout and builds the document store. It
// never fails; on error the store is empty.
func Load(ctx context.Context, src Source, timeout time.Duration, m *metrics.Metrics) *document.Store {
	log := slog.Default().With("component", "document-source", "source", src.Name())
	ctx, span := tracing.Start(ctx, "source.load")
	span.Set("source", src.Name())
	defer span.End()

	start := time.Now()
	var records []document.Record
	err := resilience.WithTimeout(ctx, timeout, "fetch "+src.Name(), func(ctx context.Context) error {
		var err error
		records, err = src.Fetch(ctx)
		return err
	})
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", apperrors.ErrSourceUnavailable, src.Name(), err)
		log.Warn("document fetch failed, serving empty store",
			"error", err,
			"elapsed", time.Since(start).Round(time.Millisecond),
		)
		if m != nil {
			m.SourceFailuresTotal.WithLabelValues(src.Name()).Inc()
		}
		span.Set("error", err.Error())
		return document.Build(nil)
	}

	store := document.Build(records)
	span.Set("documents", store.Size())
	log.Info("documents fetched",
		"documents", store.Size(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return store
}
