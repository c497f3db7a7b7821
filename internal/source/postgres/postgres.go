// Package postgres reads the startup document set from a catalog table.
//
// The table needs at least these columns:
//
//	CREATE TABLE documents (
//	    id      BIGSERIAL PRIMARY KEY,
//	    name    TEXT NOT NULL,
//	    site    TEXT,
//	    url     TEXT,
//	    content TEXT
//	);
package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/Adithya-Monish-Kumar-K/docquery/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/config"
	pkgpostgres "github.com/Adithya-Monish-Kumar-K/docquery/pkg/postgres"
)

type Source struct {
	cfg    config.PostgresConfig
	logger *slog.Logger
}

func New(cfg config.PostgresConfig) *Source {
	return &Source{
		cfg:    cfg,
		logger: slog.Default().With("component", "postgres-source"),
	}
}

func (s *Source) Name() string { return config.SourcePostgres }

// Fetch connects, reads up to cfg.Limit rows in id order and disconnects.
func (s *Source) Fetch(ctx context.Context) ([]document.Record, error) {
	db, err := pkgpostgres.Open(ctx, s.cfg)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, selectQuery(s.cfg.Table), s.cfg.Limit)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", s.cfg.Table, err)
	}
	defer rows.Close()

	var records []document.Record
	for rows.Next() {
		var r document.Record
		if err := rows.Scan(&r.Name, &r.Site, &r.URL, &r.Content); err != nil {
			return nil, fmt.Errorf("scanning document row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document rows: %w", err)
	}
	s.logger.Info("documents read from catalog", "table", s.cfg.Table, "documents", len(records))
	return records, nil
}

// selectQuery builds the catalog query. NULL columns become empty strings
// and a non-positive $1 means no limit.
func selectQuery(table string) string {
	return fmt.Sprintf(
		`SELECT COALESCE(name, ''), COALESCE(site, ''), COALESCE(url, ''), COALESCE(content, '')
		 FROM %s ORDER BY id LIMIT NULLIF($1::int, 0)`,
		pq.QuoteIdentifier(table),
	)
}
