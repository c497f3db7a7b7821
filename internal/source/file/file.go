// Package file reads the startup document set from a local YAML file. It is
// meant for development and demos where no tenant is available.
//
//	documents:
//	  - name: Q3 Report.docx
//	    site: Finance
//	    url: https://contoso.sharepoint.com/sites/finance/Q3%20Report.docx
package file

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/docquery/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/config"
)

type Source struct {
	path   string
	logger *slog.Logger
}

type catalog struct {
	Documents []document.Record `yaml:"documents"`
}

func New(path string) *Source {
	return &Source{
		path:   path,
		logger: slog.Default().With("component", "file-source"),
	}
}

func (s *Source) Name() string { return config.SourceFile }

func (s *Source) Fetch(ctx context.Context) ([]document.Record, error) {
	if s.path == "" {
		return nil, fmt.Errorf("file source: no path configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.path, err)
	}
	for i, r := range c.Documents {
		if r.Name == "" {
			return nil, fmt.Errorf("%s: document %d has no name", s.path, i)
		}
		if r.Content == "" {
			c.Documents[i].Content = fmt.Sprintf("Document from %s: %s", r.Site, r.Name)
		}
	}
	s.logger.Info("documents read from file", "path", s.path, "documents", len(c.Documents))
	return c.Documents, nil
}
