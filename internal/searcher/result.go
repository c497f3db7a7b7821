// Package searcher shapes matcher output into the query response returned by
// the search endpoint.
package searcher

import (
	"github.com/samber/lo"

	"github.com/Adithya-Monish-Kumar-K/docquery/internal/document"
	"github.com/Adithya-Monish-Kumar-K/docquery/internal/searcher/matcher"
)

// DefaultMaxResults is how many matches a response carries.
const DefaultMaxResults = 5

const (
	StatusSuccess     = "success"
	StatusNoDocuments = "no_documents"
)

// ResultItem is a matched record as exposed to clients. Content is omitted.
type ResultItem struct {
	Name string `json:"name"`
	Site string `json:"site"`
	URL  string `json:"url"`
}

// QueryResult is the response body of a search.
type QueryResult struct {
	Status            string       `json:"status"`
	Query             string       `json:"query"`
	TotalDocuments    int          `json:"total_documents"`
	MatchingDocuments int          `json:"matching_documents"`
	Results           []ResultItem `json:"results"`
}

// Execute matches query against store and keeps the first maxResults matches
// in store order. The query is echoed verbatim. A non-positive maxResults
// falls back to DefaultMaxResults.
func Execute(query string, store *document.Store, maxResults int) QueryResult {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if store.Size() == 0 {
		return QueryResult{
			Status:  StatusNoDocuments,
			Query:   query,
			Results: []ResultItem{},
		}
	}

	matches := matcher.Match(query, store)
	top := matches
	if len(top) > maxResults {
		top = top[:maxResults]
	}
	return QueryResult{
		Status:            StatusSuccess,
		Query:             query,
		TotalDocuments:    store.Size(),
		MatchingDocuments: len(matches),
		Results: lo.Map(top, func(r document.Record, _ int) ResultItem {
			return ResultItem{Name: r.Name, Site: r.Site, URL: r.URL}
		}),
	}
}
