// Package matcher implements the keyword match applied to every query: a
// case-insensitive substring test against a document's name and site.
package matcher

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docquery/internal/document"
)

// Match returns the records in store whose name or site contains query,
// ignoring case, in store order. Content is not searched. An empty query
// matches every record; an empty store yields an empty, non-nil slice.
func Match(query string, store *document.Store) []document.Record {
	needle := strings.ToLower(query)
	out := []document.Record{}
	store.Each(func(r document.Record) {
		if Matches(needle, r) {
			out = append(out, r)
		}
	})
	return out
}

// Matches reports whether the already lower-cased needle occurs in r's name
// or site.
func Matches(needle string, r document.Record) bool {
	return strings.Contains(strings.ToLower(r.Name), needle) ||
		strings.Contains(strings.ToLower(r.Site), needle)
}
