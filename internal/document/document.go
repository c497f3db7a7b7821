// Package document holds the immutable in-memory document store built once
// at startup from whatever the document source returned.
package document

import (
	"crypto/sha256"
	"encoding/hex"
)

// Record is a single ingested document. All fields are always populated,
// possibly with the empty string.
type Record struct {
	Name    string `json:"name" yaml:"name"`
	Site    string `json:"site" yaml:"site"`
	URL     string `json:"url" yaml:"url"`
	Content string `json:"content" yaml:"content"`
}

// Store is an ordered, read-only collection of records. Insertion order is
// ingestion order. A Store is safe for concurrent reads and has no writers.
type Store struct {
	records     []Record
	fingerprint string
}

// Build constructs a Store from records. It never fails: a nil or empty
// slice yields a valid empty store. The slice is copied, so the caller may
// reuse it.
func Build(records []Record) *Store {
	owned := make([]Record, len(records))
	copy(owned, records)
	return &Store{
		records:     owned,
		fingerprint: fingerprint(owned),
	}
}

// All returns the stored records in insertion order. The returned slice is a
// copy.
func (s *Store) All() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Size returns the number of stored records.
func (s *Store) Size() int {
	return len(s.records)
}

// Each calls fn for every record in order without copying the backing slice.
func (s *Store) Each(fn func(Record)) {
	for _, r := range s.records {
		fn(r)
	}
}

// Fingerprint identifies the store contents. Two stores built from the same
// records in the same order share a fingerprint.
func (s *Store) Fingerprint() string {
	return s.fingerprint
}

func fingerprint(records []Record) string {
	h := sha256.New()
	for _, r := range records {
		for _, field := range []string{r.Name, r.Site, r.URL, r.Content} {
			h.Write([]byte(field))
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil)[:12])
}
