package analytics

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
)

const (
	// maxLatencySamples bounds the latency window used for percentiles.
	maxLatencySamples = 10000
	// maxTrackedQueries bounds each query count table.
	maxTrackedQueries = 1000
	// maxQueryKeyBytes bounds the query text kept per entry.
	maxQueryKeyBytes = 256
)

type AggregatedStats struct {
	TotalSearches     int64        `json:"total_searches"`
	NoDocumentsCount  int64        `json:"no_documents_count"`
	ZeroResultCount   int64        `json:"zero_result_count"`
	CacheHits         int64        `json:"cache_hits"`
	AvgLatencyMicros  float64      `json:"avg_latency_us"`
	P50LatencyMicros  int64        `json:"p50_latency_us"`
	P95LatencyMicros  int64        `json:"p95_latency_us"`
	P99LatencyMicros  int64        `json:"p99_latency_us"`
	TopQueries        []QueryCount `json:"top_queries"`
	ZeroResultQueries []QueryCount `json:"zero_result_queries"`
	QueriesPerMinute  float64      `json:"queries_per_minute"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps in-process query statistics for this server instance.
type Aggregator struct {
	mu                sync.Mutex
	totalSearches     int64
	noDocuments       int64
	zeroResults       int64
	cacheHits         int64
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	startTime         time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		startTime:         time.Now(),
	}
}

func (a *Aggregator) Track(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	if event.CacheHit {
		a.cacheHits++
	}
	q := queryKey(event.Query)
	switch event.Type {
	case EventNoDocuments:
		a.noDocuments++
	case EventZeroResult:
		a.zeroResults++
		bump(a.zeroResultQueries, q)
	}
	bump(a.queryCounts, q)

	// ring buffer once full
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMicros)
	} else {
		a.latencies[a.next] = event.LatencyMicros
		a.next = (a.next + 1) % maxLatencySamples
	}
}

// bump counts q in m. Once m holds maxTrackedQueries entries, a new query
// replaces the entry with the lowest count and starts from that count plus
// one, so frequent queries stay while the table size is fixed. Counts of
// late arrivals are therefore upper bounds.
func bump(m map[string]int64, q string) {
	if _, ok := m[q]; ok || len(m) < maxTrackedQueries {
		m[q]++
		return
	}
	victim, low := "", int64(math.MaxInt64)
	for k, c := range m {
		if c < low || (c == low && k < victim) {
			victim, low = k, c
		}
	}
	delete(m, victim)
	m[q] = low + 1
}

// queryKey cuts q to maxQueryKeyBytes on a rune boundary. The result does
// not share memory with q.
func queryKey(q string) string {
	if len(q) <= maxQueryKeyBytes {
		return q
	}
	cut := maxQueryKeyBytes
	for cut > 0 && !utf8.RuneStart(q[cut]) {
		cut--
	}
	return strings.Clone(q[:cut])
}

// DefaultTop is how many queries Stats lists when asked for top <= 0.
const DefaultTop = 10

// Stats snapshots the counters. top bounds the query lists.
func (a *Aggregator) Stats(top int) AggregatedStats {
	if top <= 0 {
		top = DefaultTop
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := AggregatedStats{
		TotalSearches:     a.totalSearches,
		NoDocumentsCount:  a.noDocuments,
		ZeroResultCount:   a.zeroResults,
		CacheHits:         a.cacheHits,
		TopQueries:        topN(a.queryCounts, top),
		ZeroResultQueries: topN(a.zeroResultQueries, top),
	}
	if n := len(a.latencies); n > 0 {
		sorted := slices.Sorted(slices.Values(a.latencies))
		stats.AvgLatencyMicros = float64(lo.Sum(sorted)) / float64(n)
		stats.P50LatencyMicros = sorted[rank(n, 50)]
		stats.P95LatencyMicros = sorted[rank(n, 95)]
		stats.P99LatencyMicros = sorted[rank(n, 99)]
	}
	if minutes := time.Since(a.startTime).Minutes(); minutes > 0 {
		stats.QueriesPerMinute = float64(a.totalSearches) / minutes
	}
	return stats
}

// rank is the index of the pct-th percentile in n sorted samples.
func rank(n, pct int) int {
	return min(pct*n/100, n-1)
}

// topN orders by count descending, ties by query.
func topN(counts map[string]int64, n int) []QueryCount {
	out := lo.MapToSlice(counts, func(q string, c int64) QueryCount {
		return QueryCount{Query: q, Count: c}
	})
	slices.SortFunc(out, func(x, y QueryCount) int {
		return cmp.Or(cmp.Compare(y.Count, x.Count), strings.Compare(x.Query, y.Query))
	})
	return out[:min(n, len(out))]
}
