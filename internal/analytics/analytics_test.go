package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Message
	err     error
}

func (f *fakePublisher) Publish(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, append([]kafka.Message(nil), msgs...))
	return f.err
}

func (f *fakePublisher) messages() []kafka.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []kafka.Message
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

func collectorConfig(buffer, batch int, interval time.Duration) config.KafkaConfig {
	return config.KafkaConfig{Topic: "search-analytics", BufferSize: buffer, BatchSize: batch, FlushInterval: interval}
}

func TestCollectorFlushesOnClose(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, collectorConfig(10, 100, time.Hour))
	c.Start(context.Background())

	c.Track(SearchEvent{Type: EventSearch, Query: "report"})
	c.Track(SearchEvent{Type: EventZeroResult, Query: "zzz"})
	c.Close()

	msgs := pub.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "report", msgs[0].Key)
	assert.Equal(t, EventZeroResult, msgs[1].Value.(SearchEvent).Type)
	assert.Len(t, pub.batches, 1)
}

func TestCollectorFlushesFullBatch(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, collectorConfig(10, 2, time.Hour))
	c.Start(context.Background())
	defer c.Close()

	c.Track(SearchEvent{Query: "a"})
	c.Track(SearchEvent{Query: "b"})
	assert.Eventually(t, func() bool { return len(pub.messages()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestCollectorFlushesOnInterval(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, collectorConfig(10, 100, 10*time.Millisecond))
	c.Start(context.Background())
	defer c.Close()

	c.Track(SearchEvent{Query: "a"})
	assert.Eventually(t, func() bool { return len(pub.messages()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestCollectorSurvivesPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, collectorConfig(10, 1, time.Hour))
	c.Start(context.Background())
	c.Track(SearchEvent{Query: "a"})
	c.Track(SearchEvent{Query: "b"})
	c.Close()
	assert.Len(t, pub.messages(), 2)
}

func TestCollectorDropsWhenFull(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, collectorConfig(1, 100, time.Hour))
	// not started: the queue fills after one event
	c.Track(SearchEvent{Query: "a"})
	c.Track(SearchEvent{Query: "b"})
	assert.Len(t, c.events, 1)
	assert.Equal(t, int64(1), c.dropped.Load())
}

func TestCollectorDrainsOnCancel(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, collectorConfig(10, 100, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	c.Track(SearchEvent{Query: "a"})
	c.Track(SearchEvent{Query: "b"})
	cancel()
	c.Start(ctx)
	<-c.done
	assert.Len(t, pub.messages(), 2)
}

func TestCollectorPublishesEventsTrackedAfterCancel(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, collectorConfig(10, 100, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	cancel()
	<-c.done

	c.Track(SearchEvent{Query: "late"})
	c.Close()

	msgs := pub.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "late", msgs[0].Key)
}

func TestCollectorDefaults(t *testing.T) {
	c := NewCollector(&fakePublisher{}, config.KafkaConfig{})
	assert.Equal(t, 10000, cap(c.events))
	assert.Equal(t, 100, c.batch)
	assert.Equal(t, time.Second, c.interval)
}

func TestAggregatorStats(t *testing.T) {
	a := NewAggregator()
	a.Track(SearchEvent{Type: EventSearch, Query: "report", LatencyMicros: 10})
	a.Track(SearchEvent{Type: EventSearch, Query: "report", LatencyMicros: 30, CacheHit: true})
	a.Track(SearchEvent{Type: EventZeroResult, Query: "zzz", LatencyMicros: 20})
	a.Track(SearchEvent{Type: EventNoDocuments, Query: "x", LatencyMicros: 40})

	s := a.Stats(0)
	assert.Equal(t, int64(4), s.TotalSearches)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(1), s.ZeroResultCount)
	assert.Equal(t, int64(1), s.NoDocumentsCount)
	assert.InDelta(t, 25.0, s.AvgLatencyMicros, 0.001)
	assert.Equal(t, int64(30), s.P50LatencyMicros)
	assert.Equal(t, int64(40), s.P99LatencyMicros)
	assert.Equal(t, []QueryCount{{"report", 2}, {"x", 1}, {"zzz", 1}}, s.TopQueries)
	assert.Equal(t, []QueryCount{{"zzz", 1}}, s.ZeroResultQueries)
}

func TestAggregatorStatsTop(t *testing.T) {
	a := NewAggregator()
	for _, q := range []string{"a", "b", "b", "c", "c", "c"} {
		a.Track(SearchEvent{Query: q})
	}
	assert.Equal(t, []QueryCount{{"c", 3}, {"b", 2}}, a.Stats(2).TopQueries)
	assert.Len(t, a.Stats(0).TopQueries, 3)
	assert.Equal(t, 5, rank(6, 99))
	assert.Equal(t, 0, rank(1, 50))
}

func TestAggregatorBoundsQueryTables(t *testing.T) {
	a := NewAggregator()
	for range 50 {
		a.Track(SearchEvent{Type: EventZeroResult, Query: "hot"})
	}
	for i := range 3 * maxTrackedQueries {
		a.Track(SearchEvent{Type: EventZeroResult, Query: fmt.Sprintf("q-%d", i)})
	}

	assert.Len(t, a.queryCounts, maxTrackedQueries)
	assert.Len(t, a.zeroResultQueries, maxTrackedQueries)
	stats := a.Stats(1)
	assert.Equal(t, []QueryCount{{"hot", 50}}, stats.TopQueries)
	assert.Equal(t, []QueryCount{{"hot", 50}}, stats.ZeroResultQueries)
	assert.Equal(t, int64(50+3*maxTrackedQueries), stats.TotalSearches)
}

func TestAggregatorTruncatesLongQueries(t *testing.T) {
	a := NewAggregator()
	long := strings.Repeat("é", maxQueryKeyBytes)
	a.Track(SearchEvent{Query: long})

	top := a.Stats(1).TopQueries
	require.Len(t, top, 1)
	assert.LessOrEqual(t, len(top[0].Query), maxQueryKeyBytes)
	assert.True(t, utf8.ValidString(top[0].Query))
	assert.True(t, strings.HasPrefix(long, top[0].Query))
	assert.Equal(t, "short", queryKey("short"))
}

func TestAggregatorBoundsLatencyWindow(t *testing.T) {
	a := NewAggregator()
	for i := 0; i < maxLatencySamples+5; i++ {
		a.Track(SearchEvent{Query: "q", LatencyMicros: int64(i)})
	}
	assert.Len(t, a.latencies, maxLatencySamples)
	assert.Equal(t, int64(maxLatencySamples+5), a.Stats(0).TotalSearches)
}

func TestMultiSkipsNil(t *testing.T) {
	a, b := NewAggregator(), NewAggregator()
	m := Multi(a, nil, b)
	m.Track(SearchEvent{Query: "q", Timestamp: time.Now()})
	assert.Equal(t, int64(1), a.Stats(0).TotalSearches)
	assert.Equal(t, int64(1), b.Stats(0).TotalSearches)
}

func TestHandlerStats(t *testing.T) {
	a := NewAggregator()
	a.Track(SearchEvent{Query: "q"})

	rec := httptest.NewRecorder()
	NewHandler(a).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var stats AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.TotalSearches)
}

func TestHandlerStatsTopParam(t *testing.T) {
	a := NewAggregator()
	a.Track(SearchEvent{Query: "x"})
	a.Track(SearchEvent{Query: "y"})
	h := NewHandler(a)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats AggregatedStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Len(t, stats.TopQueries, 1)

	rec = httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics?top=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
