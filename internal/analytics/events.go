package analytics

import "time"

type EventType string

const (
	EventSearch      EventType = "search"
	EventZeroResult  EventType = "zero_result"
	EventNoDocuments EventType = "no_documents"
)

type SearchEvent struct {
	Type              EventType `json:"type"`
	Query             string    `json:"query"`
	TotalDocuments    int       `json:"total_documents"`
	MatchingDocuments int       `json:"matching_documents"`
	Returned          int       `json:"returned"`
	LatencyMicros     int64     `json:"latency_us"`
	CacheHit          bool      `json:"cache_hit"`
	Timestamp         time.Time `json:"timestamp"`
	RequestID         string    `json:"request_id"`
}

// Tracker receives one event per handled query. Implementations must not
// block the caller.
type Tracker interface {
	Track(event SearchEvent)
}

type multiTracker []Tracker

func (m multiTracker) Track(event SearchEvent) {
	for _, t := range m {
		t.Track(event)
	}
}

// Multi fans each event out to every non-nil tracker.
func Multi(trackers ...Tracker) Tracker {
	out := make(multiTracker, 0, len(trackers))
	for _, t := range trackers {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}
