package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/kafka"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// Collector queues search events and publishes them in batches, either when
// BatchSize events are pending or every FlushInterval. Track never blocks;
// when the queue is full the event is counted as dropped.
type Collector struct {
	pub      Publisher
	events   chan SearchEvent
	batch    int
	interval time.Duration
	dropped  atomic.Int64
	logger   *slog.Logger
	done     chan struct{}
}

func NewCollector(pub Publisher, cfg config.KafkaConfig) *Collector {
	c := &Collector{
		pub:      pub,
		events:   make(chan SearchEvent, cmpOr(cfg.BufferSize, 10000)),
		batch:    cmpOr(cfg.BatchSize, 100),
		interval: cmpOr(cfg.FlushInterval, time.Second),
		logger:   slog.Default().With("component", "analytics-collector", "topic", cfg.Topic),
		done:     make(chan struct{}),
	}
	return c
}

func cmpOr[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Start runs the publish loop until ctx is cancelled or Close is called.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"queue", cap(c.events),
		"batch", c.batch,
		"flush_interval", c.interval,
	)
}

func (c *Collector) Track(event SearchEvent) {
	select {
	case c.events <- event:
	default:
		if n := c.dropped.Add(1); n == 1 || n%1000 == 0 {
			c.logger.Warn("analytics queue full, dropping events", "dropped_total", n)
		}
	}
}

// Close stops the loop and publishes everything still queued, including
// events tracked after the Start context ended. Track must not be called
// afterwards.
func (c *Collector) Close() {
	close(c.events)
	<-c.done

	var rest []kafka.Message
	for ev := range c.events {
		rest = append(rest, message(ev))
	}
	if len(rest) == 0 {
		return
	}
	if err := c.pub.Publish(context.Background(), rest...); err != nil {
		c.logger.Error("publishing analytics on close", "events", len(rest), "error", err)
	}
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	pending := make([]kafka.Message, 0, c.batch)
	flush := func(ctx context.Context) {
		if len(pending) == 0 {
			return
		}
		if err := c.pub.Publish(ctx, pending...); err != nil {
			c.logger.Error("publishing analytics batch", "events", len(pending), "error", err)
		}
		pending = pending[:0]
	}

	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				flush(context.WithoutCancel(ctx))
				return
			}
			pending = append(pending, message(ev))
			if len(pending) >= c.batch {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			for drained := false; !drained; {
				select {
				case ev, ok := <-c.events:
					if !ok {
						drained = true
						break
					}
					pending = append(pending, message(ev))
				default:
					drained = true
				}
			}
			flush(context.WithoutCancel(ctx))
			return
		}
	}
}

func message(ev SearchEvent) kafka.Message {
	return kafka.Message{Key: ev.Query, Value: ev}
}
