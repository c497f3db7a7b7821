// Package kafka writes JSON messages to a single topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/docquery/pkg/config"
)

// Message is published with Key as the partition key and Value encoded as
// JSON.
type Message struct {
	Key   string
	Value any
}

type Producer struct {
	writer *kafka.Writer
	topic  string
	logger *slog.Logger
}

// NewProducer does not dial; the writer connects on first use.
func NewProducer(cfg config.KafkaConfig) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    max(cfg.BatchSize, 1),
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			Compression:  kafka.Snappy,
			WriteTimeout: 5 * time.Second,
		},
		topic:  cfg.Topic,
		logger: slog.Default().With("component", "kafka-producer", "topic", cfg.Topic),
	}
}

// Publish writes msgs in one call. A message that cannot be encoded fails
// the whole call before anything is sent.
func (p *Producer) Publish(ctx context.Context, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	out, err := encode(msgs)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := p.writer.WriteMessages(ctx, out...); err != nil {
		return fmt.Errorf("writing %d messages to %s: %w", len(out), p.topic, err)
	}
	p.logger.Debug("messages written", "count", len(out), "elapsed", time.Since(start))
	return nil
}

func encode(msgs []Message) ([]kafka.Message, error) {
	out := make([]kafka.Message, len(msgs))
	for i, m := range msgs {
		value, err := json.Marshal(m.Value)
		if err != nil {
			return nil, fmt.Errorf("encoding message %q: %w", m.Key, err)
		}
		out[i] = kafka.Message{Key: []byte(m.Key), Value: value}
	}
	return out, nil
}

// Close flushes buffered writes.
func (p *Producer) Close() error {
	return p.writer.Close()
}
