package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"volumetracker/config"
	"volumetracker/internal/quote"

	"github.com/segmentio/kafka-go"
)

// Writer is the subset of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher emits one message per snapshot, keyed by symbol so every update
// of a symbol lands on the same partition in order.
type Publisher struct {
	writer Writer
}

func NewPublisher(w Writer) *Publisher {
	return &Publisher{writer: w}
}

// NewWriter builds a kafka-go writer for cfg.
func NewWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

func (p *Publisher) Name() string { return "kafka" }

func (p *Publisher) Publish(ctx context.Context, snaps []quote.Snapshot) error {
	msgs := make([]kafka.Message, 0, len(snaps))
	for _, snap := range snaps {
		payload, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("encode %s: %w", snap.Symbol, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(snap.Symbol),
			Value: payload,
			Headers: []kafka.Header{
				{Key: "mode", Value: []byte(snap.Mode)},
			},
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
