// Package events publishes workflow events to Kafka so downstream lab
// systems can follow patient progress.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const TypeTransitioned = "workflow.transitioned"

// Transitioned is emitted after a process change commits.
type Transitioned struct {
	Type       string    `json:"type"`
	HN         string    `json:"hn"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Actor      string    `json:"actor"`
	Version    int       `json:"version"`
	LabTestID  string    `json:"lab_test_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	PublishTransition(ctx context.Context, ev Transitioned) error
	Close() error
}

// Writer is the subset of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	w       Writer
	timeout time.Duration
}

// hnBalancer hashes the message key, so every event for one HN lands on
// the same partition and stays ordered.
func hnBalancer() kafka.Balancer {
	return &kafka.Hash{}
}

// NewKafkaPublisher writes to topic with messages keyed by HN.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     hnBalancer(),
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return NewPublisher(w)
}

// NewPublisher wraps any Writer; tests pass a fake.
func NewPublisher(w Writer) *KafkaPublisher {
	return &KafkaPublisher{w: w, timeout: 10 * time.Second}
}

func (p *KafkaPublisher) PublishTransition(ctx context.Context, ev Transitioned) error {
	if ev.Type == "" {
		ev.Type = TypeTransitioned
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.HN),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("write %s for %s: %w", ev.Type, ev.HN, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// NopPublisher is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishTransition(context.Context, Transitioned) error { return nil }
func (NopPublisher) Close() error                                          { return nil }
