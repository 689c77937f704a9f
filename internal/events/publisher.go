// Package events relays ledger events to external consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/webdoc-rokib/visa-track-sub000/internal/store"
)

type Publisher interface {
	Publish(ctx context.Context, events []store.FileEvent) error
	Close() error
}

// Message is the wire shape of a relayed ledger event.
type Message struct {
	Position  int64           `json:"position"`
	FileID    string          `json:"file_id"`
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	Hash      string          `json:"hash"`
}

func NewMessage(event store.FileEvent) Message {
	return Message{
		Position:  event.Position,
		FileID:    event.FileID,
		Seq:       event.Seq,
		Type:      event.Type,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
		Hash:      event.Hash,
	}
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher keys messages by file id so one file's events stay on one partition.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, events []store.FileEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		value, err := json.Marshal(NewMessage(event))
		if err != nil {
			return fmt.Errorf("encode event %d: %w", event.Position, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(event.FileID),
			Value: value,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(event.Type)},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka publish: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, []store.FileEvent) error { return nil }
func (NoopPublisher) Close() error                                    { return nil }
