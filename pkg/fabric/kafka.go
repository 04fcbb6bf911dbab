package fabric

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the Kafka mirror needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMirror writes each event to the topic <prefix><channel>, keyed by
// the payload's orderId so one order's events stay on one partition. Events
// without an orderId are keyed by event type.
type KafkaMirror struct {
	writer      MessageWriter
	topicPrefix string
}

// NewKafkaMirror wraps writer. The writer must not have a fixed Topic.
func NewKafkaMirror(writer MessageWriter, topicPrefix string) *KafkaMirror {
	return &KafkaMirror{writer: writer, topicPrefix: topicPrefix}
}

// NewKafkaWriter builds the production writer for brokers.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// Topic returns the topic an event channel is mirrored to.
func (m *KafkaMirror) Topic(channel string) string {
	return m.topicPrefix + channel
}

// Mirror implements Mirror.
func (m *KafkaMirror) Mirror(ctx context.Context, event Event) error {
	body, err := json.Marshal(brokerMessage{
		EventType: event.EventType,
		Payload:   event.Payload,
		Timestamp: event.PublishedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode broker message: %w", err)
	}

	msg := kafka.Message{
		Topic: m.Topic(event.Channel),
		Key:   messageKey(event),
		Value: body,
		Time:  event.PublishedAt,
	}
	if err := m.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to %s: %w", msg.Topic, err)
	}
	return nil
}

func messageKey(event Event) []byte {
	var ref struct {
		OrderID string `json:"orderId"`
	}
	if err := json.Unmarshal(event.Payload, &ref); err == nil && ref.OrderID != "" {
		return []byte(ref.OrderID)
	}
	return []byte(event.EventType)
}

// Close closes the underlying writer.
func (m *KafkaMirror) Close() error {
	return m.writer.Close()
}
