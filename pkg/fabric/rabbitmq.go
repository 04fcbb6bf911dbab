package fabric

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPChannel is the subset of *amqp.Channel the RabbitMQ mirror needs.
type AMQPChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// brokerMessage is the wire envelope shared with the other services.
type brokerMessage struct {
	EventType string          `json:"eventType"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// RabbitMQMirror publishes each event to a durable fanout exchange named
// after its channel.
type RabbitMQMirror struct {
	ch   AMQPChannel
	conn *amqp.Connection

	mu       sync.Mutex
	declared map[string]bool
}

// NewRabbitMQMirror wraps an already opened channel.
func NewRabbitMQMirror(ch AMQPChannel) *RabbitMQMirror {
	return &RabbitMQMirror{
		ch:       ch,
		declared: make(map[string]bool),
	}
}

// DialRabbitMQMirror connects to url and opens a dedicated channel.
func DialRabbitMQMirror(url string) (*RabbitMQMirror, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	m := NewRabbitMQMirror(ch)
	m.conn = conn
	return m, nil
}

// Mirror implements Mirror.
func (m *RabbitMQMirror) Mirror(ctx context.Context, event Event) error {
	if err := m.ensureExchange(event.Channel); err != nil {
		return err
	}

	body, err := json.Marshal(brokerMessage{
		EventType: event.EventType,
		Payload:   event.Payload,
		Timestamp: event.PublishedAt.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode broker message: %w", err)
	}

	err = m.ch.PublishWithContext(ctx, event.Channel, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    event.PublishedAt.Truncate(time.Second),
		Type:         event.EventType,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", event.Channel, err)
	}
	return nil
}

// Close closes the channel and, when dialed by the mirror, its connection.
func (m *RabbitMQMirror) Close() error {
	err := m.ch.Close()
	if m.conn != nil {
		if cerr := m.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (m *RabbitMQMirror) ensureExchange(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.declared[name] {
		return nil
	}
	if err := m.ch.ExchangeDeclare(name, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	m.declared[name] = true
	return nil
}
