package fabric

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAMQPChannel struct {
	declared   []string
	kinds      []string
	published  []amqp.Publishing
	exchanges  []string
	publishErr error
	closed     bool
}

func (f *fakeAMQPChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	f.declared = append(f.declared, name)
	f.kinds = append(f.kinds, kind)
	return nil
}

func (f *fakeAMQPChannel) PublishWithContext(_ context.Context, exchange, _ string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.exchanges = append(f.exchanges, exchange)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeAMQPChannel) Close() error {
	f.closed = true
	return nil
}

func testEvent(channel, eventType, payload string) Event {
	return Event{
		Channel:     channel,
		EventType:   eventType,
		Payload:     json.RawMessage(payload),
		PublishedAt: time.UnixMilli(1700000000000),
	}
}

func TestRabbitMQMirror_DeclaresFanoutOncePerExchange(t *testing.T) {
	ch := &fakeAMQPChannel{}
	m := NewRabbitMQMirror(ch)

	require.NoError(t, m.Mirror(context.Background(), testEvent(ChannelOrder, EventOrderCreated, `{"orderId":"a"}`)))
	require.NoError(t, m.Mirror(context.Background(), testEvent(ChannelOrder, EventPaymentPending, `{"orderId":"a"}`)))
	require.NoError(t, m.Mirror(context.Background(), testEvent(ChannelPayment, EventPaymentCompleted, `{"orderId":"a"}`)))

	assert.Equal(t, []string{ChannelOrder, ChannelPayment}, ch.declared)
	assert.Equal(t, []string{amqp.ExchangeFanout, amqp.ExchangeFanout}, ch.kinds)
	assert.Equal(t, []string{ChannelOrder, ChannelOrder, ChannelPayment}, ch.exchanges)

	var msg brokerMessage
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &msg))
	assert.Equal(t, EventOrderCreated, msg.EventType)
	assert.JSONEq(t, `{"orderId":"a"}`, string(msg.Payload))
	assert.Equal(t, int64(1700000000000), msg.Timestamp)
	assert.Equal(t, "application/json", ch.published[0].ContentType)

	require.NoError(t, m.Close())
	assert.True(t, ch.closed)
}

func TestRabbitMQMirror_PublishError(t *testing.T) {
	ch := &fakeAMQPChannel{publishErr: errors.New("channel closed")}
	m := NewRabbitMQMirror(ch)

	err := m.Mirror(context.Background(), testEvent(ChannelOrder, EventOrderCreated, `{}`))
	assert.ErrorContains(t, err, "publish to order_exchange")
}

type fakeKafkaWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeKafkaWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeKafkaWriter) Close() error {
	f.closed = true
	return nil
}

func TestKafkaMirror_WritesToPrefixedTopic(t *testing.T) {
	w := &fakeKafkaWriter{}
	m := NewKafkaMirror(w, "ordersaga.")

	require.NoError(t, m.Mirror(context.Background(), testEvent(ChannelNotification, EventShipmentCreated, `{"orderId":"s"}`)))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "ordersaga.notification_exchange", w.msgs[0].Topic)
	assert.Equal(t, []byte("s"), w.msgs[0].Key)

	var msg brokerMessage
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &msg))
	assert.Equal(t, EventShipmentCreated, msg.EventType)

	require.NoError(t, m.Close())
	assert.True(t, w.closed)
}

func TestKafkaMirror_MessageKey(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "order id", payload: `{"orderId":"o-7","reason":"x"}`, want: "o-7"},
		{name: "no order id", payload: `{"sku":"SKU-1"}`, want: EventInventoryUpdated},
		{name: "not an object", payload: `3`, want: EventInventoryUpdated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeKafkaWriter{}
			m := NewKafkaMirror(w, "")
			require.NoError(t, m.Mirror(context.Background(), testEvent(ChannelInventory, EventInventoryUpdated, tt.payload)))
			require.Len(t, w.msgs, 1)
			assert.Equal(t, tt.want, string(w.msgs[0].Key))
		})
	}
}

func TestNewKafkaWriter_FlushesSmallBatchesQuickly(t *testing.T) {
	w := NewKafkaWriter([]string{"localhost:9092"})
	defer w.Close()
	assert.Equal(t, 10*time.Millisecond, w.BatchTimeout)
	assert.False(t, w.Async)
}

func TestKafkaMirror_WriteError(t *testing.T) {
	m := NewKafkaMirror(&fakeKafkaWriter{err: errors.New("leader not available")}, "")
	err := m.Mirror(context.Background(), testEvent(ChannelOrder, EventOrderCreated, `{}`))
	assert.ErrorContains(t, err, "write to order_exchange")
}
