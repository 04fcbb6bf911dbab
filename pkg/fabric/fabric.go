// Package fabric is a best-effort fanout event bus.
//
// Every subscription live on a channel at publish time receives its own copy
// of the event. Delivery is at-most-once: a full subscriber buffer drops the
// event for that subscriber only, nothing is persisted, acknowledged,
// redelivered or deduplicated, and no ordering holds across channels.
// Broker mirrors are fed from a bounded background queue, so a slow broker
// never holds up Publish.
package fabric

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// Channel names. They match the fanout exchanges used on the broker.
const (
	ChannelOrder        = "order_exchange"
	ChannelPayment      = "payment_exchange"
	ChannelNotification = "notification_exchange"
	ChannelInventory    = "inventory_exchange"
)

// Event types.
const (
	EventOrderCreated     = "order_created"
	EventOrderCancelled   = "order_cancelled"
	EventPaymentPending   = "payment_pending"
	EventPaymentCompleted = "payment_completed"
	EventPaymentFailed    = "payment_failed"
	EventShipmentCreated  = "shipment_created"
	EventInventoryUpdated = "inventory_updated"
)

const (
	defaultBufferSize      = 256
	defaultMirrorQueueSize = 1024
	defaultMirrorTimeout   = 5 * time.Second
)

// Event is one published message.
type Event struct {
	Channel     string          `json:"channel"`
	EventType   string          `json:"eventType"`
	Payload     json.RawMessage `json:"payload"`
	PublishedAt time.Time       `json:"publishedAt"`
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	return nil
}

// Publisher is the write side of the fabric.
type Publisher interface {
	Publish(ctx context.Context, channel, eventType string, payload any) error
}

// Mirror forwards published events to an external broker. Mirrors run on
// the bus's mirror worker after local fanout; their errors are logged and
// never surface to the publisher.
type Mirror interface {
	Mirror(ctx context.Context, event Event) error
	Close() error
}

// Stats counts events the bus could not hand over.
type Stats struct {
	// Dropped is keyed by channel: events a full subscriber buffer refused.
	Dropped map[string]int64 `json:"dropped"`
	// MirrorDropped counts events refused by a full mirror queue.
	MirrorDropped int64 `json:"mirrorDropped"`
	// MirrorQueued is the current mirror backlog.
	MirrorQueued int `json:"mirrorQueued"`
}

type mirrorJob struct {
	ctx   context.Context
	event Event
}

// Bus is the in-process fabric.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{}
	closed  bool
	mirrors []Mirror

	mirrorQueue     chan mirrorJob
	mirrorDone      chan struct{}
	mirrorQueueSize int
	mirrorTimeout   time.Duration

	statsMu       sync.Mutex
	dropped       map[string]int64
	mirrorDropped int64

	bufferSize int
	now        func() time.Time
	logger     *log.Helper
}

// Option configures a Bus.
type Option func(*Bus)

// WithBufferSize sets the default per-subscription buffer.
func WithBufferSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.bufferSize = n
		}
	}
}

// WithMirror adds a broker mirror.
func WithMirror(m Mirror) Option {
	return func(b *Bus) {
		if m != nil {
			b.mirrors = append(b.mirrors, m)
		}
	}
}

// WithMirrorQueue sets how many events may wait for the mirrors.
func WithMirrorQueue(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.mirrorQueueSize = n
		}
	}
}

// WithMirrorTimeout bounds one mirror write.
func WithMirrorTimeout(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.mirrorTimeout = d
		}
	}
}

// WithClock overrides the publish timestamp source.
func WithClock(now func() time.Time) Option {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBus creates an empty bus.
func NewBus(logger log.Logger, opts ...Option) *Bus {
	b := &Bus{
		subs:            make(map[string]map[*Subscription]struct{}),
		dropped:         make(map[string]int64),
		mirrorQueueSize: defaultMirrorQueueSize,
		mirrorTimeout:   defaultMirrorTimeout,
		bufferSize:      defaultBufferSize,
		now:             time.Now,
		logger:          log.NewHelper(logger),
	}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.mirrors) > 0 {
		b.mirrorQueue = make(chan mirrorJob, b.mirrorQueueSize)
		b.mirrorDone = make(chan struct{})
		go b.runMirrors()
	}
	return b
}

// Publish encodes payload and fans it out to every live subscriber of
// channel. It only fails when the payload cannot be encoded or the bus is
// closed; delivery problems are logged and counted. Mirrors see the event
// later, with ctx's values but not its cancellation.
func (b *Bus) Publish(ctx context.Context, channel, eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	event := Event{
		Channel:     channel,
		EventType:   eventType,
		Payload:     raw,
		PublishedAt: b.now(),
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	delivered, dropped := 0, 0
	for sub := range b.subs[channel] {
		if sub.deliver(event) {
			delivered++
		} else {
			dropped++
		}
	}
	mirrorDropped := false
	if b.mirrorQueue != nil {
		select {
		case b.mirrorQueue <- mirrorJob{ctx: context.WithoutCancel(ctx), event: event}:
		default:
			mirrorDropped = true
		}
	}
	b.mu.RUnlock()

	if dropped > 0 || mirrorDropped {
		b.statsMu.Lock()
		b.dropped[channel] += int64(dropped)
		if mirrorDropped {
			b.mirrorDropped++
		}
		b.statsMu.Unlock()
	}
	if dropped > 0 {
		b.logger.Warnw("msg", "event dropped for slow subscribers",
			"channel", channel,
			"event_type", eventType,
			"dropped", dropped)
	}
	if mirrorDropped {
		b.logger.Warnw("msg", "mirror queue full, event not mirrored",
			"channel", channel,
			"event_type", eventType)
	}
	b.logger.Debugw("msg", "event published",
		"channel", channel,
		"event_type", eventType,
		"subscribers", delivered)
	return nil
}

// runMirrors drains the mirror queue until Close.
func (b *Bus) runMirrors() {
	defer close(b.mirrorDone)
	for job := range b.mirrorQueue {
		for _, m := range b.mirrors {
			ctx, cancel := context.WithTimeout(job.ctx, b.mirrorTimeout)
			err := m.Mirror(ctx, job.event)
			cancel()
			if err != nil {
				b.logger.Warnw("msg", "event mirror failed",
					"channel", job.event.Channel,
					"event_type", job.event.EventType,
					"error", err)
			}
		}
	}
}

// Stats returns the drop counters since the bus was created.
func (b *Bus) Stats() Stats {
	b.statsMu.Lock()
	st := Stats{
		Dropped:       make(map[string]int64, len(b.dropped)),
		MirrorDropped: b.mirrorDropped,
	}
	for channel, n := range b.dropped {
		st.Dropped[channel] = n
	}
	b.statsMu.Unlock()

	if b.mirrorQueue != nil {
		st.MirrorQueued = len(b.mirrorQueue)
	}
	return st
}

// Subscribe registers a subscription on channel. It only observes events
// published after it returns.
func (b *Bus) Subscribe(channel string, opts ...SubscribeOption) *Subscription {
	cfg := subscribeConfig{bufferSize: b.bufferSize}
	for _, opt := range opts {
		opt(&cfg)
	}

	sub := &Subscription{
		bus:     b,
		channel: channel,
		ch:      make(chan Event, cfg.bufferSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[*Subscription]struct{})
	}
	b.subs[channel][sub] = struct{}{}
	return sub
}

// Subscribers returns the number of live subscriptions on channel.
func (b *Bus) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// Close ends every subscription, waits for queued events to be mirrored and
// closes the mirrors.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for channel, subs := range b.subs {
		for sub := range subs {
			sub.closeLocked()
		}
		delete(b.subs, channel)
	}
	mirrors := b.mirrors
	if b.mirrorQueue != nil {
		close(b.mirrorQueue)
	}
	b.mu.Unlock()

	if b.mirrorDone != nil {
		<-b.mirrorDone
	}

	var firstErr error
	for _, m := range mirrors {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subs[sub.channel]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(b.subs, sub.channel)
		}
	}
	sub.closeLocked()
}
