package fabric

import (
	"errors"
	"sync"
)

// ErrBusClosed is returned when publishing on a closed bus.
var ErrBusClosed = errors.New("fabric: bus is closed")

type subscribeConfig struct {
	bufferSize int
}

// SubscribeOption configures one subscription.
type SubscribeOption func(*subscribeConfig)

// WithSubscriptionBuffer overrides the bus default buffer for one subscriber.
func WithSubscriptionBuffer(n int) SubscribeOption {
	return func(c *subscribeConfig) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// Subscription is a live, unbounded stream of events on one channel.
// Re-subscribing is the only way to restart it.
type Subscription struct {
	bus     *Bus
	channel string
	ch      chan Event

	// mu guards closed so a send never races close(ch).
	mu     sync.Mutex
	closed bool
}

// C returns the receive side. It is closed when the subscription ends.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Channel returns the channel name this subscription listens on.
func (s *Subscription) Channel() string {
	return s.channel
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// deliver performs a non-blocking send; false means the event was dropped.
func (s *Subscription) deliver(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- e:
		return true
	default:
		return false
	}
}

func (s *Subscription) closeLocked() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
