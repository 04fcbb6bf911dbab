// Package circuitbreaker provides a ratio-based circuit breaker and a keyed
// registry that owns one breaker per downstream target.
//
// A breaker opens once at least MinRequests calls have been observed and the
// failure ratio reaches FailureThresholdRatio. After OpenDuration it admits
// trial traffic (HALF_OPEN) and closes again after SuccessesToClose clean
// successes. A clean success while CLOSED forgives earlier failures but keeps
// the request counter accumulating.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is the breaker gate state.
type State int

const (
	// StateClosed admits every request.
	StateClosed State = iota
	// StateOpen rejects requests until the open deadline passes.
	StateOpen
	// StateHalfOpen admits trial requests after the open deadline.
	StateHalfOpen
)

// String returns the lowercase wire form of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// MarshalText lets State render as its string form in JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Config is fixed per target for the lifetime of its breaker.
type Config struct {
	FailureThresholdRatio float64
	MinRequests           int
	OpenDuration          time.Duration
	SuccessesToClose      int
}

// DefaultConfig mirrors the production defaults of the order service.
var DefaultConfig = Config{
	FailureThresholdRatio: 0.5,
	MinRequests:           10,
	OpenDuration:          30 * time.Second,
	SuccessesToClose:      1,
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	if c.FailureThresholdRatio <= 0 {
		c.FailureThresholdRatio = DefaultConfig.FailureThresholdRatio
	}
	if c.MinRequests <= 0 {
		c.MinRequests = DefaultConfig.MinRequests
	}
	if c.OpenDuration <= 0 {
		c.OpenDuration = DefaultConfig.OpenDuration
	}
	if c.SuccessesToClose <= 0 {
		c.SuccessesToClose = DefaultConfig.SuccessesToClose
	}
	return c
}

// StateChangeListener is notified after a transition, outside the breaker lock.
type StateChangeListener func(target string, from, to State)

// Snapshot is a read-only copy of a breaker's counters.
type Snapshot struct {
	Target        string    `json:"target"`
	State         State     `json:"state"`
	FailureCount  int       `json:"failureCount"`
	SuccessCount  int       `json:"successCount"`
	RequestCount  int       `json:"requestCount"`
	NextAttemptAt time.Time `json:"nextAttempt"`
}

// Breaker tracks failures for one target. All methods are safe for
// concurrent use; a single mutex serializes every check and mutation.
type Breaker struct {
	target string
	cfg    Config
	now    func() time.Time

	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	requestCount  int
	nextAttemptAt time.Time
	listeners     []StateChangeListener
}

// New creates a CLOSED breaker for target.
func New(target string, cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		target: target,
		cfg:    cfg.withDefaults(),
		now:    time.Now,
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithListener registers a state change listener at construction time.
func WithListener(l StateChangeListener) Option {
	return func(b *Breaker) {
		if l != nil {
			b.listeners = append(b.listeners, l)
		}
	}
}

// Target returns the identity this breaker guards.
func (b *Breaker) Target() string { return b.target }

// Config returns the immutable configuration.
func (b *Breaker) Config() Config { return b.cfg }

// OnStateChange registers a listener for later transitions.
func (b *Breaker) OnStateChange(l StateChangeListener) {
	if l == nil {
		return
	}
	b.mu.Lock()
	b.listeners = append(b.listeners, l)
	b.mu.Unlock()
}

// Allow reports whether a request may be sent now. An OPEN breaker whose
// deadline has passed moves to HALF_OPEN and admits the caller. HALF_OPEN
// admits every caller; concurrent probes are not limited.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if !b.now().After(b.nextAttemptAt) {
			b.mu.Unlock()
			return false
		}
		notify := b.transitionLocked(StateHalfOpen)
		b.mu.Unlock()
		notify()
		return true
	default:
		b.mu.Unlock()
		return true
	}
}

// OnSuccess records a successful call.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	b.requestCount++

	if b.state == StateHalfOpen {
		b.successCount++
		if b.successCount >= b.cfg.SuccessesToClose {
			notify := b.resetLocked()
			b.mu.Unlock()
			notify()
			return
		}
		b.mu.Unlock()
		return
	}

	b.failureCount = 0
	b.successCount = 0
	b.mu.Unlock()
}

// OnFailure records a failed call and opens the breaker once the failure
// ratio crosses the threshold with enough samples.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	b.requestCount++
	b.failureCount++

	// a failed probe reopens regardless of the accumulated ratio
	if b.state != StateHalfOpen {
		if b.requestCount < b.cfg.MinRequests {
			b.mu.Unlock()
			return
		}
		ratio := float64(b.failureCount) / float64(b.requestCount)
		if ratio < b.cfg.FailureThresholdRatio {
			b.mu.Unlock()
			return
		}
	}

	b.nextAttemptAt = b.now().Add(b.cfg.OpenDuration)
	b.successCount = 0
	notify := b.transitionLocked(StateOpen)
	b.mu.Unlock()
	notify()
}

// Reset forces the breaker CLOSED with zeroed counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	notify := b.resetLocked()
	b.mu.Unlock()
	notify()
}

// State returns the current state without side effects.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot copies the counters under the lock.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Target:        b.target,
		State:         b.state,
		FailureCount:  b.failureCount,
		SuccessCount:  b.successCount,
		RequestCount:  b.requestCount,
		NextAttemptAt: b.nextAttemptAt,
	}
}

func (b *Breaker) resetLocked() func() {
	b.failureCount = 0
	b.successCount = 0
	b.requestCount = 0
	b.nextAttemptAt = time.Time{}
	return b.transitionLocked(StateClosed)
}

// transitionLocked must be called with mu held. It returns a closure that
// fires listeners and must be invoked after the lock is released.
func (b *Breaker) transitionLocked(to State) func() {
	from := b.state
	b.state = to
	if from == to || len(b.listeners) == 0 {
		return func() {}
	}

	listeners := make([]StateChangeListener, len(b.listeners))
	copy(listeners, b.listeners)
	target := b.target
	return func() {
		for _, l := range listeners {
			l(target, from, to)
		}
	}
}
