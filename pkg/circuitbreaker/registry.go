package circuitbreaker

import (
	"sort"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// Registry owns one Breaker per target identity.
//
// The first Config passed for a target wins for the life of the process.
// A later Get with a different Config returns the existing breaker unchanged
// and logs a warning, so callers sharing a target must agree on its Config.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker

	now       func() time.Time
	listeners []StateChangeListener
	logger    *log.Helper
}

// NewRegistry creates an empty registry.
func NewRegistry(logger log.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		breakers: make(map[string]*Breaker),
		now:      time.Now,
		logger:   log.NewHelper(logger),
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.listeners) == 0 {
		r.listeners = append(r.listeners, r.logTransition)
	}
	return r
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryClock sets the clock handed to every breaker the registry creates.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithStateChangeListener subscribes l to transitions of every breaker.
// Listeners replace the registry's default transition log line.
func WithStateChangeListener(l StateChangeListener) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.listeners = append(r.listeners, l)
		}
	}
}

// Get returns the breaker for target, creating it with cfg on first use.
func (r *Registry) Get(target string, cfg Config) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[target]
	r.mu.RUnlock()
	if ok {
		r.warnOnMismatch(b, cfg)
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok = r.breakers[target]; ok {
		r.warnOnMismatch(b, cfg)
		return b
	}

	opts := []Option{WithClock(r.now)}
	for _, l := range r.listeners {
		opts = append(opts, WithListener(l))
	}
	b = New(target, cfg, opts...)
	r.breakers[target] = b

	r.logger.Infow("msg", "circuit breaker created",
		"target", target,
		"failure_threshold_ratio", b.cfg.FailureThresholdRatio,
		"min_requests", b.cfg.MinRequests,
		"open_duration", b.cfg.OpenDuration.String(),
		"successes_to_close", b.cfg.SuccessesToClose)

	return b
}

// Lookup returns the breaker for target without creating one.
func (r *Registry) Lookup(target string) (*Breaker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.breakers[target]
	return b, ok
}

// Reset forces the named breaker CLOSED. It reports false for unknown targets.
func (r *Registry) Reset(target string) bool {
	b, ok := r.Lookup(target)
	if !ok {
		return false
	}
	b.Reset()
	return true
}

// Snapshot returns the state of every breaker, ordered by target.
func (r *Registry) Snapshot() []Snapshot {
	r.mu.RLock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

func (r *Registry) warnOnMismatch(b *Breaker, cfg Config) {
	if cfg.withDefaults() == b.cfg {
		return
	}
	r.logger.Warnw("msg", "circuit breaker config ignored, target already registered",
		"target", b.target,
		"registered_min_requests", b.cfg.MinRequests,
		"requested_min_requests", cfg.withDefaults().MinRequests)
}

func (r *Registry) logTransition(target string, from, to State) {
	r.logger.Warnw("msg", "circuit breaker state changed",
		"target", target,
		"from", from.String(),
		"to", to.String())
}
