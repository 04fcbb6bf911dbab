package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"OrderSaga/pkg/circuitbreaker"

	"github.com/go-kratos/kratos/v2/log"
)

// Options controls a single Execute call.
type Options struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	JitterRatio    float64
	// Timeout bounds each attempt; zero disables the per-attempt deadline.
	Timeout time.Duration
	// Breaker only takes effect the first time a target is seen.
	Breaker circuitbreaker.Config
}

// DefaultOptions matches the order service's outbound call policy.
var DefaultOptions = Options{
	MaxAttempts:    4,
	InitialBackoff: time.Second,
	JitterRatio:    0.3,
	Timeout:        3 * time.Second,
	Breaker:        circuitbreaker.DefaultConfig,
}

// Call performs one attempt. It must honour ctx.
type Call func(ctx context.Context) error

// Executor runs calls against targets guarded by breakers from one Registry.
type Executor struct {
	registry *circuitbreaker.Registry
	sleep    func(ctx context.Context, d time.Duration) error
	rnd      func() float64
	logger   *log.Helper
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithSleep replaces the backoff sleep, mainly for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ExecutorOption {
	return func(e *Executor) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithRand replaces the jitter source. rnd must return values in [0, 1).
func WithRand(rnd func() float64) ExecutorOption {
	return func(e *Executor) {
		if rnd != nil {
			e.rnd = rnd
		}
	}
}

// NewExecutor creates an executor backed by registry.
func NewExecutor(registry *circuitbreaker.Registry, logger log.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: registry,
		sleep:    SleepWithContext,
		rnd:      rand.Float64,
		logger:   log.NewHelper(logger),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry exposes the breaker store, e.g. for debug snapshots.
func (e *Executor) Registry() *circuitbreaker.Registry {
	return e.registry
}

// Execute runs call against target with retries. It fails fast with
// ErrCircuitOpen when the breaker rejects the call; that rejection is not
// counted as a breaker failure. Retriable failures are reported to the
// breaker on every attempt; non-retriable ones return immediately and leave
// the breaker untouched.
func (e *Executor) Execute(ctx context.Context, target string, opts Options, call Call) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}

	breaker := e.registry.Get(target, opts.Breaker)
	if !breaker.Allow() {
		e.logger.Warnw("msg", "call rejected by open circuit", "target", target)
		return fmt.Errorf("%s: %w", target, ErrCircuitOpen)
	}

	var lastErr error
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		lastErr = e.attempt(ctx, opts.Timeout, call)
		if lastErr == nil {
			breaker.OnSuccess()
			if attempt > 0 {
				e.logger.Infow("msg", "call succeeded after retry", "target", target, "attempt", attempt+1)
			}
			return nil
		}

		if ctx.Err() != nil {
			return errors.Join(lastErr, ctx.Err())
		}

		if !IsRetriable(lastErr) {
			return lastErr
		}
		breaker.OnFailure()

		if attempt == opts.MaxAttempts-1 {
			break
		}

		delay := Jittered(opts.InitialBackoff, attempt, opts.JitterRatio, e.rnd)
		e.logger.Warnw("msg", "retriable call failure, backing off",
			"target", target,
			"attempt", attempt+1,
			"max_attempts", opts.MaxAttempts,
			"delay", delay.String(),
			"error", lastErr)

		if err := e.sleep(ctx, delay); err != nil {
			return errors.Join(lastErr, err)
		}
	}

	e.logger.Errorw("msg", "call failed after retries",
		"target", target,
		"attempts", opts.MaxAttempts,
		"error", lastErr)
	return lastErr
}

func (e *Executor) attempt(ctx context.Context, timeout time.Duration, call Call) error {
	if timeout <= 0 {
		return call(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return call(callCtx)
}
