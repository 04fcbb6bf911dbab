// Package retry wraps outbound calls with bounded retries, exponential
// backoff with jitter, and a per-target circuit breaker.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

const maxShift = 62

// Exponential returns base * 2^attempt, saturating instead of overflowing.
func Exponential(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}

	multiplier := int64(1) << attempt
	if int64(base) > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}
	return base * time.Duration(multiplier)
}

// Jittered spreads the exponential delay uniformly within +/- ratio of
// itself. rnd must return a value in [0, 1). The result is never negative.
func Jittered(base time.Duration, attempt int, ratio float64, rnd func() float64) time.Duration {
	d := Exponential(base, attempt)
	if ratio <= 0 || rnd == nil {
		return d
	}

	jitter := math.Floor(float64(d) * ratio)
	delay := float64(d) - jitter + rnd()*2*jitter
	if delay < 0 {
		return 0
	}
	if delay >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// SleepWithContext blocks for d or until ctx is done.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context done: %w", ctx.Err())
	}
}
