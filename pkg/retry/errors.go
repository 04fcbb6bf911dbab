package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrCircuitOpen is returned without attempting the call when the target's
// breaker rejects it.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// StatusError is an application-level failure reported by the remote side.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote responded with status %d", e.StatusCode)
}

// TransportError marks a failure to reach the remote: timeout, refused,
// reset or unresolvable.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsRetriable reports whether err is transient: a transport failure, a
// timeout, or a 5xx status. Everything else is returned to the caller as-is.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsCircuitOpen reports whether err came from an open breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// StatusCode extracts the remote status code, or 0 if err carries none.
func StatusCode(err error) int {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
