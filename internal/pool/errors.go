package pool

import (
	"errors"
	"fmt"
)

// ErrPoolExhausted is returned when every slot is reserved. The pool sheds
// load instead of queueing: the caller is rejected immediately and may retry
// later.
var ErrPoolExhausted = errors.New("connection pool exhausted")

// ErrCircuitOpen is returned when the endpoint's breaker rejects the call
// before any network attempt. Recoverable once the cool-down elapses.
var ErrCircuitOpen = errors.New("circuit open")

// UpstreamError is a 5xx response from the endpoint itself. It is surfaced
// verbatim, never retried, and never counts against circuit health.
type UpstreamError struct {
	StatusCode int
	Body       []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// UnavailableError wraps the transport-level cause after retries are
// exhausted, or the caller's own cancellation.
type UnavailableError struct {
	Endpoint string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("service unavailable: %s: %v", e.Endpoint, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
