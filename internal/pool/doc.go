// Package pool implements the resilient outbound connection pool.
//
// The pool shields the platform from flaky downstream HTTP dependencies by
// combining three guards around every call:
//
//   - a per-endpoint circuit breaker consulted before any network attempt
//   - a bounded reservation table that sheds excess load immediately
//     instead of queueing it
//   - bounded retries with exponential backoff for transport-level failures
//
// The breaker only tracks reachability: any response, including a 4xx, is a
// transport success, while a 5xx is surfaced verbatim without retry or
// breaker penalty. Rejected callers get typed errors (ErrPoolExhausted,
// ErrCircuitOpen) they can map to a 503 at whatever boundary wraps the
// client.
//
// The reservation table is keyed by endpoint URL: at most PoolSize distinct
// endpoints may be in flight at once, and concurrent calls to the same
// endpoint share that endpoint's slot. The slot frees when the last of them
// releases, and every exit path of Acquire, including cancellation,
// releases exactly once.
package pool
