package pool

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/carelink/upstream/internal/circuitbreaker"
	"github.com/carelink/upstream/internal/metrics"
)

const (
	DefaultPoolSize       = 10
	DefaultRequestTimeout = 30 * time.Second
	DefaultRetryAttempts  = 3
)

// Config bounds the pool's concurrency and retry behavior. Zero fields fall
// back to the defaults. RequestTimeout bounds a single attempt; one Acquire
// can take up to RetryAttempts*RequestTimeout plus backoff sleeps.
type Config struct {
	PoolSize       int
	RequestTimeout time.Duration
	RetryAttempts  int
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	return c
}

// SleepFunc suspends the calling goroutine for d or until ctx is done.
// Only the retrying caller sleeps; unrelated callers are unaffected.
type SleepFunc func(ctx context.Context, d time.Duration) error

func defaultSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option configures a ConnectionPool.
type Option func(*ConnectionPool)

// WithTransport replaces the lazily created HTTP transport.
func WithTransport(t Transport) Option {
	return func(p *ConnectionPool) {
		p.newTransport = func() Transport { return t }
	}
}

// WithSleep replaces the backoff sleep between retries.
func WithSleep(sleep SleepFunc) Option {
	return func(p *ConnectionPool) {
		p.sleep = sleep
	}
}

// WithCollector attaches a telemetry collector.
func WithCollector(c *metrics.Collector) Option {
	return func(p *ConnectionPool) {
		p.collector = c
	}
}

// WithBreakerSettings configures the breakers the pool's registry creates.
func WithBreakerSettings(settings circuitbreaker.Settings) Option {
	return func(p *ConnectionPool) {
		p.breakerSettings = settings
	}
}

// ConnectionPool bounds concurrent outbound calls, applies per-endpoint
// circuit breaking, and executes calls with bounded exponential-backoff
// retries. Safe for concurrent use by many callers.
type ConnectionPool struct {
	config          Config
	logger          *slog.Logger
	collector       *metrics.Collector
	sleep           SleepFunc
	newTransport    func() Transport
	breakerSettings circuitbreaker.Settings
	registry        *circuitbreaker.Registry

	mutex     sync.Mutex
	transport Transport
	reserved  map[string]int
}

// New creates a pool. The transport itself is created lazily on first use.
func New(config Config, logger *slog.Logger, opts ...Option) *ConnectionPool {
	p := &ConnectionPool{
		config:       config.withDefaults(),
		logger:       logger,
		sleep:        defaultSleep,
		newTransport: NewHTTPTransport,
		reserved:     make(map[string]int),
	}

	for _, opt := range opts {
		opt(p)
	}

	settings := p.breakerSettings
	next := settings.OnStateChange
	settings.OnStateChange = func(endpoint string, from, to circuitbreaker.State) {
		p.logger.Warn("circuit state changed",
			slog.String("endpoint", endpoint),
			slog.String("from", from.String()),
			slog.String("to", to.String()))

		p.emit(metrics.Event{
			Type:      metrics.EventCircuitChanged,
			Timestamp: time.Now(),
			Endpoint:  endpoint,
			State:     to.String(),
		})

		if next != nil {
			next(endpoint, from, to)
		}
	}
	p.registry = circuitbreaker.NewRegistry(settings)

	return p
}

// Acquire performs a GET against endpoint under the pool's admission,
// bounded-retry, and release guarantees.
//
// Outcomes:
//   - status < 500: success, the breaker records a success
//   - status >= 500: *UpstreamError, never retried, no breaker record
//   - transport failure: retried with exponential backoff; on the final
//     attempt the breaker records a failure and *UnavailableError wraps
//     the cause
//   - breaker rejection: ErrCircuitOpen, no slot consumed
//   - pool bound reached: ErrPoolExhausted, rejected immediately, not queued
//   - caller cancellation: *UnavailableError wrapping ctx.Err(), no breaker
//     record
//
// The reserved slot is released exactly once on every path.
func (p *ConnectionPool) Acquire(ctx context.Context, endpoint string) (*Response, error) {
	transport := p.ensureTransport()

	breaker := p.registry.GetBreaker(endpoint)
	if !breaker.Allow() {
		p.emitFailure(endpoint, "circuit_open")
		return nil, ErrCircuitOpen
	}

	if !p.reserve(endpoint) {
		p.emitFailure(endpoint, "pool_exhausted")
		return nil, ErrPoolExhausted
	}
	defer p.release(endpoint)

	return p.attempt(ctx, transport, breaker, endpoint)
}

func (p *ConnectionPool) attempt(
	ctx context.Context,
	transport Transport,
	breaker *circuitbreaker.CircuitBreaker,
	endpoint string,
) (*Response, error) {
	var lastErr error

	for i := 0; i < p.config.RetryAttempts; i++ {
		if err := ctx.Err(); err != nil {
			p.emitFailure(endpoint, "cancelled")
			return nil, &UnavailableError{Endpoint: endpoint, Err: err}
		}

		start := time.Now()
		attemptCtx, cancel := context.WithTimeout(ctx, p.config.RequestTimeout)
		res, err := transport.Get(attemptCtx, endpoint)
		cancel()

		if err == nil {
			p.emit(metrics.Event{
				Type:       metrics.EventRequestCompleted,
				Timestamp:  time.Now(),
				Endpoint:   endpoint,
				Duration:   time.Since(start),
				StatusCode: res.StatusCode,
			})

			if res.StatusCode >= http.StatusInternalServerError {
				// Server errors surface verbatim. Reachability was fine,
				// so circuit health is untouched and there is no retry.
				p.emitFailure(endpoint, "upstream_error")
				return nil, &UpstreamError{StatusCode: res.StatusCode, Body: res.Body}
			}

			breaker.RecordSuccess()
			return res, nil
		}

		// A cancelled caller records no breaker outcome.
		if ctx.Err() != nil {
			p.emitFailure(endpoint, "cancelled")
			return nil, &UnavailableError{Endpoint: endpoint, Err: ctx.Err()}
		}

		lastErr = err
		p.logger.Warn("attempt failed",
			slog.String("endpoint", endpoint),
			slog.Int("attempt", i+1),
			slog.Int("max_attempts", p.config.RetryAttempts),
			slog.Any("err", err))

		if i == p.config.RetryAttempts-1 {
			break
		}

		if err := p.sleep(ctx, backoff(i)); err != nil {
			p.emitFailure(endpoint, "cancelled")
			return nil, &UnavailableError{Endpoint: endpoint, Err: err}
		}
	}

	breaker.RecordFailure()
	p.emitFailure(endpoint, "transport")
	return nil, &UnavailableError{Endpoint: endpoint, Err: lastErr}
}

// backoff returns the sleep after failed attempt i: 2^i seconds.
func backoff(i int) time.Duration {
	return time.Duration(1<<uint(i)) * time.Second
}

// reserve claims endpoint's slot. Concurrent calls to the same endpoint
// share one slot; the PoolSize bound applies to distinct endpoints in
// flight. Returns false when the bound is reached.
func (p *ConnectionPool) reserve(endpoint string) bool {
	p.mutex.Lock()

	if _, held := p.reserved[endpoint]; !held && len(p.reserved) >= p.config.PoolSize {
		p.mutex.Unlock()
		return false
	}

	p.reserved[endpoint]++
	count := len(p.reserved)
	p.mutex.Unlock()

	p.emit(metrics.Event{
		Type:      metrics.EventSlotReserved,
		Timestamp: time.Now(),
		Endpoint:  endpoint,
		Reserved:  count,
	})
	return true
}

// release gives back endpoint's slot. The slot frees only when the last
// in-flight call to that endpoint releases.
func (p *ConnectionPool) release(endpoint string) {
	p.mutex.Lock()

	if n := p.reserved[endpoint]; n <= 1 {
		delete(p.reserved, endpoint)
	} else {
		p.reserved[endpoint] = n - 1
	}
	count := len(p.reserved)
	p.mutex.Unlock()

	p.emit(metrics.Event{
		Type:      metrics.EventSlotReleased,
		Timestamp: time.Now(),
		Endpoint:  endpoint,
		Reserved:  count,
	})
}

// Reserved returns the number of reserved slots (distinct endpoints in
// flight).
func (p *ConnectionPool) Reserved() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.reserved)
}

// ensureTransport creates the transport on first use.
func (p *ConnectionPool) ensureTransport() Transport {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.transport == nil {
		p.transport = p.newTransport()
	}
	return p.transport
}

// Close releases the transport. A later Acquire re-creates it.
func (p *ConnectionPool) Close() {
	p.mutex.Lock()
	transport := p.transport
	p.transport = nil
	p.mutex.Unlock()

	if transport != nil {
		transport.Close()
	}
}

// Stats is a point-in-time view of the pool for the debug endpoint.
type Stats struct {
	ReservedSlots int               `json:"reserved_slots"`
	PoolSize      int               `json:"pool_size"`
	Circuits      map[string]string `json:"circuits"`
}

func (p *ConnectionPool) Stats() Stats {
	p.mutex.Lock()
	reserved := len(p.reserved)
	p.mutex.Unlock()

	circuits := make(map[string]string)
	for endpoint, state := range p.registry.Stats() {
		circuits[endpoint] = state.String()
	}

	return Stats{
		ReservedSlots: reserved,
		PoolSize:      p.config.PoolSize,
		Circuits:      circuits,
	}
}

func (p *ConnectionPool) emit(event metrics.Event) {
	if p.collector == nil {
		return
	}
	p.collector.Emit(event)
}

func (p *ConnectionPool) emitFailure(endpoint, kind string) {
	p.emit(metrics.Event{
		Type:      metrics.EventRequestFailed,
		Timestamp: time.Now(),
		Endpoint:  endpoint,
		Kind:      kind,
	})
}
