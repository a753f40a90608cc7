package circuitbreaker

import (
	"sync"
	"time"
)

// State is the persisted circuit state. There is no stored half-open state:
// the probe window is computed from the last failure time at admission.
type State int

const (
	StateClosed State = iota // Admitting traffic
	StateOpen                // Tripped, rejecting traffic
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// Clock supplies the current time. Tests substitute a manual clock to drive
// the timeout windows without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// OnStateChangeFunc is invoked on every state transition. It runs with the
// breaker's lock held, so it must not call back into the breaker.
type OnStateChangeFunc func(endpoint string, from, to State)

const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 60 * time.Second
	DefaultHalfOpenTimeout  = 30 * time.Second
)

// Settings configures a breaker. Zero fields fall back to the defaults.
// HalfOpenTimeout is expected to be shorter than ResetTimeout; the breaker
// does not enforce that.
type Settings struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	HalfOpenTimeout  time.Duration
	Clock            Clock
	OnStateChange    OnStateChangeFunc
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = DefaultFailureThreshold
	}
	if s.ResetTimeout <= 0 {
		s.ResetTimeout = DefaultResetTimeout
	}
	if s.HalfOpenTimeout <= 0 {
		s.HalfOpenTimeout = DefaultHalfOpenTimeout
	}
	if s.Clock == nil {
		s.Clock = systemClock{}
	}
	return s
}

// CircuitBreaker tracks the health of a single endpoint. Safe for
// concurrent use; breakers for different endpoints never share a lock.
type CircuitBreaker struct {
	endpoint string
	settings Settings

	mutex       sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	lastSuccess time.Time
}

func NewCircuitBreaker(endpoint string, settings Settings) *CircuitBreaker {
	return &CircuitBreaker{
		endpoint: endpoint,
		settings: settings.withDefaults(),
		state:    StateClosed,
	}
}

// Allow reports whether a call to the endpoint may proceed right now.
//
// A tripped breaker fully resets once ResetTimeout has elapsed since the
// last failure. Inside [HalfOpenTimeout, ResetTimeout) callers are admitted
// as probes without any stored state change; every caller in that window is
// admitted, not just one.
func (cb *CircuitBreaker) Allow() bool {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if cb.state == StateClosed {
		return true
	}

	since := cb.settings.Clock.Now().Sub(cb.lastFailure)

	if since >= cb.settings.ResetTimeout {
		cb.failures = 0
		cb.setState(StateClosed)
		return true
	}

	if since >= cb.settings.HalfOpenTimeout {
		return true
	}

	return false
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures = 0
	cb.lastSuccess = cb.settings.Clock.Now()
	cb.setState(StateClosed)
}

// RecordFailure increments the consecutive failure count and trips the
// circuit once FailureThreshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	cb.failures++
	cb.lastFailure = cb.settings.Clock.Now()

	if cb.failures >= cb.settings.FailureThreshold {
		cb.setState(StateOpen)
	}
}

// State returns the persisted circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Failures returns the consecutive transport failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.failures
}

// setState transitions to next and fires the hook. Caller must hold mutex.
func (cb *CircuitBreaker) setState(next State) {
	if cb.state == next {
		return
	}

	prev := cb.state
	cb.state = next

	if cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.endpoint, prev, next)
	}
}
