package circuitbreaker

import (
	"sync"
)

// Registry maps endpoint URLs to their circuit breakers, creating them
// lazily on first use. Breakers are never evicted: a process that talks to
// an unbounded set of endpoints grows the registry without bound.
type Registry struct {
	mutex    sync.RWMutex
	breakers map[string]*CircuitBreaker
	settings Settings
}

func NewRegistry(settings Settings) *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		settings: settings,
	}
}

// GetBreaker returns the breaker for endpoint, creating it on first use.
// Identity is the exact URL string.
func (r *Registry) GetBreaker(endpoint string) *CircuitBreaker {
	r.mutex.RLock()
	cb, exists := r.breakers[endpoint]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[endpoint]; exists {
		return cb
	}

	cb = NewCircuitBreaker(endpoint, r.settings)
	r.breakers[endpoint] = cb
	return cb
}

// Reset discards all breakers.
func (r *Registry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.breakers = make(map[string]*CircuitBreaker)
}

// Stats returns the persisted state of every known breaker.
func (r *Registry) Stats() map[string]State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]State, len(r.breakers))
	for endpoint, cb := range r.breakers {
		stats[endpoint] = cb.State()
	}
	return stats
}
