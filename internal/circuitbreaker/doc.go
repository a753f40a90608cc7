// Package circuitbreaker tracks per-endpoint health for outbound calls.
//
// A circuit breaker stops sending calls to a failing endpoint for a
// cool-down period so the platform does not amplify load on a struggling
// downstream system. The persisted state is two-valued:
//
//   - CLOSED: normal operation, calls admitted
//   - OPEN: endpoint failing, calls rejected
//
// There is no stored half-open state. After HalfOpenTimeout has elapsed
// since the last failure, Allow admits callers as probes without changing
// stored state; after ResetTimeout it fully resets the breaker. Every
// caller inside the probe window is admitted, not just one.
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(circuitbreaker.Settings{})
//	cb := registry.GetBreaker("https://gateway.example.com/claims")
//	if cb.Allow() {
//	    // Make request...
//	    if err != nil {
//	        cb.RecordFailure()
//	    } else {
//	        cb.RecordSuccess()
//	    }
//	}
package circuitbreaker
