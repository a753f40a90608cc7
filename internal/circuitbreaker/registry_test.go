package circuitbreaker_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/carelink/upstream/internal/circuitbreaker"
)

var _ = Describe("Registry", func() {
	var registry *circuitbreaker.Registry

	BeforeEach(func() {
		registry = circuitbreaker.NewRegistry(circuitbreaker.Settings{})
	})

	Describe("GetBreaker", func() {
		It("should create a new breaker for an unknown endpoint", func() {
			cb := registry.GetBreaker("https://gateway.example.com/claims")
			Expect(cb).NotTo(BeNil())
			Expect(cb.State()).To(Equal(circuitbreaker.StateClosed))
		})

		It("should return the same breaker for the same endpoint", func() {
			cb1 := registry.GetBreaker("https://gateway.example.com/claims")
			cb2 := registry.GetBreaker("https://gateway.example.com/claims")
			Expect(cb1).To(BeIdenticalTo(cb2))
		})

		It("should return different breakers for different endpoints", func() {
			cb1 := registry.GetBreaker("https://gateway.example.com/claims")
			cb2 := registry.GetBreaker("https://imaging.example.com/studies")
			Expect(cb1).NotTo(BeIdenticalTo(cb2))
		})

		It("should treat endpoint identity as the exact URL string", func() {
			cb1 := registry.GetBreaker("https://gateway.example.com/claims")
			cb2 := registry.GetBreaker("https://gateway.example.com/claims/")
			Expect(cb1).NotTo(BeIdenticalTo(cb2))
		})

		It("should apply registry settings to new breakers", func() {
			registry = circuitbreaker.NewRegistry(circuitbreaker.Settings{FailureThreshold: 2})
			cb := registry.GetBreaker("https://gateway.example.com/claims")

			cb.RecordFailure()
			cb.RecordFailure()
			Expect(cb.State()).To(Equal(circuitbreaker.StateOpen))
		})
	})

	Describe("Endpoint isolation", func() {
		It("should never let one endpoint's failures affect another", func() {
			registry = circuitbreaker.NewRegistry(circuitbreaker.Settings{FailureThreshold: 2})

			failing := registry.GetBreaker("https://gateway.example.com/claims")
			healthy := registry.GetBreaker("https://imaging.example.com/studies")

			failing.RecordFailure()
			failing.RecordFailure()

			Expect(failing.Allow()).To(BeFalse())
			Expect(healthy.Allow()).To(BeTrue())
			Expect(healthy.Failures()).To(BeZero())
		})
	})

	Describe("Concurrent access", func() {
		It("should handle concurrent first-use of the same endpoint", func() {
			const goroutines = 100

			var wg sync.WaitGroup
			wg.Add(goroutines)

			found := make([]*circuitbreaker.CircuitBreaker, goroutines)
			for i := 0; i < goroutines; i++ {
				go func(id int) {
					defer wg.Done()
					found[id] = registry.GetBreaker("https://gateway.example.com/claims")
				}(i)
			}

			wg.Wait()

			for _, cb := range found {
				Expect(cb).To(BeIdenticalTo(found[0]))
			}
			Expect(registry.Stats()).To(HaveLen(1))
		})

		It("should handle concurrent operations on the same breaker", func() {
			const goroutines = 50

			var wg sync.WaitGroup
			wg.Add(goroutines * 2)

			cb := registry.GetBreaker("https://gateway.example.com/claims")

			for i := 0; i < goroutines; i++ {
				go func() {
					defer wg.Done()
					cb.RecordFailure()
				}()
			}
			for i := 0; i < goroutines; i++ {
				go func() {
					defer wg.Done()
					cb.RecordSuccess()
				}()
			}

			wg.Wait()

			Expect(cb.State()).To(BeElementOf(
				circuitbreaker.StateClosed,
				circuitbreaker.StateOpen,
			))
		})
	})

	Describe("Reset", func() {
		It("should discard all breakers", func() {
			registry.GetBreaker("https://gateway.example.com/claims")
			registry.GetBreaker("https://imaging.example.com/studies")

			Expect(registry.Stats()).To(HaveLen(2))

			registry.Reset()

			Expect(registry.Stats()).To(HaveLen(0))
		})
	})

	Describe("Stats", func() {
		It("should report the state of every breaker", func() {
			registry = circuitbreaker.NewRegistry(circuitbreaker.Settings{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
			})

			registry.GetBreaker("https://gateway.example.com/claims")
			tripped := registry.GetBreaker("https://imaging.example.com/studies")

			for i := 0; i < 5; i++ {
				tripped.RecordFailure()
			}

			stats := registry.Stats()
			Expect(stats).To(HaveLen(2))
			Expect(stats["https://gateway.example.com/claims"]).To(Equal(circuitbreaker.StateClosed))
			Expect(stats["https://imaging.example.com/studies"]).To(Equal(circuitbreaker.StateOpen))
		})
	})
})
