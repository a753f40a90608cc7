package metrics_test

import (
	"encoding/json"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/carelink/upstream/internal/metrics"
)

var _ = Describe("Metrics", func() {
	const endpoint = "https://gateway.example.com/claims"

	var store *metrics.Metrics

	BeforeEach(func() {
		store = metrics.NewMetrics(prometheus.NewRegistry())
	})

	Describe("Snapshot", func() {
		It("should not alias the live failure and status maps", func() {
			store.RecordFailure(endpoint, "transport")
			store.RecordResponse(endpoint, 10*time.Millisecond, 200)

			snap := store.Snapshot()

			store.RecordFailure(endpoint, "transport")
			store.RecordResponse(endpoint, 10*time.Millisecond, 200)

			Expect(snap.Endpoints[endpoint].Failures["transport"]).To(Equal(int64(1)))
			Expect(snap.Endpoints[endpoint].StatusCodes[200]).To(Equal(int64(1)))
		})

		It("should be safe to encode while recording continues", func() {
			done := make(chan struct{})
			var wg sync.WaitGroup

			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					select {
					case <-done:
						return
					default:
						store.RecordFailure(endpoint, "transport")
						store.RecordResponse(endpoint, time.Millisecond, 503)
					}
				}
			}()

			for i := 0; i < 100; i++ {
				_, err := json.Marshal(store.Snapshot())
				Expect(err).NotTo(HaveOccurred())
			}

			close(done)
			wg.Wait()
		})
	})
})
