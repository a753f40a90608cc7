// Package metrics is the telemetry sink for the outbound client.
//
// It uses a channel-based event pipeline to asynchronously collect the
// facts the connection pool emits:
//   - reserved-slot count (gauge)
//   - circuit breaker transitions, as they occur
//   - completed requests with duration and status code
//   - failed acquisitions with endpoint and failure kind
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the request path. Events are sent via a buffered channel with
// non-blocking semantics; when the buffer is full events are dropped rather
// than slowing a caller down. On shutdown the channel is drained.
//
// Facts are kept twice: in-memory maps served as a JSON snapshot (with
// P50/P95/P99 latency percentiles), and Prometheus instruments registered
// against the registry handed to NewMetrics.
//
// Example usage:
//
//	m := metrics.NewMetrics(prometheus.NewRegistry())
//	collector := metrics.NewCollector(1000, m, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.Event{
//		Type:       metrics.EventRequestCompleted,
//		Endpoint:   "https://gateway.example.com/claims",
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	snapshot := collector.Snapshot()
package metrics
