package metrics

import (
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the thread-safe store behind the collector. It keeps an
// in-memory snapshot per endpoint and mirrors the interesting facts into
// Prometheus instruments.
type Metrics struct {
	mutex         sync.RWMutex
	requests      map[string]int64
	failures      map[string]map[string]int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	circuitStates map[string]string
	startTime     time.Time

	reservedSlots   prometheus.Gauge
	circuitState    *prometheus.GaugeVec
	failuresTotal   *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

type Snapshot struct {
	TotalRequests int64                      `json:"total_requests"`
	Uptime        time.Duration              `json:"uptime"`
	Endpoints     map[string]EndpointMetrics `json:"endpoints"`
}

type EndpointMetrics struct {
	Requests     int64            `json:"requests"`
	Failures     map[string]int64 `json:"failures"`
	CircuitState string           `json:"circuit_state"`
	AvgResponse  time.Duration    `json:"avg_response"`
	P50Response  time.Duration    `json:"p50_response"`
	P95Response  time.Duration    `json:"p95_response"`
	P99Response  time.Duration    `json:"p99_response"`
	StatusCodes  map[int]int64    `json:"status_codes"`
}

// NewMetrics creates the store and registers its Prometheus instruments.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests:      make(map[string]int64),
		failures:      make(map[string]map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		circuitStates: make(map[string]string),
		startTime:     time.Now(),

		reservedSlots: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "upstream_reserved_slots",
			Help: "Number of currently reserved pool slots.",
		}),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "upstream_circuit_state",
				Help: "Circuit breaker state: 0=closed, 1=open.",
			},
			[]string{"endpoint"},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_failures_total",
				Help: "Total failed acquisitions by failure kind.",
			},
			[]string{"endpoint", "kind"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_requests_total",
				Help: "Total completed upstream requests by status code.",
			},
			[]string{"endpoint", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "upstream_request_duration_seconds",
				Help: "Upstream request duration in seconds.",
				// Buckets: 5ms, 25ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s, 10s, 30s
				Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"endpoint"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.reservedSlots,
			m.circuitState,
			m.failuresTotal,
			m.requestsTotal,
			m.requestDuration,
		)
	}

	return m
}

func (m *Metrics) SetReservedSlots(n int) {
	m.reservedSlots.Set(float64(n))
}

func (m *Metrics) UpdateCircuitState(endpoint, state string) {
	m.mutex.Lock()
	m.circuitStates[endpoint] = state
	m.mutex.Unlock()

	value := 0.0
	if state == "OPEN" {
		value = 1.0
	}
	m.circuitState.WithLabelValues(endpoint).Set(value)
}

func (m *Metrics) RecordFailure(endpoint, kind string) {
	m.mutex.Lock()
	if m.failures[endpoint] == nil {
		m.failures[endpoint] = make(map[string]int64)
	}
	m.failures[endpoint][kind]++
	m.mutex.Unlock()

	m.failuresTotal.WithLabelValues(endpoint, kind).Inc()
}

func (m *Metrics) RecordResponse(endpoint string, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	m.requests[endpoint]++
	m.responseTimes[endpoint] = append(m.responseTimes[endpoint], duration)

	if len(m.responseTimes[endpoint]) > 1000 {
		m.responseTimes[endpoint] = m.responseTimes[endpoint][1:]
	}

	if m.statusCodes[endpoint] == nil {
		m.statusCodes[endpoint] = make(map[int]int64)
	}
	m.statusCodes[endpoint][statusCode]++
	m.mutex.Unlock()

	m.requestsTotal.WithLabelValues(endpoint, statusClass(statusCode)).Inc()
	m.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:    time.Since(m.startTime),
		Endpoints: make(map[string]EndpointMetrics),
	}

	// Collect all endpoints seen by any series
	endpoints := make(map[string]bool)
	for endpoint := range m.requests {
		endpoints[endpoint] = true
	}
	for endpoint := range m.failures {
		endpoints[endpoint] = true
	}
	for endpoint := range m.circuitStates {
		endpoints[endpoint] = true
	}

	for endpoint := range endpoints {
		snap.TotalRequests += m.requests[endpoint]

		// Copy the maps: the snapshot outlives the lock, and the
		// collector goroutine keeps writing to the originals.
		em := EndpointMetrics{
			Requests:     m.requests[endpoint],
			Failures:     maps.Clone(m.failures[endpoint]),
			CircuitState: m.circuitStates[endpoint],
			StatusCodes:  maps.Clone(m.statusCodes[endpoint]),
		}
		if em.CircuitState == "" {
			em.CircuitState = "CLOSED"
		}

		durations := m.responseTimes[endpoint]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			em.AvgResponse = average(sorted)
			em.P50Response = percentile(sorted, 0.50)
			em.P95Response = percentile(sorted, 0.95)
			em.P99Response = percentile(sorted, 0.99)
		}

		snap.Endpoints[endpoint] = em
	}

	return snap
}

func statusClass(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
