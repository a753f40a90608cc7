package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventSlotReserved     EventType = "slot_reserved"
	EventSlotReleased     EventType = "slot_released"
	EventCircuitChanged   EventType = "circuit_changed"
	EventRequestCompleted EventType = "request_completed"
	EventRequestFailed    EventType = "request_failed"
)

// Event is one observable fact emitted by the connection pool. Only the
// fields relevant to the event type are set.
type Event struct {
	Type       EventType
	Timestamp  time.Time
	Endpoint   string
	Duration   time.Duration
	StatusCode int
	Reserved   int    // reserved-slot count after a reserve/release
	State      string // circuit state after a transition
	Kind       string // failure kind for EventRequestFailed
}

// Collector consumes pool events off a buffered channel and applies them to
// the metrics store without blocking the request path.
type Collector struct {
	eventCh chan Event
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, metrics *Metrics, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan Event, bufferSize),
		metrics: metrics,
		logger:  logger,
	}
}

// Emit queues an event without blocking. Events are dropped when the buffer
// is full.
func (c *Collector) Emit(event Event) {
	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("telemetry collector started")
	defer c.logger.Info("telemetry collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event Event) {
	switch event.Type {
	case EventSlotReserved, EventSlotReleased:
		c.metrics.SetReservedSlots(event.Reserved)

	case EventCircuitChanged:
		c.metrics.UpdateCircuitState(event.Endpoint, event.State)

	case EventRequestCompleted:
		c.metrics.RecordResponse(event.Endpoint, event.Duration, event.StatusCode)

	case EventRequestFailed:
		c.metrics.RecordFailure(event.Endpoint, event.Kind)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
