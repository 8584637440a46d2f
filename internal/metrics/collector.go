package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type EventType string

const (
	EventProbeCompleted EventType = "probe_completed"
	EventCycleCompleted EventType = "cycle_completed"
	EventSectionLoaded  EventType = "section_loaded"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Service   string
	Section   string
	Duration  time.Duration
	Online    bool
	Failed    bool
	Rows      int
	Skipped   int
}

type Collector struct {
	eventCh  chan Event
	metrics  *Metrics
	exporter *exporter
	logger   *slog.Logger
	done     chan struct{}
	once     sync.Once
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Collector{
		eventCh:  make(chan Event, bufferSize),
		metrics:  NewMetrics(),
		exporter: newExporter(),
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Emit queues an event without blocking. Events are dropped when the buffer
// is full. A nil collector ignores events.
func (c *Collector) Emit(event Event) {
	if c == nil {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
	}
}

// Start runs the collector until ctx is cancelled. Calling it more than once
// has no effect.
func (c *Collector) Start(ctx context.Context) {
	c.once.Do(func() {
		go c.run(ctx)
	})
}

// Done is closed once the collector has drained and stopped.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")
	defer close(c.done)

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event Event) {
	c.exporter.observe(event)

	switch event.Type {
	case EventProbeCompleted:
		c.metrics.RecordProbe(event.Service, event.Duration, event.Online)

	case EventCycleCompleted:
		c.metrics.RecordCycle(event.Duration, event.Skipped, event.Timestamp)

	case EventSectionLoaded:
		c.metrics.RecordSection(event.Service+"/"+event.Section, event.Duration, event.Rows, event.Failed)

	default:
		c.logger.Debug("Ignoring unknown metric event", slog.String("type", string(event.Type)))
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
