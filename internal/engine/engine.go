package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/angeloszaimis/status-dashboard/internal/healthcheck"
	"github.com/angeloszaimis/status-dashboard/internal/metrics"
	"github.com/angeloszaimis/status-dashboard/internal/poller"
	"github.com/angeloszaimis/status-dashboard/internal/registry"
	"github.com/angeloszaimis/status-dashboard/internal/sections"
	"github.com/angeloszaimis/status-dashboard/internal/status"
	"github.com/angeloszaimis/status-dashboard/pkg/logger"
)

const DefaultMetricsBuffer = 1024

var ErrUnknownService = errors.New("engine: unknown service")

// Options tunes the engine. Zero values fall back to package defaults.
type Options struct {
	Interval       time.Duration
	ProbeTimeout   time.Duration
	HealthPath     string
	SectionTimeout time.Duration
	MaxBodyBytes   int64
	MetricsBuffer  int

	// Prober replaces the HTTP prober. Clock replaces the wall clock.
	Prober healthcheck.Prober
	Clock  poller.Clock
}

// Engine owns every moving part of the dashboard backend.
type Engine struct {
	registry  *registry.Registry
	store     *status.Store
	scheduler *poller.Scheduler
	loader    *sections.Loader
	collector *metrics.Collector
	prober    healthcheck.Prober
	interval  time.Duration
	logger    *slog.Logger

	ownedProber *healthcheck.HTTPProber
	cancel      context.CancelFunc
	closeOnce   sync.Once
	closeErr    error
}

func New(reg *registry.Registry, opts Options, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if opts.Interval <= 0 {
		opts.Interval = poller.DefaultInterval
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = healthcheck.DefaultTimeout
	}
	if opts.MetricsBuffer <= 0 {
		opts.MetricsBuffer = DefaultMetricsBuffer
	}

	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		registry: reg,
		interval: opts.Interval,
		logger:   log,
		cancel:   cancel,
	}

	e.collector = metrics.NewCollector(opts.MetricsBuffer, logger.Component(log, "metrics"))
	e.collector.Start(ctx)

	e.prober = opts.Prober
	if e.prober == nil {
		e.ownedProber = healthcheck.NewHTTPProber(opts.ProbeTimeout, opts.HealthPath, logger.Component(log, "healthcheck"))
		e.prober = e.ownedProber
	}

	e.store = status.NewStore(reg, logger.Component(log, "status"))

	e.scheduler = poller.New(reg, e.prober, e.store, logger.Component(log, "poller"),
		poller.WithClock(opts.Clock),
		poller.WithProbeTimeout(opts.ProbeTimeout),
		poller.WithCollector(e.collector))

	e.loader = sections.NewLoader(reg, logger.Component(log, "sections"),
		sections.WithTimeout(opts.SectionTimeout),
		sections.WithMaxBodyBytes(opts.MaxBodyBytes),
		sections.WithCollector(e.collector))

	return e
}

// Start begins periodic polling. The first cycle runs immediately.
func (e *Engine) Start() error {
	return e.scheduler.Start(e.interval)
}

// Stop halts periodic polling. In-flight probes still land.
func (e *Engine) Stop() {
	e.scheduler.Stop()
}

// RefreshNow runs an immediate poll cycle. The channel closes when it resolves.
func (e *Engine) RefreshNow() <-chan struct{} {
	return e.scheduler.RefreshNow()
}

func (e *Engine) Running() bool {
	return e.scheduler.Running()
}

func (e *Engine) Services() []registry.Descriptor {
	return e.registry.All()
}

func (e *Engine) Service(id string) (registry.Descriptor, error) {
	d, ok := e.registry.Lookup(id)
	if !ok {
		return registry.Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownService, id)
	}
	return d, nil
}

func (e *Engine) Status(id string) (status.ServiceStatus, error) {
	st, ok := e.store.Get(id)
	if !ok {
		return status.ServiceStatus{}, fmt.Errorf("%w: %q", ErrUnknownService, id)
	}
	return st, nil
}

func (e *Engine) Statuses() []status.ServiceStatus {
	return e.store.All()
}

func (e *Engine) Summary() status.Summary {
	return e.store.Summary()
}

func (e *Engine) LastCycle() time.Time {
	return e.store.LastCycle()
}

// Subscribe returns a channel of status and cycle events. Call cancel to
// release it; a slow reader loses events rather than blocking the poller.
func (e *Engine) Subscribe(buffer int) (<-chan status.Event, func()) {
	return e.store.Subscribe(buffer)
}

func (e *Engine) Load(ctx context.Context, id string, kind sections.Kind) (sections.Dataset, error) {
	return e.loader.Load(ctx, id, kind)
}

func (e *Engine) LoadAll(ctx context.Context, id string) ([]sections.Dataset, error) {
	return e.loader.LoadAll(ctx, id)
}

// Dataset returns the last known marker for a section without fetching.
func (e *Engine) Dataset(id string, kind sections.Kind) (sections.Dataset, error) {
	return e.loader.Current(id, kind)
}

func (e *Engine) Metrics() metrics.Snapshot {
	return e.collector.Snapshot()
}

// MetricsHandler serves the metrics snapshot as JSON.
func (e *Engine) MetricsHandler() http.HandlerFunc {
	return e.collector.Handler()
}

// PrometheusHandler serves the same measurements in the Prometheus text format.
func (e *Engine) PrometheusHandler() http.Handler {
	return e.collector.PrometheusHandler()
}

// Close stops polling, waits for in-flight probes and releases subscribers.
// It is safe to call more than once.
func (e *Engine) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		e.closeErr = e.scheduler.Close(ctx)

		if e.ownedProber != nil {
			e.ownedProber.Close()
		}
		e.store.Close()

		e.cancel()
		select {
		case <-e.collector.Done():
		case <-ctx.Done():
			if e.closeErr == nil {
				e.closeErr = fmt.Errorf("engine: waiting for metrics: %w", ctx.Err())
			}
		}

		e.logger.Info("Engine closed")
	})
	return e.closeErr
}
