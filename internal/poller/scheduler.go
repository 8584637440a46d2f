package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alitto/pond/v2"

	"github.com/angeloszaimis/status-dashboard/internal/healthcheck"
	"github.com/angeloszaimis/status-dashboard/internal/metrics"
	"github.com/angeloszaimis/status-dashboard/internal/registry"
	"github.com/angeloszaimis/status-dashboard/internal/status"
)

const DefaultInterval = 30 * time.Second

var (
	ErrAlreadyRunning  = errors.New("poller: already running")
	ErrClosed          = errors.New("poller: closed")
	ErrInvalidInterval = errors.New("poller: interval must be positive")
)

type Option func(*Scheduler)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithProbeTimeout bounds every probe. Defaults to healthcheck.DefaultTimeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.probeTimeout = d
		}
	}
}

func WithCollector(c *metrics.Collector) Option {
	return func(s *Scheduler) {
		s.collector = c
	}
}

// Scheduler runs poll cycles over every registered service.
type Scheduler struct {
	registry     *registry.Registry
	prober       healthcheck.Prober
	store        *status.Store
	clock        Clock
	logger       *slog.Logger
	collector    *metrics.Collector
	probeTimeout time.Duration
	pool         pond.Pool

	mutex    sync.Mutex
	running  bool
	closed   bool
	stopCh   chan struct{}
	loopDone chan struct{}
	inFlight map[string]struct{}

	cycles  sync.WaitGroup
	probers sync.WaitGroup
}

func New(reg *registry.Registry, prober healthcheck.Prober, store *status.Store, logger *slog.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Scheduler{
		registry:     reg,
		prober:       prober,
		store:        store,
		clock:        realClock{},
		logger:       logger,
		probeTimeout: healthcheck.DefaultTimeout,
		pool:         pond.NewPool(reg.Len()),
		inFlight:     make(map[string]struct{}, reg.Len()),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start runs one poll cycle immediately and then one per interval until Stop.
func (s *Scheduler) Start(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return ErrClosed
	}
	if s.running {
		s.mutex.Unlock()
		return ErrAlreadyRunning
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.loopDone = make(chan struct{})
	ticker := s.clock.Ticker(interval)
	go s.run(ticker, s.stopCh, s.loopDone)
	s.mutex.Unlock()

	s.logger.Info("Poller started",
		slog.Duration("interval", interval),
		slog.Int("services", s.registry.Len()))

	s.dispatch("start", true)
	return nil
}

// Stop halts future ticks. Probes already in flight run to completion and
// still update the store. Stop is safe to call at any time.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	if !s.running {
		s.mutex.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.loopDone
	s.mutex.Unlock()

	<-done
	s.logger.Info("Poller stopped")
}

// RefreshNow starts a poll cycle immediately, independent of the ticker.
// Services whose previous probe is still pending are skipped. The returned
// channel is closed once the probes dispatched by this call have resolved.
func (s *Scheduler) RefreshNow() <-chan struct{} {
	return s.dispatch("refresh", false)
}

// Running reports whether the ticker loop is active.
func (s *Scheduler) Running() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.running
}

// Pending returns the number of probes currently in flight.
func (s *Scheduler) Pending() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.inFlight)
}

// Close stops the ticker, rejects further cycles and waits for in-flight
// probes to finish or ctx to expire.
func (s *Scheduler) Close(ctx context.Context) error {
	s.Stop()

	s.mutex.Lock()
	if s.closed {
		s.mutex.Unlock()
		return nil
	}
	s.closed = true
	s.mutex.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.pool.StopAndWait()
		s.cycles.Wait()
		s.probers.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("poller: waiting for in-flight probes: %w", ctx.Err())
	}
}

func (s *Scheduler) run(ticker Ticker, stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.Chan():
			s.dispatch("tick", true)
		}
	}
}

// dispatch submits one probe per idle service. When tickerOnly is set the
// cycle is dropped unless the ticker loop is still running.
func (s *Scheduler) dispatch(trigger string, tickerOnly bool) <-chan struct{} {
	done := make(chan struct{})

	s.mutex.Lock()
	if s.closed || (tickerOnly && !s.running) {
		s.mutex.Unlock()
		close(done)
		return done
	}

	started := s.clock.Now()
	var wg sync.WaitGroup
	skipped := 0

	for _, d := range s.registry.All() {
		if _, pending := s.inFlight[d.ID]; pending {
			skipped++
			continue
		}
		s.inFlight[d.ID] = struct{}{}

		wg.Add(1)
		s.pool.Submit(func() {
			defer wg.Done()
			s.probe(d)
		})
	}

	dispatched := s.registry.Len() - skipped
	if dispatched == 0 {
		s.mutex.Unlock()
		s.logger.Debug("Poll cycle skipped, every probe still pending",
			slog.String("trigger", trigger))
		close(done)
		return done
	}

	s.cycles.Add(1)
	s.mutex.Unlock()

	go func() {
		defer s.cycles.Done()
		defer close(done)

		wg.Wait()

		completed := s.clock.Now()
		s.store.MarkCycleCompleted(completed)

		s.collector.Emit(metrics.Event{
			Type:      metrics.EventCycleCompleted,
			Timestamp: completed,
			Duration:  completed.Sub(started),
			Skipped:   skipped,
		})

		s.logger.Debug("Poll cycle completed",
			slog.String("trigger", trigger),
			slog.Int("dispatched", dispatched),
			slog.Int("skipped", skipped),
			slog.Duration("duration", completed.Sub(started)))
	}()

	return done
}

func (s *Scheduler) probe(d registry.Descriptor) {
	ctx, cancel := context.WithTimeout(context.Background(), s.probeTimeout)
	defer cancel()

	started := s.clock.Now()
	result := make(chan status.State, 1)
	s.probers.Add(1)
	go func() {
		defer s.probers.Done()
		result <- s.prober.Probe(ctx, d)
	}()

	var state status.State
	select {
	case state = <-result:
		defer s.release(d.ID)
		if ctx.Err() != nil {
			// A result produced after the bound counts as a timeout.
			state = status.StateOffline
		}
	case <-ctx.Done():
		// The slot stays taken until a prober that ignores ctx returns.
		go func() {
			<-result
			s.release(d.ID)
		}()
		s.logger.Warn("Health probe exceeded timeout",
			slog.String("service", d.ID),
			slog.Duration("timeout", s.probeTimeout))
	}
	if state != status.StateOnline {
		state = status.StateOffline
	}
	completed := s.clock.Now()

	if _, err := s.store.Update(d.ID, state, completed); err != nil {
		s.logger.Error("Failed to record probe result",
			slog.String("service", d.ID),
			slog.Any("err", err))
	}

	s.collector.Emit(metrics.Event{
		Type:      metrics.EventProbeCompleted,
		Timestamp: completed,
		Service:   d.ID,
		Duration:  completed.Sub(started),
		Online:    state == status.StateOnline,
	})
}

func (s *Scheduler) release(serviceID string) {
	s.mutex.Lock()
	delete(s.inFlight, serviceID)
	s.mutex.Unlock()
}
