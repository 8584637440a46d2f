package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alexliesenfeld/health"

	"github.com/angeloszaimis/status-dashboard/internal/registry"
	"github.com/angeloszaimis/status-dashboard/internal/status"
)

const (
	DefaultTimeout    = 5 * time.Second
	DefaultHealthPath = "/health"

	maxDrainBytes = 64 << 10
)

var (
	ErrTransport = errors.New("transport failure")
	ErrProtocol  = errors.New("protocol failure")
)

// Prober performs one reachability check against one service.
type Prober interface {
	Probe(ctx context.Context, d registry.Descriptor) status.State
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, d registry.Descriptor) status.State

func (f ProberFunc) Probe(ctx context.Context, d registry.Descriptor) status.State {
	return f(ctx, d)
}

// HTTPProber checks GET <address><healthPath>. One health.Checker is kept per
// service so that transitions are tracked and logged per service.
type HTTPProber struct {
	client     *http.Client
	healthPath string
	timeout    time.Duration
	logger     *slog.Logger

	mutex    sync.RWMutex
	checkers map[string]health.Checker
}

// NewHTTPProber creates a prober whose requests are bounded by timeout.
// Zero values fall back to DefaultTimeout and DefaultHealthPath.
func NewHTTPProber(timeout time.Duration, healthPath string, logger *slog.Logger) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if healthPath == "" {
		healthPath = DefaultHealthPath
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &HTTPProber{
		client: &http.Client{
			Timeout: timeout,
		},
		healthPath: healthPath,
		timeout:    timeout,
		logger:     logger,
		checkers:   make(map[string]health.Checker),
	}
}

// Probe returns StateOnline when the health endpoint answers 2xx within the
// timeout, StateOffline otherwise.
func (p *HTTPProber) Probe(ctx context.Context, d registry.Descriptor) status.State {
	result := p.checkerFor(d).Check(ctx)
	if result.Status == health.StatusUp {
		return status.StateOnline
	}

	for _, detail := range result.Details {
		if detail.Error != nil {
			p.logger.Debug("Health probe failed",
				slog.String("service", d.ID),
				slog.String("error", detail.Error.Error()))
		}
	}

	return status.StateOffline
}

// Close stops every checker created by the prober.
func (p *HTTPProber) Close() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	for id, ck := range p.checkers {
		ck.Stop()
		delete(p.checkers, id)
	}
}

func (p *HTTPProber) checkerFor(d registry.Descriptor) health.Checker {
	p.mutex.RLock()
	ck, exists := p.checkers[d.ID]
	p.mutex.RUnlock()

	if exists {
		return ck
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	// Another goroutine may have created it in between.
	if ck, exists = p.checkers[d.ID]; exists {
		return ck
	}

	ck = p.newChecker(d)
	p.checkers[d.ID] = ck
	return ck
}

func (p *HTTPProber) newChecker(d registry.Descriptor) health.Checker {
	target := d.Resolve(p.healthPath)

	return health.NewChecker(
		health.WithDisabledAutostart(),
		health.WithDisabledCache(),
		health.WithCheck(health.Check{
			Name:    d.ID,
			Timeout: p.timeout,
			Check:   p.request(target),
		}),
		health.WithStatusListener(func(_ context.Context, state health.CheckerState) {
			switch state.Status {
			case health.StatusUp:
				p.logger.Info("Service is up",
					slog.String("service", d.ID),
					slog.String("url", target))
			case health.StatusDown:
				p.logger.Warn("Service is down",
					slog.String("service", d.ID),
					slog.String("url", target))
			}
		}),
	)
}

func (p *HTTPProber) request(target string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return fmt.Errorf("%w: build request: %v", ErrTransport, err)
		}

		res, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}
		defer res.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxDrainBytes))

		if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
			return fmt.Errorf("%w: unexpected status %d", ErrProtocol, res.StatusCode)
		}

		return nil
	}
}
