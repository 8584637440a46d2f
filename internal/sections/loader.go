package sections

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/status-dashboard/internal/metrics"
	"github.com/angeloszaimis/status-dashboard/internal/registry"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxBodyBytes = 1 << 20
)

var (
	ErrUnknownService = errors.New("sections: unknown service")
	ErrUnknownKind    = errors.New("sections: unknown section kind")
	ErrKindNotOffered = errors.New("sections: kind not offered by service")
)

type Option func(*Loader)

func WithTimeout(d time.Duration) Option {
	return func(l *Loader) {
		if d > 0 {
			l.client.Timeout = d
		}
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(l *Loader) {
		if n > 0 {
			l.maxBodyBytes = n
		}
	}
}

func WithCollector(c *metrics.Collector) Option {
	return func(l *Loader) {
		l.collector = c
	}
}

type key struct {
	service string
	kind    Kind
}

type entry struct {
	seq     uint64
	dataset Dataset
}

// Loader fetches section data on demand and remembers the latest result per
// (service, kind).
type Loader struct {
	registry     *registry.Registry
	client       *http.Client
	maxBodyBytes int64
	logger       *slog.Logger
	collector    *metrics.Collector

	mutex   sync.Mutex
	entries map[key]*entry
}

func NewLoader(reg *registry.Registry, logger *slog.Logger, opts ...Option) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	l := &Loader{
		registry:     reg,
		client:       &http.Client{Timeout: DefaultTimeout},
		maxBodyBytes: DefaultMaxBodyBytes,
		logger:       logger,
		entries:      make(map[key]*entry),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Load fetches kind from the service and returns the normalised dataset.
// Transport and protocol failures are reported as a Failed dataset; the error
// is reserved for requests that name an unknown service or kind.
func (l *Loader) Load(ctx context.Context, serviceID string, kind Kind) (Dataset, error) {
	d, def, err := l.resolve(serviceID, kind)
	if err != nil {
		return Dataset{}, err
	}

	k := key{service: serviceID, kind: kind}
	seq := l.begin(k, def)

	started := time.Now()
	result := l.fetch(ctx, d, def)
	l.finish(k, seq, result)

	l.collector.Emit(metrics.Event{
		Type:      metrics.EventSectionLoaded,
		Timestamp: result.FetchedAt,
		Service:   serviceID,
		Section:   string(kind),
		Duration:  time.Since(started),
		Failed:    result.State == StateFailed,
		Rows:      len(result.Rows),
	})

	return result, nil
}

// LoadAll loads every kind the service offers concurrently and returns the
// datasets in catalog order.
func (l *Loader) LoadAll(ctx context.Context, serviceID string) ([]Dataset, error) {
	d, ok := l.registry.Lookup(serviceID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, serviceID)
	}

	defs := lo.Filter(catalog, func(s Definition, _ int) bool { return d.Offers(string(s.Kind)) })
	out := make([]Dataset, len(defs))

	g, gctx := errgroup.WithContext(ctx)
	for i, def := range defs {
		g.Go(func() error {
			ds, err := l.Load(gctx, serviceID, def.Kind)
			if err != nil {
				return err
			}
			out[i] = ds
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Current returns the latest marker for (serviceID, kind) without fetching.
func (l *Loader) Current(serviceID string, kind Kind) (Dataset, error) {
	_, def, err := l.resolve(serviceID, kind)
	if err != nil {
		return Dataset{}, err
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	if e, ok := l.entries[key{service: serviceID, kind: kind}]; ok {
		return e.dataset, nil
	}
	return Dataset{
		ServiceID: serviceID,
		Kind:      kind,
		State:     StateNeverLoaded,
		Fields:    def.Fields,
		Rows:      []Record{},
	}, nil
}

func (l *Loader) resolve(serviceID string, kind Kind) (registry.Descriptor, Definition, error) {
	d, ok := l.registry.Lookup(serviceID)
	if !ok {
		return registry.Descriptor{}, Definition{}, fmt.Errorf("%w: %q", ErrUnknownService, serviceID)
	}

	def, ok := Lookup(kind)
	if !ok {
		return registry.Descriptor{}, Definition{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if !d.Offers(string(kind)) {
		return registry.Descriptor{}, Definition{}, fmt.Errorf("%w: %q does not offer %q", ErrKindNotOffered, serviceID, kind)
	}

	return d, def, nil
}

// begin marks the key as loading and returns the sequence number that the
// load must still hold to publish its result.
func (l *Loader) begin(k key, def Definition) uint64 {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	e, ok := l.entries[k]
	if !ok {
		e = &entry{}
		l.entries[k] = e
	}

	e.seq++
	e.dataset = Dataset{
		ServiceID: k.service,
		Kind:      k.kind,
		State:     StateLoading,
		Fields:    def.Fields,
		Rows:      []Record{},
	}
	return e.seq
}

func (l *Loader) finish(k key, seq uint64, result Dataset) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	e := l.entries[k]
	if e.seq != seq {
		l.logger.Debug("Discarding superseded section load",
			slog.String("service", k.service),
			slog.String("kind", string(k.kind)))
		return
	}
	e.dataset = result
}

func (l *Loader) fetch(ctx context.Context, d registry.Descriptor, def Definition) Dataset {
	ds := Dataset{
		ServiceID: d.ID,
		Kind:      def.Kind,
		Fields:    def.Fields,
		Rows:      []Record{},
	}

	fail := func(kind FailureKind, err error) Dataset {
		ds.State = StateFailed
		ds.FetchedAt = time.Now()
		ds.Failure = &Failure{Kind: kind, Message: err.Error()}

		l.logger.Warn("Section load failed",
			slog.String("service", d.ID),
			slog.String("kind", string(def.Kind)),
			slog.String("failure", string(kind)),
			slog.Any("err", err))
		return ds
	}

	target := d.Resolve(def.Resource)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fail(FailureTransport, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	res, err := l.client.Do(req)
	if err != nil {
		return fail(FailureTransport, err)
	}
	defer res.Body.Close()

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, l.maxBodyBytes))
		return fail(FailureProtocol, fmt.Errorf("unexpected status %d", res.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, l.maxBodyBytes+1))
	if err != nil {
		return fail(FailureTransport, fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > l.maxBodyBytes {
		return fail(FailureProtocol, fmt.Errorf("body exceeds %d bytes", l.maxBodyBytes))
	}

	rows, err := decodeRows(body, def)
	if err != nil {
		return fail(FailureProtocol, err)
	}

	ds.State = StateLoaded
	ds.Rows = rows
	ds.FetchedAt = time.Now()

	l.logger.Debug("Section loaded",
		slog.String("service", d.ID),
		slog.String("kind", string(def.Kind)),
		slog.Int("rows", len(rows)))

	return ds
}
