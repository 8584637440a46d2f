package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dashboard"

// exporter mirrors collected events into Prometheus collectors on a private
// registry, so several collectors can live in one process.
type exporter struct {
	registry     *prometheus.Registry
	serviceUp    *prometheus.GaugeVec
	probes       *prometheus.HistogramVec
	cycles       prometheus.Counter
	skipped      prometheus.Counter
	sectionLoads *prometheus.CounterVec
	sectionRows  *prometheus.GaugeVec
}

func newExporter() *exporter {
	e := &exporter{
		registry: prometheus.NewRegistry(),
		serviceUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_up",
			Help:      "1 when the last probe found the service online.",
		}, []string{"service"}),
		probes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Health probe latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "result"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Completed poll cycles.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probes_skipped_total",
			Help:      "Probes skipped because the previous one was still pending.",
		}),
		sectionLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "section_loads_total",
			Help:      "Section data loads by outcome.",
		}, []string{"service", "section", "result"}),
		sectionRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "section_rows",
			Help:      "Rows returned by the last section load.",
		}, []string{"service", "section"}),
	}

	e.registry.MustRegister(e.serviceUp, e.probes, e.cycles, e.skipped, e.sectionLoads, e.sectionRows)
	return e
}

func (e *exporter) observe(event Event) {
	switch event.Type {
	case EventProbeCompleted:
		up, result := 0.0, "offline"
		if event.Online {
			up, result = 1, "online"
		}
		e.serviceUp.WithLabelValues(event.Service).Set(up)
		e.probes.WithLabelValues(event.Service, result).Observe(event.Duration.Seconds())

	case EventCycleCompleted:
		e.cycles.Inc()
		e.skipped.Add(float64(event.Skipped))

	case EventSectionLoaded:
		result := "loaded"
		if event.Failed {
			result = "failed"
		}
		e.sectionLoads.WithLabelValues(event.Service, event.Section, result).Inc()
		e.sectionRows.WithLabelValues(event.Service, event.Section).Set(float64(event.Rows))
	}
}

// PrometheusHandler serves the collected metrics in the Prometheus text format.
func (c *Collector) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(c.exporter.registry, promhttp.HandlerOpts{})
}
