// Package metrics exposes reconciliation run counters in Prometheus
// format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dirbridge/dirbridge/pkg/reconcile"
)

// Metrics tracks reconciliation outcomes across runs.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal        prometheus.Counter
	runFailuresTotal prometheus.Counter
	recordsCreated   prometheus.Counter
	recordsChanged   prometheus.Counter
	recordsDeleted   prometheus.Counter
	recordsFailed    prometheus.Counter
	lastRunTimestamp prometheus.Gauge
	runDuration      prometheus.Histogram
}

// New creates the metric set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		runsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dirbridge_runs_total",
			Help: "Completed reconciliation runs.",
		}),
		runFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dirbridge_run_failures_total",
			Help: "Reconciliation runs aborted by an error.",
		}),
		recordsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "dirbridge_records_created_total",
			Help: "Principals created in the target directory.",
		}),
		recordsChanged: factory.NewCounter(prometheus.CounterOpts{
			Name: "dirbridge_records_changed_total",
			Help: "Principals updated in the target directory.",
		}),
		recordsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "dirbridge_records_deleted_total",
			Help: "Principals deleted from the target directory.",
		}),
		recordsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "dirbridge_records_failed_total",
			Help: "Records whose apply operation was rejected.",
		}),
		lastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dirbridge_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dirbridge_run_duration_seconds",
			Help:    "Wall time of a full reconciliation run.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
	}
}

// ObserveRun records the outcome of one completed run.
func (m *Metrics) ObserveRun(result *reconcile.Result) {
	m.runsTotal.Inc()
	m.recordsCreated.Add(float64(result.Created))
	m.recordsChanged.Add(float64(result.Changed))
	m.recordsDeleted.Add(float64(result.Deleted))
	m.recordsFailed.Add(float64(result.Failed))
	m.lastRunTimestamp.Set(float64(result.EndedAt.Unix()))
	m.runDuration.Observe(result.EndedAt.Sub(result.BeganAt).Seconds())
}

// ObserveRunError records a run that aborted before producing a result.
func (m *Metrics) ObserveRunError() {
	m.runFailuresTotal.Inc()
}

// Handler serves the metric set for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for test assertions.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
