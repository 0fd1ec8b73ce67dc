// Package metrics exposes Prometheus collectors for the gap-fill service.
// Metrics implements core.Recorder.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sheetfill"

// Metrics holds the collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	datasetsLoaded  prometheus.Counter
	recordsLoaded   prometheus.Counter
	decodeDuration  prometheus.Histogram
	decodeFailures  *prometheus.CounterVec
	reconciliations prometheus.Counter
	fieldsFilled    prometheus.Counter
	exports         *prometheus.CounterVec
	exportedRows    *prometheus.CounterVec
	emptyExports    *prometheus.CounterVec
	activeSessions  prometheus.Gauge
}

// New registers every collector, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		datasetsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "datasets_loaded_total",
			Help:      "Spreadsheets decoded into a session.",
		}),
		recordsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_loaded_total",
			Help:      "Records materialized from loaded spreadsheets.",
		}),
		decodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Time spent decoding uploaded spreadsheets.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		decodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_failures_total",
			Help:      "Uploads that did not produce a session, by reason.",
		}, []string{"reason"}),
		reconciliations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliations_total",
			Help:      "Record saves.",
		}),
		fieldsFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fields_filled_total",
			Help:      "Missing fields filled by record saves.",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Export files produced, by mode.",
		}, []string{"mode"}),
		exportedRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exported_rows_total",
			Help:      "Rows written to export files, by mode.",
		}, []string{"mode"}),
		emptyExports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_exports_total",
			Help:      "Exports refused because no rows matched, by mode.",
		}, []string{"mode"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Sessions currently holding a dataset.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.datasetsLoaded,
		m.recordsLoaded,
		m.decodeDuration,
		m.decodeFailures,
		m.reconciliations,
		m.fieldsFilled,
		m.exports,
		m.exportedRows,
		m.emptyExports,
		m.activeSessions,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) DatasetLoaded(rows int, took time.Duration) {
	m.datasetsLoaded.Inc()
	m.recordsLoaded.Add(float64(rows))
	m.decodeDuration.Observe(took.Seconds())
}

func (m *Metrics) DecodeFailed(reason string) {
	m.decodeFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) Reconciled(filled int) {
	m.reconciliations.Inc()
	m.fieldsFilled.Add(float64(filled))
}

func (m *Metrics) Exported(mode string, rows int) {
	m.exports.WithLabelValues(mode).Inc()
	m.exportedRows.WithLabelValues(mode).Add(float64(rows))
}

func (m *Metrics) ExportRefused(mode string) {
	m.emptyExports.WithLabelValues(mode).Inc()
}

func (m *Metrics) SessionsActive(n int) {
	m.activeSessions.Set(float64(n))
}
