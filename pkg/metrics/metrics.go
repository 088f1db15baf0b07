package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the extraction pipeline
type Metrics struct {
	registry *prometheus.Registry

	// Engine
	SnapshotsProcessed *prometheus.CounterVec
	Unextractable      *prometheus.CounterVec
	CounterRollbacks   prometheus.Counter

	// Processing
	DumpsProcessed     *prometheus.CounterVec
	ConnectionsActive  prometheus.Gauge
	ConnectionsTotal   *prometheus.CounterVec
	ExtractionDuration prometheus.Histogram
	MalformedDumpLines prometheus.Counter
	ResultsExported    *prometheus.CounterVec

	// HTTP
	HTTPRequests *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// GetMetrics returns the process-wide metrics instance
func GetMetrics() *Metrics {
	once.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New creates metrics registered on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SnapshotsProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtcfeatures_snapshots_processed_total",
				Help: "Total number of snapshots processed",
			},
			[]string{"format"},
		),
		Unextractable: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtcfeatures_unextractable_snapshots_total",
				Help: "Total number of snapshots that produced no features",
			},
			[]string{"reason"},
		),
		CounterRollbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "rtcfeatures_counter_rollbacks_total",
			Help: "Total number of cumulative counters seen decreasing",
		}),

		DumpsProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtcfeatures_dumps_processed_total",
				Help: "Total number of dumps processed",
			},
			[]string{"outcome"},
		),
		ConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "rtcfeatures_connections_active",
			Help: "Number of connections being processed",
		}),
		ConnectionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtcfeatures_connections_total",
				Help: "Total number of connections processed",
			},
			[]string{"outcome"},
		),
		ExtractionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rtcfeatures_extraction_duration_seconds",
			Help:    "Time spent extracting one connection",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}),
		MalformedDumpLines: f.NewCounter(prometheus.CounterOpts{
			Name: "rtcfeatures_malformed_dump_lines_total",
			Help: "Total number of dump lines skipped as malformed",
		}),
		ResultsExported: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtcfeatures_results_exported_total",
				Help: "Total number of connection results exported",
			},
			[]string{"exporter", "outcome"},
		),

		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtcfeatures_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "status"},
		),
	}
}

// IncrementSnapshotsProcessed counts one snapshot by detected format
func (m *Metrics) IncrementSnapshotsProcessed(format string) {
	m.SnapshotsProcessed.WithLabelValues(format).Inc()
}

// IncrementUnextractable counts one snapshot that produced no features
func (m *Metrics) IncrementUnextractable(reason string) {
	m.Unextractable.WithLabelValues(reason).Inc()
}

// AddCounterRollbacks adds observed counter decreases
func (m *Metrics) AddCounterRollbacks(n int) {
	if n > 0 {
		m.CounterRollbacks.Add(float64(n))
	}
}

// IncrementDumpsProcessed counts one dump by outcome
func (m *Metrics) IncrementDumpsProcessed(outcome string) {
	m.DumpsProcessed.WithLabelValues(outcome).Inc()
}

// ConnectionStarted tracks a connection entering extraction
func (m *Metrics) ConnectionStarted() {
	m.ConnectionsActive.Inc()
}

// ConnectionFinished tracks a connection leaving extraction
func (m *Metrics) ConnectionFinished(outcome string, elapsed time.Duration) {
	m.ConnectionsActive.Dec()
	m.ConnectionsTotal.WithLabelValues(outcome).Inc()
	m.ExtractionDuration.Observe(elapsed.Seconds())
}

// AddMalformedDumpLines counts skipped dump lines
func (m *Metrics) AddMalformedDumpLines(n int) {
	if n > 0 {
		m.MalformedDumpLines.Add(float64(n))
	}
}

// IncrementResultsExported counts one export attempt
func (m *Metrics) IncrementResultsExported(exporter, outcome string) {
	m.ResultsExported.WithLabelValues(exporter, outcome).Inc()
}

// IncrementHTTPRequests counts one served request
func (m *Metrics) IncrementHTTPRequests(path, status string) {
	m.HTTPRequests.WithLabelValues(path, status).Inc()
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
