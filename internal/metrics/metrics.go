// Package metrics exposes ingestion and query metrics for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/OFFIS-RIT/hazgraph/pkg/common"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements ingest.Observer and query.Observer.
type Metrics struct {
	registry *prometheus.Registry

	recordsTotal    *prometheus.CounterVec
	recordDuration  prometheus.Histogram
	verdictsTotal   *prometheus.CounterVec
	upsertConflicts prometheus.Counter
	queriesTotal    *prometheus.CounterVec
	queryDuration   prometheus.Histogram
	pathDuration    *prometheus.HistogramVec
	pathFailures    *prometheus.CounterVec
}

// New registers all collectors on a fresh registry together with the Go
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		recordsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hazgraph_records_total",
			Help: "Ingested records by final status",
		}, []string{"status"}),
		recordDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hazgraph_record_duration_seconds",
			Help:    "Time to process one record end to end",
			Buckets: prometheus.DefBuckets,
		}),
		verdictsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hazgraph_verdicts_total",
			Help: "Validation verdicts by candidate kind and status",
		}, []string{"kind", "status"}),
		upsertConflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "hazgraph_upsert_conflicts_total",
			Help: "Graph commits retried after a concurrent write",
		}),
		queriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hazgraph_queries_total",
			Help: "Answered queries by outcome",
		}, []string{"outcome"}),
		queryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "hazgraph_query_duration_seconds",
			Help:    "Time to answer one query",
			Buckets: prometheus.DefBuckets,
		}),
		pathDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hazgraph_retrieval_path_duration_seconds",
			Help:    "Time spent in one retrieval path",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		pathFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hazgraph_retrieval_path_failures_total",
			Help: "Retrieval paths that timed out or failed",
		}, []string{"path"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Verdict(kind string, status common.VerdictStatus) {
	m.verdictsTotal.WithLabelValues(kind, string(status)).Inc()
}

func (m *Metrics) RecordFinished(outcome common.IngestionOutcome, elapsed time.Duration) {
	m.recordsTotal.WithLabelValues(string(outcome.Status)).Inc()
	m.recordDuration.Observe(elapsed.Seconds())
}

// UpsertConflict matches graph.WithConflictHook.
func (m *Metrics) UpsertConflict(string, error) {
	m.upsertConflicts.Inc()
}

func (m *Metrics) PathFinished(path string, elapsed time.Duration, err error) {
	m.pathDuration.WithLabelValues(path).Observe(elapsed.Seconds())
	if err != nil {
		m.pathFailures.WithLabelValues(path).Inc()
	}
}

func (m *Metrics) QueryFinished(elapsed time.Duration, answer common.Answer) {
	m.queryDuration.Observe(elapsed.Seconds())
	m.queriesTotal.WithLabelValues(queryOutcome(answer)).Inc()
}

func queryOutcome(a common.Answer) string {
	switch {
	case a.NoResults:
		return "no_results"
	case len(a.Degraded) > 0:
		return "degraded"
	default:
		return "answered"
	}
}
