// Package metrics holds the Prometheus collectors for the store, the
// knowledge cache and the analyzer. A nil *Metrics records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	LookupsRecorded   *prometheus.CounterVec
	ContentImports    *prometheus.CounterVec
	ImportDuration    prometheus.Histogram
	SnapshotBuilds    *prometheus.CounterVec
	SnapshotDuration  prometheus.Histogram
	CacheRequests     *prometheus.CounterVec
	FlashcardFailures prometheus.Counter
	AnalysisDuration  prometheus.Histogram
	StatsDegraded     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LookupsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sieve_lookups_recorded_total",
				Help: "Lookup events written, by outcome",
			},
			[]string{"result"},
		),
		ContentImports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sieve_content_imports_total",
				Help: "Content import attempts, by outcome",
			},
			[]string{"result"},
		),
		ImportDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sieve_content_import_duration_seconds",
				Help:    "Time spent importing one content item",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		SnapshotBuilds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sieve_snapshot_builds_total",
				Help: "Knowledge snapshot builds, by flashcard status",
			},
			[]string{"flashcards"},
		),
		SnapshotDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sieve_snapshot_build_duration_seconds",
				Help:    "Time spent building a knowledge snapshot",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
		),
		CacheRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sieve_snapshot_cache_requests_total",
				Help: "Snapshot cache requests, by result",
			},
			[]string{"result"},
		),
		FlashcardFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sieve_flashcard_failures_total",
				Help: "Failed calls to the flashcard system",
			},
		),
		AnalysisDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sieve_analysis_duration_seconds",
				Help:    "Time spent preparing a document for difficulty analysis",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		StatsDegraded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sieve_stats_degraded_total",
				Help: "Statistics queries that failed and returned a sentinel",
			},
			[]string{"query"},
		),
	}
	if reg != nil {
		reg.MustRegister(
			m.LookupsRecorded,
			m.ContentImports,
			m.ImportDuration,
			m.SnapshotBuilds,
			m.SnapshotDuration,
			m.CacheRequests,
			m.FlashcardFailures,
			m.AnalysisDuration,
			m.StatsDegraded,
		)
	}
	return m
}

func (m *Metrics) Lookup(result string) {
	if m == nil {
		return
	}
	m.LookupsRecorded.WithLabelValues(result).Inc()
}

func (m *Metrics) Import(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.ContentImports.WithLabelValues(result).Inc()
	m.ImportDuration.Observe(d.Seconds())
}

func (m *Metrics) Snapshot(flashcards string, d time.Duration) {
	if m == nil {
		return
	}
	m.SnapshotBuilds.WithLabelValues(flashcards).Inc()
	m.SnapshotDuration.Observe(d.Seconds())
}

func (m *Metrics) Cache(result string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) FlashcardFailure() {
	if m == nil {
		return
	}
	m.FlashcardFailures.Inc()
}

func (m *Metrics) Analysis(d time.Duration) {
	if m == nil {
		return
	}
	m.AnalysisDuration.Observe(d.Seconds())
}

func (m *Metrics) Degraded(query string) {
	if m == nil {
		return
	}
	m.StatsDegraded.WithLabelValues(query).Inc()
}
