// Package telemetry exposes Prometheus metrics and OpenTelemetry tracing for
// the ingestion, storage and search pipeline.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "knowledgewing"

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	IngestItems     *prometheus.CounterVec
	IngestRuns      *prometheus.CounterVec
	IngestDuration  prometheus.Histogram
	ScoredItems     *prometheus.CounterVec
	StoreFailures   prometheus.Counter
	SearchRequests  *prometheus.CounterVec
	SearchDuration  *prometheus.HistogramVec
	SearchResults   prometheus.Histogram
	CleanupDeleted  prometheus.Counter
	CleanupDemoted  prometheus.Counter
	SweepRuns       *prometheus.CounterVec
	FeedbackEntries prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// Pass prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		IngestItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_items_total",
			Help:      "Items seen by the ingestion coordinator, by pipeline stage.",
		}, []string{"stage"}),
		IngestRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_runs_total",
			Help:      "Ingestion runs by outcome status.",
		}, []string{"status"}),
		IngestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of ingestion runs.",
			Buckets:   prometheus.DefBuckets,
		}),
		ScoredItems: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scored_items_total",
			Help:      "Scored items by importance level.",
		}, []string{"level"}),
		StoreFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeline_store_failures_total",
			Help:      "Items that failed to persist to the timeline store.",
		}),
		SearchRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_requests_total",
			Help:      "Search requests by search type and outcome.",
		}, []string{"search_type", "outcome"}),
		SearchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Search latency by search type.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"search_type"}),
		SearchResults: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_results",
			Help:      "Number of results returned per search.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		CleanupDeleted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeline_cleanup_deleted_total",
			Help:      "Timeline entries deleted after their retention deadline.",
		}),
		CleanupDemoted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeline_cleanup_demoted_total",
			Help:      "Timeline entries demoted to a colder storage tier.",
		}),
		SweepRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_project_runs_total",
			Help:      "Per-project cleanup runs in the periodic sweep, by outcome.",
		}, []string{"outcome"}),
		FeedbackEntries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feedback_entries_total",
			Help:      "Feedback entries appended to project logs.",
		}),
	}
}

// Ingest stage labels.
const (
	StageInput     = "input"
	StageDuplicate = "duplicate"
	StageScored    = "scored"
	StageAbove     = "above_threshold"
	StageStored    = "stored"
	StageIndexed   = "indexed"
)

// RecordIngestStage adds n items to a pipeline stage.
func (m *Metrics) RecordIngestStage(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.IngestItems.WithLabelValues(stage).Add(float64(n))
}

// RecordIngestRun records a finished ingestion run.
func (m *Metrics) RecordIngestRun(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.IngestRuns.WithLabelValues(status).Inc()
	m.IngestDuration.Observe(elapsed.Seconds())
}

// RecordScore counts one scored item at level.
func (m *Metrics) RecordScore(level string) {
	if m == nil {
		return
	}
	m.ScoredItems.WithLabelValues(level).Inc()
}

// RecordStoreFailures counts items that failed to persist.
func (m *Metrics) RecordStoreFailures(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.StoreFailures.Add(float64(n))
}

// RecordSearch records one search call.
func (m *Metrics) RecordSearch(searchType string, elapsed time.Duration, results int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.SearchRequests.WithLabelValues(searchType, outcome).Inc()
	m.SearchDuration.WithLabelValues(searchType).Observe(elapsed.Seconds())
	if err == nil {
		m.SearchResults.Observe(float64(results))
	}
}

// RecordCleanup records the outcome of one project cleanup.
func (m *Metrics) RecordCleanup(deleted, demoted int) {
	if m == nil {
		return
	}
	m.CleanupDeleted.Add(float64(deleted))
	m.CleanupDemoted.Add(float64(demoted))
}

// RecordSweepProject records one project's cleanup within a sweep.
func (m *Metrics) RecordSweepProject(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.SweepRuns.WithLabelValues(outcome).Inc()
}

// RecordFeedback counts one appended feedback entry.
func (m *Metrics) RecordFeedback() {
	if m == nil {
		return
	}
	m.FeedbackEntries.Inc()
}
