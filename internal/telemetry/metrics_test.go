package telemetry

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordIngestStage(StageInput, 3)
	m.RecordIngestRun("success", time.Second)
	m.RecordScore("HIGH")
	m.RecordStoreFailures(1)
	m.RecordSearch("CODE_SEMANTIC", time.Millisecond, 2, nil)
	m.RecordCleanup(1, 2)
	m.RecordSweepProject(errors.New("boom"))
	m.RecordFeedback()
}

func TestRecordIngestStage(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordIngestStage(StageInput, 7)
	m.RecordIngestStage(StageDuplicate, 4)
	m.RecordIngestStage(StageStored, 0)

	assert.Equal(t, 7.0, testutil.ToFloat64(m.IngestItems.WithLabelValues(StageInput)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.IngestItems.WithLabelValues(StageDuplicate)))
	assert.Equal(t, 2, testutil.CollectAndCount(m.IngestItems))
}

func TestRecordSearch(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordSearch("CROSS_SOURCE", 20*time.Millisecond, 5, nil)
	m.RecordSearch("CROSS_SOURCE", time.Second, 0, errors.New("timeout"))

	expected := `
		# HELP knowledgewing_search_requests_total Search requests by search type and outcome.
		# TYPE knowledgewing_search_requests_total counter
		knowledgewing_search_requests_total{outcome="error",search_type="CROSS_SOURCE"} 1
		knowledgewing_search_requests_total{outcome="ok",search_type="CROSS_SOURCE"} 1
	`
	require.NoError(t, testutil.CollectAndCompare(m.SearchRequests, strings.NewReader(expected)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SearchResults))
}

func TestRecordCleanupAndSweep(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordCleanup(3, 2)
	m.RecordCleanup(1, 0)
	m.RecordSweepProject(nil)
	m.RecordSweepProject(errors.New("locked"))

	assert.Equal(t, 4.0, testutil.ToFloat64(m.CleanupDeleted))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CleanupDemoted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SweepRuns.WithLabelValues("error")))
}

func TestNewMetrics_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) }, "duplicate registration must panic")
}
