package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaultSearchConfig(t *testing.T) {
	cfg := DefaultSearchConfig()

	// Ranking weights should sum to 1.0
	sum := cfg.RelevanceWeight + cfg.ImportanceWeight + cfg.IntentWeight + cfg.RecencyWeight
	assert.InDelta(t, 1.0, sum, 1e-9, "Weights should sum to 1.0")
	assert.Equal(t, 0.45, cfg.RelevanceWeight)

	assert.Equal(t, 3, cfg.CandidateMultiplier, "Should fetch 3x candidates for ranking headroom")
	assert.Equal(t, 100, cfg.MaxCandidates)
	assert.Equal(t, 100, cfg.HistoryCap, "History cap should be 100")
	assert.Equal(t, 10*time.Second, cfg.Timeout)
}

func TestLoadSearchConfig_Defaults(t *testing.T) {
	viper.Reset()

	cfg := LoadSearchConfig()
	assert.Equal(t, DefaultSearchConfig(), cfg)
}

func TestLoadSearchConfig_CustomValues(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("search.weights.relevance", 0.6)
	viper.Set("search.candidates.max", 50)
	viper.Set("search.timeout", "250ms")
	viper.Set("search.thresholds.cross", 0.4)
	viper.Set("search.reranking.enabled", true)
	viper.Set("search.reranking.base_url", "http://tei:8081")
	viper.Set("search.reranking.timeout", "500ms")

	cfg := LoadSearchConfig()

	assert.Equal(t, 0.6, cfg.RelevanceWeight)
	assert.Equal(t, 50, cfg.MaxCandidates)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.Equal(t, 0.4, cfg.CrossImportanceThreshold)
	assert.True(t, cfg.RerankingEnabled)
	assert.Equal(t, "http://tei:8081", cfg.RerankBaseURL)
	assert.Equal(t, 500*time.Millisecond, cfg.RerankTimeout)

	// Unset values keep their defaults
	assert.Equal(t, 0.25, cfg.ImportanceWeight)
}

func TestDefaultScoringConfig(t *testing.T) {
	cfg := DefaultScoringConfig()

	sum := cfg.ContentWeight + cfg.TypeWeight + cfg.KeywordWeight + cfg.EngagementWeight + cfg.RecencyWeight
	assert.InDelta(t, 1.0, sum, 1e-9, "Signal weights should sum to 1.0")
	assert.Equal(t, 30.0, cfg.RecencyHalfLifeDays)
	assert.Positive(t, cfg.Workers)
}

func TestLoadScoringConfig_CustomValues(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("scoring.weights.keyword", 0.5)
	viper.Set("scoring.feedback.max_bias", 0.3)

	cfg := LoadScoringConfig()
	assert.Equal(t, 0.5, cfg.KeywordWeight)
	assert.Equal(t, 0.3, cfg.MaxBias)
	assert.Equal(t, 0.20, cfg.ContentWeight)
}

func TestLoadDedupAndIngestConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	assert.Equal(t, 0.85, LoadDedupConfig().NearDuplicateThreshold)
	assert.Equal(t, 0.3, LoadIngestConfig().ImportanceThreshold)
	assert.True(t, LoadIngestConfig().IndexingEnabled)

	viper.Set("dedup.near_duplicate_threshold", 0.9)
	viper.Set("ingest.indexing_enabled", false)

	assert.Equal(t, 0.9, LoadDedupConfig().NearDuplicateThreshold)
	assert.False(t, LoadIngestConfig().IndexingEnabled)
}

func TestLoadRetentionAndSweepConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	r := LoadRetentionConfig()
	assert.Equal(t, 730, r.CriticalDays)
	assert.Equal(t, 30, r.NoiseDays)

	viper.Set("retention.noise_days", 7)
	viper.Set("sweep.schedule", "0 3 * * *")
	viper.Set("sweep.project_timeout", "30s")

	assert.Equal(t, 7, LoadRetentionConfig().NoiseDays)
	sw := LoadSweepConfig()
	assert.Equal(t, "0 3 * * *", sw.Schedule)
	assert.Equal(t, 30*time.Second, sw.ProjectTimeout)
}

func TestLoadStorageConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	assert.Equal(t, DriverSQLite, LoadStorageConfig().Driver)

	viper.Set("storage.driver", "postgres")
	viper.Set("storage.dsn", "postgres://kw@localhost/kw?sslmode=disable")
	cfg := LoadStorageConfig()
	assert.Equal(t, DriverPostgres, cfg.Driver)
	assert.Equal(t, "postgres://kw@localhost/kw?sslmode=disable", cfg.DSN)
}
