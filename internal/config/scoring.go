package config

// ScoringConfig holds the weights and curve parameters of the heuristic importance scorer.
type ScoringConfig struct {
	// Signal weights (should sum to 1.0)
	ContentWeight    float64 `mapstructure:"content_weight"`
	TypeWeight       float64 `mapstructure:"type_weight"`
	KeywordWeight    float64 `mapstructure:"keyword_weight"`
	EngagementWeight float64 `mapstructure:"engagement_weight"`
	RecencyWeight    float64 `mapstructure:"recency_weight"`

	// Content density logistic curve
	ContentMidpoint  float64 `mapstructure:"content_midpoint"`
	ContentScale     float64 `mapstructure:"content_scale"`
	MinContentLength int     `mapstructure:"min_content_length"`

	// RecencyHalfLifeDays is the half-life of the recency decay.
	RecencyHalfLifeDays float64 `mapstructure:"recency_half_life_days"`

	// Feedback bias
	BiasLearningRate float64 `mapstructure:"bias_learning_rate"`
	MaxBias          float64 `mapstructure:"max_bias"`

	// Workers bounds batch scoring parallelism.
	Workers int `mapstructure:"workers"`
}

// DefaultScoringConfig returns the hand-tuned scoring defaults.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		ContentWeight:    0.20,
		TypeWeight:       0.25,
		KeywordWeight:    0.30,
		EngagementWeight: 0.15,
		RecencyWeight:    0.10,

		ContentMidpoint:  200,
		ContentScale:     60,
		MinContentLength: 20,

		RecencyHalfLifeDays: 30,

		BiasLearningRate: 0.5,
		MaxBias:          0.15,

		Workers: 8,
	}
}

// LoadScoringConfig loads scoring configuration from Viper with defaults.
func LoadScoringConfig() ScoringConfig {
	defaults := DefaultScoringConfig()

	return ScoringConfig{
		ContentWeight:    getFloat64WithDefault("scoring.weights.content", defaults.ContentWeight),
		TypeWeight:       getFloat64WithDefault("scoring.weights.type", defaults.TypeWeight),
		KeywordWeight:    getFloat64WithDefault("scoring.weights.keyword", defaults.KeywordWeight),
		EngagementWeight: getFloat64WithDefault("scoring.weights.engagement", defaults.EngagementWeight),
		RecencyWeight:    getFloat64WithDefault("scoring.weights.recency", defaults.RecencyWeight),

		ContentMidpoint:  getFloat64WithDefault("scoring.content.midpoint", defaults.ContentMidpoint),
		ContentScale:     getFloat64WithDefault("scoring.content.scale", defaults.ContentScale),
		MinContentLength: getIntWithDefault("scoring.content.min_length", defaults.MinContentLength),

		RecencyHalfLifeDays: getFloat64WithDefault("scoring.recency_half_life_days", defaults.RecencyHalfLifeDays),

		BiasLearningRate: getFloat64WithDefault("scoring.feedback.learning_rate", defaults.BiasLearningRate),
		MaxBias:          getFloat64WithDefault("scoring.feedback.max_bias", defaults.MaxBias),

		Workers: getIntWithDefault("scoring.workers", defaults.Workers),
	}
}

// DedupConfig holds duplicate detection settings.
type DedupConfig struct {
	// NearDuplicateThreshold is the minimum token-set Jaccard similarity for near duplicates.
	NearDuplicateThreshold float64 `mapstructure:"near_duplicate_threshold" validate:"gt=0,lte=1"`

	// MinTokens is the smallest token set considered for near-duplicate matching.
	// Shorter items only match exactly.
	MinTokens int `mapstructure:"min_tokens"`
}

// DefaultDedupConfig returns the default duplicate detection settings.
func DefaultDedupConfig() DedupConfig {
	return DedupConfig{
		NearDuplicateThreshold: 0.85,
		MinTokens:              4,
	}
}

// LoadDedupConfig loads duplicate detection configuration from Viper with defaults.
func LoadDedupConfig() DedupConfig {
	defaults := DefaultDedupConfig()
	return DedupConfig{
		NearDuplicateThreshold: getFloat64WithDefault("dedup.near_duplicate_threshold", defaults.NearDuplicateThreshold),
		MinTokens:              getIntWithDefault("dedup.min_tokens", defaults.MinTokens),
	}
}

// IngestConfig holds ingestion coordinator settings.
type IngestConfig struct {
	// ImportanceThreshold drops scored items below this overall score.
	ImportanceThreshold float64 `mapstructure:"importance_threshold" validate:"gte=0,lte=1"`

	// IndexingEnabled controls the hand-off to the external indexer.
	IndexingEnabled bool `mapstructure:"indexing_enabled"`
}

// DefaultIngestConfig returns the default ingestion settings.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		ImportanceThreshold: 0.3,
		IndexingEnabled:     true,
	}
}

// LoadIngestConfig loads ingestion configuration from Viper with defaults.
func LoadIngestConfig() IngestConfig {
	defaults := DefaultIngestConfig()
	return IngestConfig{
		ImportanceThreshold: getFloat64WithDefault("ingest.importance_threshold", defaults.ImportanceThreshold),
		IndexingEnabled:     getBoolWithDefault("ingest.indexing_enabled", defaults.IndexingEnabled),
	}
}
