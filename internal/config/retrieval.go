package config

import (
	"time"

	"github.com/spf13/viper"
)

// SearchConfig holds configuration for the semantic search engine.
type SearchConfig struct {
	// Final score weights (should sum to 1.0)
	RelevanceWeight  float64 `mapstructure:"relevance_weight"`
	ImportanceWeight float64 `mapstructure:"importance_weight"`
	IntentWeight     float64 `mapstructure:"intent_weight"`
	RecencyWeight    float64 `mapstructure:"recency_weight"`

	// RecencyHalfLifeDays controls how fast the recency component decays.
	RecencyHalfLifeDays float64 `mapstructure:"recency_half_life_days"`

	// Candidate retrieval
	CandidateMultiplier int           `mapstructure:"candidate_multiplier"`
	MaxCandidates       int           `mapstructure:"max_candidates"`
	DefaultLimit        int           `mapstructure:"default_limit"`
	Timeout             time.Duration `mapstructure:"timeout"`

	// HistoryCap bounds the per-project search history ring buffer.
	HistoryCap int `mapstructure:"history_cap"`

	// Importance thresholds applied by each entry point
	CodeImportanceThreshold  float64 `mapstructure:"code_importance_threshold"`
	CrossImportanceThreshold float64 `mapstructure:"cross_importance_threshold"`

	// Reranking settings (TEI /rerank endpoint)
	RerankingEnabled bool          `mapstructure:"reranking_enabled"`
	RerankBaseURL    string        `mapstructure:"rerank_base_url" validate:"omitempty,url"`
	RerankTimeout    time.Duration `mapstructure:"rerank_timeout"`
}

// DefaultSearchConfig returns the default search configuration.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		RelevanceWeight:  0.45,
		ImportanceWeight: 0.25,
		IntentWeight:     0.20,
		RecencyWeight:    0.10,

		RecencyHalfLifeDays: 30,

		CandidateMultiplier: 3,
		MaxCandidates:       100,
		DefaultLimit:        10,
		Timeout:             10 * time.Second,

		HistoryCap: 100,

		CodeImportanceThreshold:  0.0,
		CrossImportanceThreshold: 0.2,

		// Off by default until a TEI server is configured
		RerankingEnabled: false,
		RerankBaseURL:    "http://localhost:8081",
		RerankTimeout:    5 * time.Second,
	}
}

// LoadSearchConfig loads search configuration from Viper with defaults.
func LoadSearchConfig() SearchConfig {
	defaults := DefaultSearchConfig()

	return SearchConfig{
		RelevanceWeight:  getFloat64WithDefault("search.weights.relevance", defaults.RelevanceWeight),
		ImportanceWeight: getFloat64WithDefault("search.weights.importance", defaults.ImportanceWeight),
		IntentWeight:     getFloat64WithDefault("search.weights.intent", defaults.IntentWeight),
		RecencyWeight:    getFloat64WithDefault("search.weights.recency", defaults.RecencyWeight),

		RecencyHalfLifeDays: getFloat64WithDefault("search.recency_half_life_days", defaults.RecencyHalfLifeDays),

		CandidateMultiplier: getIntWithDefault("search.candidates.multiplier", defaults.CandidateMultiplier),
		MaxCandidates:       getIntWithDefault("search.candidates.max", defaults.MaxCandidates),
		DefaultLimit:        getIntWithDefault("search.default_limit", defaults.DefaultLimit),
		Timeout:             getDurationWithDefault("search.timeout", defaults.Timeout),

		HistoryCap: getIntWithDefault("search.history_cap", defaults.HistoryCap),

		CodeImportanceThreshold:  getFloat64WithDefault("search.thresholds.code", defaults.CodeImportanceThreshold),
		CrossImportanceThreshold: getFloat64WithDefault("search.thresholds.cross", defaults.CrossImportanceThreshold),

		RerankingEnabled: getBoolWithDefault("search.reranking.enabled", defaults.RerankingEnabled),
		RerankBaseURL:    getStringWithDefault("search.reranking.base_url", defaults.RerankBaseURL),
		RerankTimeout:    getDurationWithDefault("search.reranking.timeout", defaults.RerankTimeout),
	}
}

// Helper functions for Viper with defaults

func getFloat64WithDefault(key string, defaultVal float64) float64 {
	if viper.IsSet(key) {
		return viper.GetFloat64(key)
	}
	return defaultVal
}

func getIntWithDefault(key string, defaultVal int) int {
	if viper.IsSet(key) {
		return viper.GetInt(key)
	}
	return defaultVal
}

func getBoolWithDefault(key string, defaultVal bool) bool {
	if viper.IsSet(key) {
		return viper.GetBool(key)
	}
	return defaultVal
}

func getStringWithDefault(key string, defaultVal string) string {
	if viper.IsSet(key) {
		return viper.GetString(key)
	}
	return defaultVal
}

func getDurationWithDefault(key string, defaultVal time.Duration) time.Duration {
	if viper.IsSet(key) {
		return viper.GetDuration(key)
	}
	return defaultVal
}
