// Package config provides centralized configuration for KnowledgeWing.
// All default values should be defined here or in the Default* constructors
// to ensure a single source of truth.
package config

// AppName is used for the config file name, env prefix and data directories.
const AppName = "knowledgewing"

// EnvPrefix is the prefix Viper uses for environment overrides
// (KNOWLEDGEWING_SEARCH_TIMEOUT, ...).
const EnvPrefix = "KNOWLEDGEWING"

// DefaultDatabaseFile is the SQLite file name inside the data directory.
const DefaultDatabaseFile = "knowledge.db"

// Log output formats
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)
