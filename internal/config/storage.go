package config

import "time"

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// StorageConfig selects the durable store for timeline entries.
type StorageConfig struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	// DSN is the database path for sqlite or the connection string for postgres.
	// Empty with sqlite means GetDataBasePath()/knowledge.db.
	DSN string `mapstructure:"dsn"`
}

// DefaultStorageConfig returns the default storage configuration.
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Driver: DriverSQLite,
	}
}

// LoadStorageConfig loads storage configuration from Viper with defaults.
func LoadStorageConfig() StorageConfig {
	defaults := DefaultStorageConfig()
	return StorageConfig{
		Driver: getStringWithDefault("storage.driver", defaults.Driver),
		DSN:    getStringWithDefault("storage.dsn", defaults.DSN),
	}
}

// RetentionConfig maps importance levels to retention windows, in days.
type RetentionConfig struct {
	CriticalDays int `mapstructure:"critical_days" validate:"gt=0"`
	HighDays     int `mapstructure:"high_days" validate:"gt=0"`
	MediumDays   int `mapstructure:"medium_days" validate:"gt=0"`
	LowDays      int `mapstructure:"low_days" validate:"gt=0"`
	NoiseDays    int `mapstructure:"noise_days" validate:"gt=0"`
}

// DefaultRetentionConfig returns the default retention windows.
// NOISE expires after ~30 days regardless of age; CRITICAL is kept two years.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		CriticalDays: 730,
		HighDays:     365,
		MediumDays:   180,
		LowDays:      90,
		NoiseDays:    30,
	}
}

// LoadRetentionConfig loads retention configuration from Viper with defaults.
func LoadRetentionConfig() RetentionConfig {
	defaults := DefaultRetentionConfig()
	return RetentionConfig{
		CriticalDays: getIntWithDefault("retention.critical_days", defaults.CriticalDays),
		HighDays:     getIntWithDefault("retention.high_days", defaults.HighDays),
		MediumDays:   getIntWithDefault("retention.medium_days", defaults.MediumDays),
		LowDays:      getIntWithDefault("retention.low_days", defaults.LowDays),
		NoiseDays:    getIntWithDefault("retention.noise_days", defaults.NoiseDays),
	}
}

// SweepConfig controls the periodic cleanup sweep.
type SweepConfig struct {
	// Schedule is a cron expression or descriptor ("@every 1h", "0 3 * * *").
	Schedule string `mapstructure:"schedule" validate:"required,cronschedule"`
	// ProjectTimeout bounds the cleanup of a single project.
	ProjectTimeout time.Duration `mapstructure:"project_timeout"`
}

// DefaultSweepConfig returns the default sweep configuration.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Schedule:       "@every 1h",
		ProjectTimeout: 2 * time.Minute,
	}
}

// LoadSweepConfig loads sweep configuration from Viper with defaults.
func LoadSweepConfig() SweepConfig {
	defaults := DefaultSweepConfig()
	return SweepConfig{
		Schedule:       getStringWithDefault("sweep.schedule", defaults.Schedule),
		ProjectTimeout: getDurationWithDefault("sweep.project_timeout", defaults.ProjectTimeout),
	}
}
