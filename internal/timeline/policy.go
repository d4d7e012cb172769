package timeline

import (
	"time"

	"github.com/josephgoksu/KnowledgeWing/internal/config"
	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
)

// tierMatrix maps (level, category) to a tier. Every row only gets colder
// as the category ages, so recomputing a tier never promotes an entry.
var tierMatrix = map[scoring.Level]map[scoring.Category]Tier{
	scoring.LevelCritical: {
		scoring.CategoryRecent: TierHot, scoring.CategoryLastMonth: TierHot, scoring.CategoryLastQuarter: TierWarm,
		scoring.CategoryOlder: TierCold, scoring.CategoryArchive: TierArchive,
	},
	scoring.LevelHigh: {
		scoring.CategoryRecent: TierHot, scoring.CategoryLastMonth: TierWarm, scoring.CategoryLastQuarter: TierWarm,
		scoring.CategoryOlder: TierCold, scoring.CategoryArchive: TierArchive,
	},
	scoring.LevelMedium: {
		scoring.CategoryRecent: TierWarm, scoring.CategoryLastMonth: TierWarm, scoring.CategoryLastQuarter: TierCold,
		scoring.CategoryOlder: TierCold, scoring.CategoryArchive: TierArchive,
	},
	scoring.LevelLow: {
		scoring.CategoryRecent: TierWarm, scoring.CategoryLastMonth: TierCold, scoring.CategoryLastQuarter: TierCold,
		scoring.CategoryOlder: TierArchive, scoring.CategoryArchive: TierArchive,
	},
	scoring.LevelNoise: {
		scoring.CategoryRecent: TierCold, scoring.CategoryLastMonth: TierCold, scoring.CategoryLastQuarter: TierArchive,
		scoring.CategoryOlder: TierArchive, scoring.CategoryArchive: TierArchive,
	},
}

// RetentionPolicy decides where an entry lives and how long it is kept.
type RetentionPolicy struct {
	retention map[scoring.Level]time.Duration
}

// NewRetentionPolicy builds a policy from configured retention windows.
func NewRetentionPolicy(cfg config.RetentionConfig) RetentionPolicy {
	days := func(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }
	return RetentionPolicy{
		retention: map[scoring.Level]time.Duration{
			scoring.LevelCritical: days(cfg.CriticalDays),
			scoring.LevelHigh:     days(cfg.HighDays),
			scoring.LevelMedium:   days(cfg.MediumDays),
			scoring.LevelLow:      days(cfg.LowDays),
			scoring.LevelNoise:    days(cfg.NoiseDays),
		},
	}
}

// DefaultRetentionPolicy returns the policy for config.DefaultRetentionConfig.
func DefaultRetentionPolicy() RetentionPolicy {
	return NewRetentionPolicy(config.DefaultRetentionConfig())
}

// Tier returns the storage tier for a level and category. Unknown levels are
// treated as NOISE and unknown categories as ARCHIVE.
func (p RetentionPolicy) Tier(level scoring.Level, category scoring.Category) Tier {
	row, ok := tierMatrix[level]
	if !ok {
		row = tierMatrix[scoring.LevelNoise]
	}
	if tier, ok := row[category]; ok {
		return tier
	}
	return TierArchive
}

// Retention returns how long entries at level are kept after being stored.
func (p RetentionPolicy) Retention(level scoring.Level) time.Duration {
	if d, ok := p.retention[level]; ok {
		return d
	}
	return p.retention[scoring.LevelNoise]
}

// Deadline returns the retention deadline of an entry stored at storedAt.
func (p RetentionPolicy) Deadline(level scoring.Level, storedAt time.Time) time.Time {
	return storedAt.Add(p.Retention(level))
}
