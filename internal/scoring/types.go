// Package scoring rates knowledge items by importance and learns per-project
// corrections from user feedback.
package scoring

import (
	"time"
)

// Level is the importance bucket derived from an overall score.
type Level string

const (
	LevelCritical Level = "CRITICAL"
	LevelHigh     Level = "HIGH"
	LevelMedium   Level = "MEDIUM"
	LevelLow      Level = "LOW"
	LevelNoise    Level = "NOISE"
)

// Levels lists every level from most to least important.
var Levels = []Level{LevelCritical, LevelHigh, LevelMedium, LevelLow, LevelNoise}

// Rank orders levels so that a higher rank is more important.
func (l Level) Rank() int {
	switch l {
	case LevelCritical:
		return 4
	case LevelHigh:
		return 3
	case LevelMedium:
		return 2
	case LevelLow:
		return 1
	default:
		return 0
	}
}

// LevelFor maps a score to its level using fixed thresholds.
func LevelFor(score float64) Level {
	switch {
	case score >= 0.8:
		return LevelCritical
	case score >= 0.6:
		return LevelHigh
	case score >= 0.4:
		return LevelMedium
	case score >= 0.2:
		return LevelLow
	default:
		return LevelNoise
	}
}

// ParseLevel returns the level named by s, or false if s is not a level.
func ParseLevel(s string) (Level, bool) {
	for _, l := range Levels {
		if string(l) == s {
			return l, true
		}
	}
	return "", false
}

// Category buckets an item by its age.
type Category string

const (
	CategoryRecent      Category = "RECENT"
	CategoryLastMonth   Category = "LAST_MONTH"
	CategoryLastQuarter Category = "LAST_QUARTER"
	CategoryOlder       Category = "OLDER"
	CategoryArchive     Category = "ARCHIVE"
)

// Categories lists every category from newest to oldest.
var Categories = []Category{CategoryRecent, CategoryLastMonth, CategoryLastQuarter, CategoryOlder, CategoryArchive}

const day = 24 * time.Hour

// CategoryFor maps an age to its timeline category. Negative ages count as RECENT.
func CategoryFor(age time.Duration) Category {
	switch {
	case age <= 7*day:
		return CategoryRecent
	case age <= 30*day:
		return CategoryLastMonth
	case age <= 90*day:
		return CategoryLastQuarter
	case age <= 365*day:
		return CategoryOlder
	default:
		return CategoryArchive
	}
}

// CategoryAt returns the category of an item created at createdAt, observed at now.
// A zero createdAt counts as now.
func CategoryAt(createdAt, now time.Time) Category {
	if createdAt.IsZero() {
		return CategoryRecent
	}
	return CategoryFor(now.Sub(createdAt))
}

// ParseCategory returns the category named by s, or false if s is not a category.
func ParseCategory(s string) (Category, bool) {
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Item is a single piece of ingested knowledge.
type Item struct {
	ID        string         `json:"id" yaml:"id"`
	Type      string         `json:"type" yaml:"type"`
	Content   string         `json:"content" yaml:"content"`
	Metadata  map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at" yaml:"created_at"`
	Author    string         `json:"author,omitempty" yaml:"author,omitempty"`
}

// Score is the importance assessment of one item. Scores are never mutated
// after creation; feedback only influences scores computed later.
type Score struct {
	DataID       string             `json:"data_id"`
	DataType     string             `json:"data_type"`
	OverallScore float64            `json:"overall_score"`
	Level        Level              `json:"importance_level"`
	Category     Category           `json:"timeline_category"`
	Confidence   float64            `json:"confidence"`
	Reasoning    []string           `json:"reasoning"`
	Factors      map[string]float64 `json:"scoring_factors"`
	ScoredAt     time.Time          `json:"scored_at"`
}

// ScoredItem pairs an item with its score.
type ScoredItem struct {
	Item  Item
	Score Score
}

// FeedbackEntry is one user judgement of an item's importance.
// DataType, Signature and PriorScore snapshot what was known about the item
// when the feedback arrived; they are empty for items never scored.
type FeedbackEntry struct {
	ProjectID     string    `json:"project_id"`
	DataID        string    `json:"data_id"`
	FeedbackScore float64   `json:"feedback_score"`
	UserID        string    `json:"user_id"`
	Timestamp     time.Time `json:"timestamp"`

	DataType   string  `json:"data_type,omitempty"`
	Signature  string  `json:"signature,omitempty"`
	PriorScore float64 `json:"prior_score,omitempty"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
