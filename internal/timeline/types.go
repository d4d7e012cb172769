// Package timeline persists scored knowledge items into storage tiers with
// retention deadlines and ages them out over time.
package timeline

import (
	"context"
	"errors"
	"time"

	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
)

// ErrInvalidProject is returned when a project id is empty.
var ErrInvalidProject = errors.New("project id is required")

// Tier is the storage class of an entry.
type Tier string

const (
	TierHot     Tier = "HOT"
	TierWarm    Tier = "WARM"
	TierCold    Tier = "COLD"
	TierArchive Tier = "ARCHIVE"
)

// Tiers lists every tier from hottest to coldest.
var Tiers = []Tier{TierHot, TierWarm, TierCold, TierArchive}

// Rank orders tiers so that colder tiers have a higher rank.
func (t Tier) Rank() int {
	switch t {
	case TierHot:
		return 0
	case TierWarm:
		return 1
	case TierCold:
		return 2
	default:
		return 3
	}
}

// Entry is a stored, scored item.
type Entry struct {
	EntryID           string        `json:"entry_id"`
	ProjectID         string        `json:"project_id"`
	Item              scoring.Item  `json:"item"`
	Score             scoring.Score `json:"score"`
	Tier              Tier          `json:"storage_tier"`
	RetentionDeadline time.Time     `json:"retention_deadline"`
	StoredAt          time.Time     `json:"stored_at"`
}

// Expired reports whether the entry is past its retention deadline at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.RetentionDeadline)
}

// EntryFilter selects live entries of one project.
type EntryFilter struct {
	// Now is the reference time; entries with a deadline at or before it are excluded.
	Now           time.Time
	MinImportance float64
	// CreatedFrom and CreatedBefore bound created_at when non-zero (inclusive, exclusive).
	CreatedFrom   time.Time
	CreatedBefore time.Time
	Limit         int
}

// EntryStat is the slice of an entry analytics needs.
type EntryStat struct {
	OverallScore float64
	Level        scoring.Level
	Tier         Tier
	CreatedAt    time.Time
}

// TierChange demotes one entry. It applies only if the entry is still in From.
type TierChange struct {
	EntryID string
	From    Tier
	To      Tier
}

// CleanupCounts is what a repository reports after a cleanup transaction.
type CleanupCounts struct {
	Deleted int
	Demoted int
}

// SearchHit is an entry matched by a keyword search.
type SearchHit struct {
	Entry Entry
	// Relevance is normalized to (0,1], the best hit scoring 1.
	Relevance float64
}

// Repository is the durable store behind the timeline.
type Repository interface {
	// GetEntryByItem returns the entry for an item, or nil if none exists.
	GetEntryByItem(ctx context.Context, projectID, itemID string) (*Entry, error)
	// UpsertEntry inserts or replaces the entry keyed by (project, item id).
	UpsertEntry(ctx context.Context, entry Entry) error
	// ListEntries returns live entries ordered by importance desc, created_at desc, entry id.
	ListEntries(ctx context.Context, projectID string, filter EntryFilter) ([]Entry, error)
	// EntryStats returns live entries stored at or after since.
	EntryStats(ctx context.Context, projectID string, since, now time.Time) ([]EntryStat, error)
	// ApplyCleanup deletes expired entries and applies demotions in one transaction.
	ApplyCleanup(ctx context.Context, projectID string, now time.Time, changes []TierChange) (CleanupCounts, error)
	// ListProjects returns every project with stored entries.
	ListProjects(ctx context.Context) ([]string, error)
}
