package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
	"github.com/josephgoksu/KnowledgeWing/internal/telemetry"
)

// DefaultAnalyticsDays is used when analytics are requested without a window.
const DefaultAnalyticsDays = 30

// Query filters RetrieveTimelineData. Zero values mean "no filter".
type Query struct {
	MinImportance float64
	Category      scoring.Category
	Limit         int
}

// StoredItem links an item to the entry that holds it.
type StoredItem struct {
	ItemID  string `json:"item_id"`
	EntryID string `json:"entry_id"`
	Tier    Tier   `json:"storage_tier"`
}

// ItemFailure reports an item that was not persisted.
type ItemFailure struct {
	ItemID string `json:"item_id"`
	Error  string `json:"error"`
}

// StoreResult reports per-item outcomes of a store call. An item is listed
// in Stored only after the repository accepted it.
type StoreResult struct {
	Stored   []StoredItem  `json:"stored"`
	Failures []ItemFailure `json:"failures,omitempty"`
}

// EntryIDs returns the ids of stored entries in input order.
func (r StoreResult) EntryIDs() []string {
	ids := make([]string, len(r.Stored))
	for i, s := range r.Stored {
		ids[i] = s.EntryID
	}
	return ids
}

// Analytics summarizes the live entries stored within a window.
type Analytics struct {
	ProjectID            string                   `json:"project_id"`
	DaysBack             int                      `json:"days_back"`
	TotalEntries         int                      `json:"total_entries"`
	AverageImportance    float64                  `json:"average_importance"`
	CategoryDistribution map[scoring.Category]int `json:"timeline_distribution"`
	LevelDistribution    map[scoring.Level]int    `json:"importance_distribution"`
	TierDistribution     map[Tier]int             `json:"tier_distribution"`
	GeneratedAt          time.Time                `json:"generated_at"`
}

// CleanupReport is the outcome of one project cleanup.
type CleanupReport struct {
	ProjectID string         `json:"project_id"`
	Deleted   int            `json:"deleted"`
	Demoted   int            `json:"demoted"`
	Planned   map[string]int `json:"planned_demotions,omitempty"`
	RanAt     time.Time      `json:"ran_at"`
}

// Store persists scored items with tiers and retention deadlines.
// Writes to one project are serialized.
type Store struct {
	repo    Repository
	scorer  *scoring.Scorer
	policy  RetentionPolicy
	metrics *telemetry.Metrics
	logger  *slog.Logger
	now     func() time.Time

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreClock sets the time source.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithStoreMetrics records store and cleanup metrics.
func WithStoreMetrics(m *telemetry.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithStoreLogger sets the logger.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a timeline store.
func NewStore(repo Repository, scorer *scoring.Scorer, policy RetentionPolicy, opts ...StoreOption) *Store {
	s := &Store{
		repo:   repo,
		scorer: scorer,
		policy: policy,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "timeline")
	}
	return s
}

// Policy returns the store's retention policy.
func (s *Store) Policy() RetentionPolicy { return s.policy }

// Repository returns the underlying repository.
func (s *Store) Repository() Repository { return s.repo }

func (s *Store) lock(projectID string) func() {
	s.locksMu.Lock()
	mu, ok := s.locks[projectID]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[projectID] = mu
	}
	s.locksMu.Unlock()
	mu.Lock()
	return mu.Unlock
}

// StoreTimelineData scores items and stores them. The returned error is set
// only when the whole call could not run; per-item failures are in the result.
func (s *Store) StoreTimelineData(ctx context.Context, projectID string, items []scoring.Item) (StoreResult, error) {
	if strings.TrimSpace(projectID) == "" {
		return StoreResult{}, ErrInvalidProject
	}

	// Items with a live entry keep their score; only the rest are scored.
	now := s.now().UTC()
	scored := make([]scoring.ScoredItem, len(items))
	var pending []scoring.Item
	var pendingIdx []int
	for i, item := range items {
		scored[i].Item = item
		if strings.TrimSpace(item.ID) != "" {
			existing, err := s.repo.GetEntryByItem(ctx, projectID, item.ID)
			if err != nil {
				return StoreResult{}, fmt.Errorf("look up stored item %s: %w", item.ID, err)
			}
			if existing != nil && !existing.Expired(now) {
				scored[i].Score = existing.Score
				continue
			}
		}
		pending = append(pending, item)
		pendingIdx = append(pendingIdx, i)
	}

	scores, err := s.scorer.ScoreBatch(ctx, projectID, pending)
	if err != nil {
		return StoreResult{}, err
	}
	for j, i := range pendingIdx {
		scored[i].Score = scores[j]
	}
	return s.StoreScored(ctx, projectID, scored)
}

// StoreScored stores items that already carry a score. Re-storing an item
// with a live entry updates its content in place and keeps its entry id,
// stored_at and score. An expired entry that was not yet cleaned up is
// replaced as if the item were new, keeping only its entry id.
func (s *Store) StoreScored(ctx context.Context, projectID string, items []scoring.ScoredItem) (StoreResult, error) {
	if strings.TrimSpace(projectID) == "" {
		return StoreResult{}, ErrInvalidProject
	}

	unlock := s.lock(projectID)
	defer unlock()

	var res StoreResult
	for _, si := range items {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		stored, err := s.storeOne(ctx, projectID, si)
		if err != nil {
			s.logger.Warn("failed to store timeline entry", "project", projectID, "item", si.Item.ID, "error", err)
			res.Failures = append(res.Failures, ItemFailure{ItemID: si.Item.ID, Error: err.Error()})
			continue
		}
		res.Stored = append(res.Stored, stored)
	}
	s.metrics.RecordStoreFailures(len(res.Failures))
	return res, nil
}

func (s *Store) storeOne(ctx context.Context, projectID string, si scoring.ScoredItem) (StoredItem, error) {
	if strings.TrimSpace(si.Item.ID) == "" {
		return StoredItem{}, fmt.Errorf("item id is required")
	}

	now := s.now().UTC()
	existing, err := s.repo.GetEntryByItem(ctx, projectID, si.Item.ID)
	if err != nil {
		return StoredItem{}, err
	}

	entry := Entry{
		EntryID:   uuid.NewString(),
		ProjectID: projectID,
		Item:      si.Item,
		Score:     si.Score,
		StoredAt:  now,
	}
	if existing != nil {
		entry.EntryID = existing.EntryID
		if !existing.Expired(now) {
			entry.StoredAt = existing.StoredAt
			entry.Score = existing.Score
			if entry.Item.CreatedAt.IsZero() {
				entry.Item.CreatedAt = existing.Item.CreatedAt
			}
		}
	}
	if entry.Item.CreatedAt.IsZero() {
		entry.Item.CreatedAt = now
	}
	if entry.Score.ScoredAt.IsZero() {
		entry.Score.ScoredAt = now
	}
	entry.Score.Category = scoring.CategoryAt(entry.Item.CreatedAt, now)
	entry.Tier = s.policy.Tier(entry.Score.Level, entry.Score.Category)
	entry.RetentionDeadline = s.policy.Deadline(entry.Score.Level, entry.StoredAt)
	if !entry.RetentionDeadline.After(now) {
		return StoredItem{}, fmt.Errorf("item %s would expire on store (deadline %s)", si.Item.ID, entry.RetentionDeadline.Format(time.RFC3339))
	}

	if err := s.repo.UpsertEntry(ctx, entry); err != nil {
		return StoredItem{}, err
	}
	return StoredItem{ItemID: si.Item.ID, EntryID: entry.EntryID, Tier: entry.Tier}, nil
}

// RetrieveTimelineData returns live entries matching q, ordered by importance
// desc, created_at desc, entry id. Categories are computed against now.
func (s *Store) RetrieveTimelineData(ctx context.Context, projectID string, q Query) ([]Entry, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, ErrInvalidProject
	}
	now := s.now().UTC()
	filter := EntryFilter{Now: now, MinImportance: q.MinImportance, Limit: q.Limit}
	if q.Category != "" {
		if _, ok := scoring.ParseCategory(string(q.Category)); !ok {
			return nil, fmt.Errorf("unknown timeline category %q", q.Category)
		}
		filter.CreatedFrom, filter.CreatedBefore = categoryBounds(q.Category, now)
	}

	entries, err := s.repo.ListEntries(ctx, projectID, filter)
	if err != nil {
		return nil, fmt.Errorf("retrieve timeline data: %w", err)
	}
	for i := range entries {
		entries[i].Score.Category = scoring.CategoryAt(entries[i].Item.CreatedAt, now)
	}
	return entries, nil
}

// categoryBounds converts a category into a created_at range [from, before).
func categoryBounds(c scoring.Category, now time.Time) (from, before time.Time) {
	ago := func(days int) time.Time { return now.Add(-time.Duration(days) * 24 * time.Hour) }
	switch c {
	case scoring.CategoryRecent:
		return ago(7), time.Time{}
	case scoring.CategoryLastMonth:
		return ago(30), ago(7)
	case scoring.CategoryLastQuarter:
		return ago(90), ago(30)
	case scoring.CategoryOlder:
		return ago(365), ago(90)
	default:
		return time.Time{}, ago(365)
	}
}

// GetTimelineAnalytics summarizes live entries stored in the last daysBack days.
func (s *Store) GetTimelineAnalytics(ctx context.Context, projectID string, daysBack int) (Analytics, error) {
	if strings.TrimSpace(projectID) == "" {
		return Analytics{}, ErrInvalidProject
	}
	if daysBack <= 0 {
		daysBack = DefaultAnalyticsDays
	}
	now := s.now().UTC()
	since := now.Add(-time.Duration(daysBack) * 24 * time.Hour)

	stats, err := s.repo.EntryStats(ctx, projectID, since, now)
	if err != nil {
		return Analytics{}, fmt.Errorf("timeline analytics: %w", err)
	}

	a := Analytics{
		ProjectID:            projectID,
		DaysBack:             daysBack,
		TotalEntries:         len(stats),
		CategoryDistribution: make(map[scoring.Category]int),
		LevelDistribution:    make(map[scoring.Level]int),
		TierDistribution:     make(map[Tier]int),
		GeneratedAt:          now,
	}
	total := 0.0
	for _, st := range stats {
		total += st.OverallScore
		a.CategoryDistribution[scoring.CategoryAt(st.CreatedAt, now)]++
		a.LevelDistribution[st.Level]++
		a.TierDistribution[st.Tier]++
	}
	if len(stats) > 0 {
		a.AverageImportance = total / float64(len(stats))
	}
	return a, nil
}

// CleanupExpiredData deletes entries past their deadline and demotes the
// rest to the tier their current age calls for. Tiers never move hotter.
func (s *Store) CleanupExpiredData(ctx context.Context, projectID string) (CleanupReport, error) {
	if strings.TrimSpace(projectID) == "" {
		return CleanupReport{}, ErrInvalidProject
	}

	unlock := s.lock(projectID)
	defer unlock()

	now := s.now().UTC()
	report := CleanupReport{ProjectID: projectID, RanAt: now}

	live, err := s.repo.ListEntries(ctx, projectID, EntryFilter{Now: now})
	if err != nil {
		return report, fmt.Errorf("list entries for cleanup: %w", err)
	}

	var changes []TierChange
	for _, e := range live {
		target := s.policy.Tier(e.Score.Level, scoring.CategoryAt(e.Item.CreatedAt, now))
		if target.Rank() <= e.Tier.Rank() {
			continue
		}
		changes = append(changes, TierChange{EntryID: e.EntryID, From: e.Tier, To: target})
		if report.Planned == nil {
			report.Planned = make(map[string]int)
		}
		report.Planned[string(e.Tier)+"->"+string(target)]++
	}

	counts, err := s.repo.ApplyCleanup(ctx, projectID, now, changes)
	if err != nil {
		return report, fmt.Errorf("apply cleanup: %w", err)
	}
	report.Deleted = counts.Deleted
	report.Demoted = counts.Demoted
	s.metrics.RecordCleanup(counts.Deleted, counts.Demoted)

	s.logger.Info("timeline cleanup", "project", projectID, "deleted", counts.Deleted, "demoted", counts.Demoted)
	return report, nil
}
