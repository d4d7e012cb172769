package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josephgoksu/KnowledgeWing/internal/config"
	"github.com/josephgoksu/KnowledgeWing/internal/dedup"
	"github.com/josephgoksu/KnowledgeWing/internal/memory"
	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
	"github.com/josephgoksu/KnowledgeWing/internal/timeline"
)

const securityIssue = "Critical security vulnerability: SQL injection in the login endpoint allows authentication bypass. " +
	"Attackers can read every user credential. Needs an urgent hotfix before the next release."

const onboardingDoc = "Onboarding guide for new engineers. Clone the monorepo, install the toolchain with the bootstrap script, " +
	"then run make dev to start the local stack. Editor settings live in the shared config folder. " +
	"Ask in the team channel if the setup script fails on your machine. Weekly architecture notes are linked from the wiki home page."

// recordingIndexer captures what the coordinator hands off.
type recordingIndexer struct {
	mu         sync.Mutex
	namespaces []string
	items      []scoring.ScoredItem
	err        error
}

func (r *recordingIndexer) Index(_ context.Context, namespace string, items []scoring.ScoredItem) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.namespaces = append(r.namespaces, namespace)
	r.items = append(r.items, items...)
	return len(items), nil
}

type ingestFixture struct {
	repo        *memory.SQLStore
	store       *timeline.Store
	coordinator *Coordinator
}

func newIngestFixture(t *testing.T, opts ...CoordinatorOption) ingestFixture {
	t.Helper()
	repo, err := memory.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return newIngestFixtureOn(repo, opts...)
}

func newIngestFixtureOn(repo *memory.SQLStore, opts ...CoordinatorOption) ingestFixture {
	scorer := scoring.NewScorer(config.DefaultScoringConfig())
	store := timeline.NewStore(repo, scorer, timeline.DefaultRetentionPolicy())
	c := NewCoordinator(dedup.NewDetector(config.DefaultDedupConfig(), nil), scorer, store, config.DefaultIngestConfig(), opts...)
	return ingestFixture{repo: repo, store: store, coordinator: c}
}

func scenarioItems() []scoring.Item {
	now := time.Now().UTC()
	items := []scoring.Item{{
		ID:        "sec-1",
		Type:      "issue",
		Content:   securityIssue,
		Metadata:  map[string]any{"comments": 8, "reactions": 5, "participants": 4},
		CreatedAt: now.Add(-time.Hour),
	}}
	for i := 1; i <= 5; i++ {
		items = append(items, scoring.Item{
			ID:        fmt.Sprintf("doc-%d", i),
			Type:      "document",
			Content:   onboardingDoc,
			CreatedAt: now.Add(-time.Hour),
		})
	}
	items = append(items, scoring.Item{ID: "c-1", Type: "comment", Content: "lgtm", CreatedAt: now.Add(-time.Hour)})
	return items
}

func assertReconciles(t *testing.T, s *IngestSummary) {
	t.Helper()
	assert.Equal(t, s.TotalInputItems, s.UniqueItems+s.DuplicatesRemoved)
	assert.LessOrEqual(t, s.ItemsStored, s.ItemsAboveThreshold)
	assert.LessOrEqual(t, s.ItemsAboveThreshold, s.ItemsScored)
	assert.LessOrEqual(t, s.ItemsScored, s.UniqueItems)

	levels, categories := 0, 0
	for _, n := range s.ImportanceDistribution {
		levels += n
	}
	for _, n := range s.TimelineDistribution {
		categories += n
	}
	assert.Equal(t, s.ItemsScored, levels)
	assert.Equal(t, s.ItemsScored, categories)
	assert.Len(t, s.EntryIDs, s.ItemsStored)
}

func TestProcess_DedupScoreThresholdStore(t *testing.T) {
	ctx := context.Background()
	idx := &recordingIndexer{}
	f := newIngestFixture(t, WithIndexer(idx))

	s, err := f.coordinator.Process(ctx, "acme", scenarioItems())
	require.NoError(t, err)
	assertReconciles(t, s)

	assert.Equal(t, IngestSuccess, s.Status)
	assert.Equal(t, 7, s.TotalInputItems)
	assert.Equal(t, 3, s.UniqueItems)
	assert.Equal(t, 4, s.DuplicatesRemoved)
	assert.Equal(t, dedup.Groups{"doc-1": {"doc-2", "doc-3", "doc-4", "doc-5"}}, s.DuplicateGroups)
	assert.Equal(t, 3, s.ItemsScored)
	assert.Equal(t, 2, s.ItemsAboveThreshold)
	assert.Equal(t, 2, s.ItemsStored)
	assert.Equal(t, 2, s.DocumentsCreated)
	assert.Equal(t, 3, s.TimelineDistribution[scoring.CategoryRecent])
	assert.Equal(t, 1, s.ImportanceDistribution[scoring.LevelNoise])
	assert.Equal(t, 0.3, s.ImportanceThreshold)
	assert.Empty(t, s.FailedItems)

	sec, err := f.repo.GetEntryByItem(ctx, "acme", "sec-1")
	require.NoError(t, err)
	require.NotNil(t, sec)
	assert.Contains(t, []scoring.Level{scoring.LevelHigh, scoring.LevelCritical}, sec.Score.Level)

	comment, err := f.repo.GetEntryByItem(ctx, "acme", "c-1")
	require.NoError(t, err)
	assert.Nil(t, comment, "below-threshold items are not stored")

	dup, err := f.repo.GetEntryByItem(ctx, "acme", "doc-3")
	require.NoError(t, err)
	assert.Nil(t, dup, "duplicates are not stored")

	assert.Equal(t, []string{"project:acme"}, idx.namespaces)
	indexed := make([]string, 0, len(idx.items))
	for _, si := range idx.items {
		indexed = append(indexed, si.Item.ID)
	}
	assert.ElementsMatch(t, []string{"sec-1", "doc-1"}, indexed)
}

func TestProcess_NothingAboveThreshold(t *testing.T) {
	idx := &recordingIndexer{}
	f := newIngestFixture(t, WithIndexer(idx))

	s, err := f.coordinator.Process(context.Background(), "acme", []scoring.Item{
		{ID: "c-1", Type: "comment", Content: "lgtm"},
		{ID: "c-2", Type: "comment", Content: "+1"},
	})
	require.NoError(t, err)
	assertReconciles(t, s)
	assert.Equal(t, IngestSuccess, s.Status)
	assert.Zero(t, s.ItemsStored)
	assert.Empty(t, idx.items)
}

func TestProcess_RepeatedIDStoresOnce(t *testing.T) {
	ctx := context.Background()
	f := newIngestFixture(t)
	now := time.Now().UTC()

	items := []scoring.Item{
		{ID: "x", Type: "issue", Content: securityIssue, CreatedAt: now.Add(-time.Hour),
			Metadata: map[string]any{"comments": 8, "reactions": 5, "participants": 4}},
		{ID: "x", Type: "issue", Content: onboardingDoc, CreatedAt: now.Add(-time.Hour)},
	}
	summary, err := f.coordinator.Process(ctx, "acme", items)
	require.NoError(t, err)
	assertReconciles(t, summary)

	assert.Equal(t, IngestSuccess, summary.Status)
	assert.Equal(t, 1, summary.UniqueItems)
	assert.Equal(t, 1, summary.DuplicatesRemoved)
	assert.Equal(t, 1, summary.ItemsStored)
	assert.Len(t, summary.EntryIDs, 1)

	entries, err := f.store.RetrieveTimelineData(ctx, "acme", timeline.Query{})
	require.NoError(t, err)
	require.Len(t, entries, summary.ItemsStored)
	assert.Equal(t, securityIssue, entries[0].Item.Content, "the first item with an id wins")
}

func TestProcess_EmptyBatch(t *testing.T) {
	f := newIngestFixture(t)
	s, err := f.coordinator.Process(context.Background(), "acme", nil)
	require.NoError(t, err)
	assert.Equal(t, IngestSuccess, s.Status)
	assert.Zero(t, s.TotalInputItems)
	assert.Zero(t, s.AverageImportanceScore)
}

func TestProcess_IndexingFailureIsPartial(t *testing.T) {
	idx := &recordingIndexer{err: errors.New("vector store offline")}
	f := newIngestFixture(t, WithIndexer(idx))

	s, err := f.coordinator.Process(context.Background(), "acme", scenarioItems())
	require.NoError(t, err)
	assertReconciles(t, s)
	assert.Equal(t, IngestPartial, s.Status)
	assert.Equal(t, 2, s.ItemsStored, "stored items stay stored")
	assert.Zero(t, s.DocumentsCreated)
	assert.Contains(t, s.IndexingError, "vector store offline")
}

func TestProcess_IndexingDisabled(t *testing.T) {
	repo, err := memory.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	idx := &recordingIndexer{}
	scorer := scoring.NewScorer(config.DefaultScoringConfig())
	store := timeline.NewStore(repo, scorer, timeline.DefaultRetentionPolicy())
	cfg := config.DefaultIngestConfig()
	cfg.IndexingEnabled = false
	c := NewCoordinator(dedup.NewDetector(config.DefaultDedupConfig(), nil), scorer, store, cfg, WithIndexer(idx))

	s, err := c.Process(context.Background(), "acme", scenarioItems())
	require.NoError(t, err)
	assert.Equal(t, IngestSuccess, s.Status)
	assert.Zero(t, s.DocumentsCreated)
	assert.Empty(t, idx.items)
}

func TestProcess_PerItemStoreFailureIsPartial(t *testing.T) {
	f := newIngestFixture(t)
	items := []scoring.Item{
		{ID: "sec-1", Type: "issue", Content: securityIssue, CreatedAt: time.Now().Add(-time.Hour)},
		{ID: "", Type: "document", Content: onboardingDoc + " Updated for the new build system.", CreatedAt: time.Now()},
	}

	s, err := f.coordinator.Process(context.Background(), "acme", items)
	require.NoError(t, err)
	assertReconciles(t, s)
	assert.Equal(t, IngestPartial, s.Status)
	assert.Equal(t, 2, s.ItemsAboveThreshold)
	assert.Equal(t, 1, s.ItemsStored)
	require.Len(t, s.FailedItems, 1)
	assert.Contains(t, s.FailedItems[0].Error, "item id is required")
}

func TestProcess_RepeatedIngestKeepsEntries(t *testing.T) {
	ctx := context.Background()
	f := newIngestFixture(t)

	first, err := f.coordinator.Process(ctx, "acme", scenarioItems())
	require.NoError(t, err)
	second, err := f.coordinator.Process(ctx, "acme", scenarioItems())
	require.NoError(t, err)

	assert.ElementsMatch(t, first.EntryIDs, second.EntryIDs)
	entries, err := f.store.RetrieveTimelineData(ctx, "acme", timeline.Query{})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestProcess_InvalidProject(t *testing.T) {
	f := newIngestFixture(t)
	_, err := f.coordinator.Process(context.Background(), " ", scenarioItems())
	assert.ErrorIs(t, err, timeline.ErrInvalidProject)
}

func TestFeedback_UsesStoredItemAcrossRuns(t *testing.T) {
	ctx := context.Background()
	f := newIngestFixture(t)
	_, err := f.coordinator.Process(ctx, "acme", scenarioItems())
	require.NoError(t, err)

	// A fresh coordinator has never scored doc-1 in memory.
	restarted := newIngestFixtureOn(f.repo)
	entry, err := restarted.coordinator.Feedback(ctx, "acme", "doc-1", 1.0, "alice")
	require.NoError(t, err)
	assert.Equal(t, "document", entry.DataType)
	assert.Equal(t, "alice", entry.UserID)
	assert.Positive(t, restarted.coordinator.scorer.BiasTable("acme")["type:document"])
}

func TestFeedback_Validation(t *testing.T) {
	f := newIngestFixture(t)
	_, err := f.coordinator.Feedback(context.Background(), "acme", "doc-1", 1.5, "alice")
	assert.ErrorIs(t, err, scoring.ErrInvalidFeedback)

	_, err = f.coordinator.Feedback(context.Background(), "", "doc-1", 0.5, "alice")
	assert.ErrorIs(t, err, timeline.ErrInvalidProject)
}
