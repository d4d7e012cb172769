package scoring

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
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestScorer(opts ...Option) *Scorer {
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewScorer(config.DefaultScoringConfig(), opts...)
}

const securityIssue = "Critical security vulnerability: SQL injection in the login endpoint allows authentication bypass. " +
	"Attackers can read every user credential. Needs an urgent hotfix before the next release."

const onboardingDoc = "Onboarding guide for new engineers. Clone the monorepo, install the toolchain with the bootstrap script, " +
	"then run make dev to start the local stack. Editor settings live in the shared config folder. " +
	"Ask in the team channel if the setup script fails on your machine. Weekly architecture notes are linked from the wiki home page."

func TestLevelFor_Thresholds(t *testing.T) {
	tests := []struct {
		score float64
		want  Level
	}{
		{1.0, LevelCritical},
		{0.8, LevelCritical},
		{0.79, LevelHigh},
		{0.6, LevelHigh},
		{0.4, LevelMedium},
		{0.2, LevelLow},
		{0.19, LevelNoise},
		{0, LevelNoise},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.score), "score %v", tt.score)
	}
}

func TestLevelFor_Monotonic(t *testing.T) {
	prev := LevelFor(0).Rank()
	for i := 1; i <= 1000; i++ {
		r := LevelFor(float64(i) / 1000).Rank()
		assert.GreaterOrEqual(t, r, prev)
		prev = r
	}
}

func TestCategoryAt(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want Category
	}{
		{0, CategoryRecent},
		{7 * day, CategoryRecent},
		{8 * day, CategoryLastMonth},
		{30 * day, CategoryLastMonth},
		{31 * day, CategoryLastQuarter},
		{90 * day, CategoryLastQuarter},
		{200 * day, CategoryOlder},
		{366 * day, CategoryArchive},
		{-2 * day, CategoryRecent},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CategoryAt(fixedNow.Add(-tt.age), fixedNow), "age %v", tt.age)
	}
	assert.Equal(t, CategoryRecent, CategoryAt(time.Time{}, fixedNow), "zero created_at counts as now")
}

func TestScoreItem_Bounded(t *testing.T) {
	s := newTestScorer()
	items := []Item{
		{ID: "a", Type: "security_issue", Content: securityIssue + securityIssue + securityIssue,
			Metadata: map[string]any{"severity": "critical", "comments": 1000, "reactions": 500, "views": 100000}, CreatedAt: fixedNow},
		{ID: "b", Type: "comment", Content: "ok"},
		{ID: "c", Type: "mystery", Content: onboardingDoc, CreatedAt: fixedNow.Add(-1000 * day)},
		{ID: "d", Type: "issue", Content: onboardingDoc, Metadata: map[string]any{"comments": -50}},
	}
	for _, item := range items {
		score := s.ScoreItem("p1", item)
		assert.GreaterOrEqual(t, score.OverallScore, 0.0, item.ID)
		assert.LessOrEqual(t, score.OverallScore, 1.0, item.ID)
		assert.Equal(t, LevelFor(score.OverallScore), score.Level, item.ID)
		assert.GreaterOrEqual(t, score.Confidence, 0.0)
		assert.LessOrEqual(t, score.Confidence, 1.0)
	}
}

func TestScoreItem_MissingDataIsNoise(t *testing.T) {
	s := newTestScorer()

	for _, item := range []Item{
		{ID: "no-content", Type: "issue"},
		{ID: "no-type", Content: securityIssue},
		{ID: "blank", Type: "  ", Content: " \n "},
	} {
		score := s.ScoreItem("p1", item)
		assert.Equal(t, LevelNoise, score.Level, item.ID)
		assert.LessOrEqual(t, score.Confidence, 0.2, item.ID)
		require.NotEmpty(t, score.Reasoning, item.ID)
		assert.Contains(t, score.Reasoning[0], "missing")
	}
}

func TestScoreItem_SecurityIssueIsHighOrCritical(t *testing.T) {
	s := newTestScorer()
	score := s.ScoreItem("p1", Item{
		ID:        "sec-1",
		Type:      "issue",
		Content:   securityIssue,
		Metadata:  map[string]any{"comments": 8, "reactions": 5, "participants": 4},
		CreatedAt: fixedNow.Add(-time.Hour),
	})

	assert.GreaterOrEqual(t, score.OverallScore, 0.6)
	assert.Contains(t, []Level{LevelHigh, LevelCritical}, score.Level)
	assert.Equal(t, CategoryRecent, score.Category)
	assert.Equal(t, 1.0, score.Confidence, "all five signals had data")
	assert.Greater(t, score.Factors[FactorKeyword], 0.25)
}

func TestScoreItem_TrivialCommentIsNoise(t *testing.T) {
	s := newTestScorer()
	score := s.ScoreItem("p1", Item{ID: "c1", Type: "comment", Content: "lgtm", CreatedAt: fixedNow})

	assert.Equal(t, LevelNoise, score.Level)
	assert.Less(t, score.OverallScore, 0.3)
	assert.Less(t, score.Factors[FactorBrevity], 0.0, "short content is penalized")
}

func TestScoreItem_DocumentIsMedium(t *testing.T) {
	s := newTestScorer()
	score := s.ScoreItem("p1", Item{ID: "d1", Type: "document", Content: onboardingDoc, CreatedAt: fixedNow})

	assert.Equal(t, LevelMedium, score.Level)
	assert.GreaterOrEqual(t, score.OverallScore, 0.3)
}

func TestScoreItem_MetadataSeverityRaisesKeywordSignal(t *testing.T) {
	s := newTestScorer()
	plain := s.ScoreItem("p1", Item{ID: "x", Type: "issue", Content: onboardingDoc, CreatedAt: fixedNow})
	labelled := s.ScoreItem("p1", Item{ID: "y", Type: "issue", Content: onboardingDoc, CreatedAt: fixedNow,
		Metadata: map[string]any{"labels": []any{"docs", "Security"}}})

	assert.Greater(t, labelled.OverallScore, plain.OverallScore)
	assert.Equal(t, 0.30, labelled.Factors[FactorKeyword])
}

func TestScoreItem_Idempotent(t *testing.T) {
	s := newTestScorer()
	item := Item{ID: "i1", Type: "code", Content: onboardingDoc, CreatedAt: fixedNow.Add(-10 * day),
		Metadata: map[string]any{"comments": "3"}}

	first := s.ScoreItem("p1", item)
	second := s.ScoreItem("p1", item)
	assert.Equal(t, first.OverallScore, second.OverallScore)
	assert.Equal(t, first.Reasoning, second.Reasoning)
}

func TestScoreItem_RecencyDecays(t *testing.T) {
	s := newTestScorer()
	fresh := s.ScoreItem("p1", Item{ID: "f", Type: "document", Content: onboardingDoc, CreatedAt: fixedNow})
	old := s.ScoreItem("p1", Item{ID: "o", Type: "document", Content: onboardingDoc, CreatedAt: fixedNow.Add(-30 * day)})

	assert.InDelta(t, fresh.Factors[FactorRecency]/2, old.Factors[FactorRecency], 1e-9, "30-day half-life")
	assert.Equal(t, CategoryLastMonth, old.Category)
}

func TestScoreBatch_PreservesOrder(t *testing.T) {
	s := newTestScorer()
	var items []Item
	for i := 0; i < 50; i++ {
		items = append(items, Item{ID: fmt.Sprintf("item-%02d", i), Type: "document", Content: fmt.Sprintf("%s %d", onboardingDoc, i)})
	}

	scores, err := s.ScoreBatch(context.Background(), "p1", items)
	require.NoError(t, err)
	require.Len(t, scores, len(items))
	for i, score := range scores {
		assert.Equal(t, items[i].ID, score.DataID)
	}
}

func TestScoreBatch_CanceledContext(t *testing.T) {
	s := newTestScorer()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.ScoreBatch(ctx, "p1", []Item{{ID: "a", Type: "code", Content: onboardingDoc}})
	assert.ErrorIs(t, err, context.Canceled)
}

type constantStrategy struct{ value float64 }

func (c constantStrategy) Evaluate(Item, time.Time) Evaluation {
	return Evaluation{Score: c.value, Factors: map[string]float64{"constant": c.value}, Signals: 1}
}

func TestScorer_PluggableStrategy(t *testing.T) {
	s := newTestScorer(WithStrategy(constantStrategy{value: 0.65}))
	score := s.ScoreItem("p1", Item{ID: "a", Type: "code", Content: "func main() {}"})

	assert.Equal(t, 0.65, score.OverallScore)
	assert.Equal(t, LevelHigh, score.Level)
	assert.InDelta(t, 0.36, score.Confidence, 1e-9)
}

func TestLearnFromFeedback_BiasesSimilarItems(t *testing.T) {
	s := newTestScorer()
	item := Item{ID: "doc-1", Type: "document", Content: onboardingDoc, CreatedAt: fixedNow}
	before := s.ScoreItem("p1", item)

	entry, err := s.LearnFromFeedback(context.Background(), "p1", "doc-1", 1.0, "alice")
	require.NoError(t, err)
	assert.Equal(t, "document", entry.DataType)
	assert.Equal(t, before.OverallScore, entry.PriorScore)

	table := s.BiasTable("p1")
	assert.Positive(t, table["type:document"])
	assert.Contains(t, table, "sig:document:"+Signature(onboardingDoc))

	similar := Item{ID: "doc-2", Type: "document", Content: onboardingDoc, CreatedAt: fixedNow}
	after := s.ScoreItem("p1", similar)
	assert.Greater(t, after.OverallScore, before.OverallScore)
	assert.LessOrEqual(t, after.OverallScore-before.OverallScore, config.DefaultScoringConfig().MaxBias+1e-9)

	// Past scores are never rewritten and other projects are unaffected.
	assert.Equal(t, before.OverallScore, s.ScoreItem("p2", item).OverallScore)
}

func TestLearnFromFeedback_UnknownItemAddsNoBias(t *testing.T) {
	s := newTestScorer()
	_, err := s.LearnFromFeedback(context.Background(), "p1", "never-scored", 0.0, "bob")
	require.NoError(t, err)

	assert.Len(t, s.FeedbackLog("p1"), 1)
	assert.Empty(t, s.BiasTable("p1"))
}

func TestLearnFromFeedback_RejectsOutOfRange(t *testing.T) {
	s := newTestScorer()
	_, err := s.LearnFromFeedback(context.Background(), "p1", "x", 1.5, "bob")
	assert.ErrorIs(t, err, ErrInvalidFeedback)
	assert.Empty(t, s.FeedbackLog("p1"))
}

func TestDeriveBias_Recomputable(t *testing.T) {
	log := []FeedbackEntry{
		{DataID: "a", DataType: "issue", Signature: "x", PriorScore: 0.5, FeedbackScore: 0.7},
		{DataID: "b", DataType: "issue", Signature: "y", PriorScore: 0.5, FeedbackScore: 0.6},
		{DataID: "c", FeedbackScore: 1.0},
	}
	bias := DeriveBias(log, 0.5, 0.15)

	assert.InDelta(t, 0.075, bias["type:issue"], 1e-9)
	assert.InDelta(t, 0.1, bias["sig:issue:x"], 1e-9)
	assert.InDelta(t, 0.05, bias["sig:issue:y"], 1e-9)
	assert.Len(t, bias, 3)
	assert.Equal(t, bias, DeriveBias(log, 0.5, 0.15))

	clamped := DeriveBias([]FeedbackEntry{{DataType: "issue", PriorScore: 0, FeedbackScore: 1}}, 1, 0.15)
	assert.Equal(t, 0.15, clamped["type:issue"])
}

type memJournal struct {
	mu      sync.Mutex
	entries []FeedbackEntry
	err     error
}

func (m *memJournal) AppendFeedback(_ context.Context, e FeedbackEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memJournal) ListFeedback(_ context.Context, projectID string) ([]FeedbackEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []FeedbackEntry
	for _, e := range m.entries {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestRestoreFeedback_RebuildsBias(t *testing.T) {
	journal := &memJournal{}
	s1 := newTestScorer(WithJournal(journal))
	s1.ScoreItem("p1", Item{ID: "doc-1", Type: "document", Content: onboardingDoc})
	_, err := s1.LearnFromFeedback(context.Background(), "p1", "doc-1", 0.0, "alice")
	require.NoError(t, err)

	s2 := newTestScorer(WithJournal(journal))
	require.NoError(t, s2.RestoreFeedback(context.Background(), "p1"))
	assert.Equal(t, s1.BiasTable("p1"), s2.BiasTable("p1"))
	assert.Negative(t, s2.BiasTable("p1")["type:document"])
}

func TestLearnFromFeedback_JournalFailureKeepsLogUnchanged(t *testing.T) {
	journal := &memJournal{err: errors.New("disk full")}
	s := newTestScorer(WithJournal(journal))

	_, err := s.LearnFromFeedback(context.Background(), "p1", "x", 0.5, "bob")
	require.Error(t, err)
	assert.Empty(t, s.FeedbackLog("p1"))
}

func TestLearnFromFeedback_ConcurrentAppends(t *testing.T) {
	s := newTestScorer()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.LearnFromFeedback(context.Background(), "p1", fmt.Sprintf("d%d", i), 0.5, "u")
		}()
	}
	wg.Wait()
	assert.Len(t, s.FeedbackLog("p1"), 100)
}

func TestOrganizeByTimeline(t *testing.T) {
	scores := []Score{
		{DataID: "a", OverallScore: 0.5, Category: CategoryRecent},
		{DataID: "b", OverallScore: 0.9, Category: CategoryRecent},
		{DataID: "c", OverallScore: 0.1, Category: CategoryRecent},
		{DataID: "e", OverallScore: 0.7, Category: CategoryOlder},
		{DataID: "d", OverallScore: 0.7, Category: CategoryOlder},
	}

	buckets := OrganizeByTimeline(scores, 0.3)

	require.Len(t, buckets[CategoryRecent], 2)
	assert.Equal(t, "b", buckets[CategoryRecent][0].DataID)
	assert.Equal(t, "a", buckets[CategoryRecent][1].DataID)
	assert.Equal(t, []string{"d", "e"}, []string{buckets[CategoryOlder][0].DataID, buckets[CategoryOlder][1].DataID})
	assert.NotContains(t, buckets, CategoryArchive)
}
