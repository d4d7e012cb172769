package scoring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/josephgoksu/KnowledgeWing/internal/config"
)

// ErrInvalidFeedback is returned for feedback scores outside [0,1].
var ErrInvalidFeedback = errors.New("feedback score must be within [0,1]")

// missingDataConfidence is the confidence of scores for items without content or type.
const missingDataConfidence = 0.1

// Scorer rates items with a Strategy and applies per-project feedback bias.
type Scorer struct {
	cfg      config.ScoringConfig
	strategy Strategy
	registry *FeedbackRegistry
	journal  FeedbackJournal
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithStrategy replaces the default heuristic strategy.
func WithStrategy(strategy Strategy) Option {
	return func(s *Scorer) { s.strategy = strategy }
}

// WithClock sets the time source used for recency and categories.
func WithClock(now func() time.Time) Option {
	return func(s *Scorer) { s.now = now }
}

// WithJournal makes the feedback log durable.
func WithJournal(journal FeedbackJournal) Option {
	return func(s *Scorer) { s.journal = journal }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scorer) { s.logger = logger }
}

// NewScorer creates a scorer using the heuristic strategy unless overridden.
func NewScorer(cfg config.ScoringConfig, opts ...Option) *Scorer {
	s := &Scorer{
		cfg:      cfg,
		strategy: NewHeuristicStrategy(cfg),
		registry: NewFeedbackRegistry(cfg.BiasLearningRate, cfg.MaxBias),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "scoring")
	}
	if s.cfg.Workers <= 0 {
		s.cfg.Workers = 1
	}
	return s
}

// Now returns the scorer's current time.
func (s *Scorer) Now() time.Time { return s.now() }

// ScoreItem scores a single item. It never fails: items without content or
// type resolve to a low-confidence NOISE score.
func (s *Scorer) ScoreItem(projectID string, item Item) Score {
	now := s.now()
	score := Score{
		DataID:   item.ID,
		DataType: item.Type,
		Category: CategoryAt(item.CreatedAt, now),
		Factors:  map[string]float64{},
		ScoredAt: now,
	}

	var missing []string
	if strings.TrimSpace(item.Content) == "" {
		missing = append(missing, "content")
	}
	if strings.TrimSpace(item.Type) == "" {
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		score.Level = LevelNoise
		score.Confidence = missingDataConfidence
		score.Reasoning = []string{"missing " + strings.Join(missing, " and ") + ": scored as noise"}
		return score
	}

	ev := s.strategy.Evaluate(item, now)
	raw := clamp01(ev.Score)
	if math.IsNaN(raw) {
		raw = 0
	}
	score.Factors = ev.Factors
	score.Reasoning = ev.Reasoning
	score.Confidence = math.Min(1, 0.2+0.16*float64(ev.Signals))

	signature := Signature(item.Content)
	if bias := s.registry.biasFor(projectID, item.Type, signature); bias != 0 {
		score.Factors[FactorBias] = bias
		score.Reasoning = append(score.Reasoning, fmt.Sprintf("feedback bias (%+.3f)", bias))
		raw = clamp01(raw + bias)
	}
	score.OverallScore = raw
	score.Level = LevelFor(raw)

	if item.ID != "" {
		s.registry.remember(projectID, item.ID, seenItem{
			dataType:  item.Type,
			signature: signature,
			rawScore:  clamp01(ev.Score),
		})
	}
	return score
}

// ScoreBatch scores items in parallel. The result is index-aligned with items.
func (s *Scorer) ScoreBatch(ctx context.Context, projectID string, items []Item) ([]Score, error) {
	scores := make([]Score, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scores[i] = s.ScoreItem(projectID, items[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("score batch: %w", err)
	}
	return scores, nil
}

// LearnFromFeedback appends a feedback entry to the project's log. Feedback
// for items this scorer has never seen is recorded but adds no bias.
func (s *Scorer) LearnFromFeedback(ctx context.Context, projectID, dataID string, feedbackScore float64, userID string) (FeedbackEntry, error) {
	if math.IsNaN(feedbackScore) || feedbackScore < 0 || feedbackScore > 1 {
		return FeedbackEntry{}, fmt.Errorf("%w: got %v", ErrInvalidFeedback, feedbackScore)
	}
	entry := FeedbackEntry{
		ProjectID:     projectID,
		DataID:        dataID,
		FeedbackScore: feedbackScore,
		UserID:        userID,
		Timestamp:     s.now().UTC(),
	}
	if seen, ok := s.registry.lookup(projectID, dataID); ok {
		entry.DataType = seen.dataType
		entry.Signature = seen.signature
		entry.PriorScore = seen.rawScore
	} else {
		s.logger.Debug("feedback for unscored item", "project", projectID, "data_id", dataID)
	}

	if s.journal != nil {
		if err := s.journal.AppendFeedback(ctx, entry); err != nil {
			return FeedbackEntry{}, fmt.Errorf("append feedback: %w", err)
		}
	}
	s.registry.append(projectID, entry)
	return entry, nil
}

// RestoreFeedback reloads the project's log from the journal and rederives its bias.
func (s *Scorer) RestoreFeedback(ctx context.Context, projectID string) error {
	if s.journal == nil {
		return nil
	}
	entries, err := s.journal.ListFeedback(ctx, projectID)
	if err != nil {
		return fmt.Errorf("list feedback: %w", err)
	}
	s.registry.replace(projectID, entries)
	return nil
}

// BiasTable returns the project's current bias table.
func (s *Scorer) BiasTable(projectID string) map[string]float64 {
	return s.registry.BiasTable(projectID)
}

// FeedbackLog returns the project's feedback log.
func (s *Scorer) FeedbackLog(projectID string) []FeedbackEntry {
	return s.registry.Log(projectID)
}
