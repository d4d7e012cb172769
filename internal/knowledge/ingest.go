package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/josephgoksu/KnowledgeWing/internal/config"
	"github.com/josephgoksu/KnowledgeWing/internal/dedup"
	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
	"github.com/josephgoksu/KnowledgeWing/internal/telemetry"
	"github.com/josephgoksu/KnowledgeWing/internal/timeline"
)

// IngestStatus is the overall outcome of an ingestion run.
type IngestStatus string

const (
	// IngestSuccess means every item above the threshold was stored (and indexed when enabled).
	IngestSuccess IngestStatus = "success"
	// IngestPartial means some items failed to store or indexing failed.
	IngestPartial IngestStatus = "partial"
	// IngestFailure means nothing above the threshold could be stored.
	IngestFailure IngestStatus = "failure"
)

// IngestSummary reconciles item counts across every stage of a run:
// TotalInputItems == UniqueItems + DuplicatesRemoved and
// ItemsStored <= ItemsAboveThreshold <= ItemsScored <= UniqueItems.
type IngestSummary struct {
	ProjectID              string                   `json:"project_id"`
	Status                 IngestStatus             `json:"status"`
	TotalInputItems        int                      `json:"total_input_items"`
	UniqueItems            int                      `json:"unique_items"`
	DuplicatesRemoved      int                      `json:"duplicates_removed"`
	DuplicateGroups        dedup.Groups             `json:"duplicate_groups,omitempty"`
	ItemsScored            int                      `json:"items_scored"`
	ItemsAboveThreshold    int                      `json:"items_above_threshold"`
	ItemsStored            int                      `json:"items_stored"`
	DocumentsCreated       int                      `json:"documents_created"`
	FailedItems            []timeline.ItemFailure   `json:"failed_items,omitempty"`
	IndexingError          string                   `json:"indexing_error,omitempty"`
	ImportanceThreshold    float64                  `json:"importance_threshold"`
	ImportanceDistribution map[scoring.Level]int    `json:"importance_distribution"`
	TimelineDistribution   map[scoring.Category]int `json:"timeline_distribution"`
	AverageImportanceScore float64                  `json:"average_importance_score"`
	EntryIDs               []string                 `json:"entry_ids,omitempty"`
	ProcessingTime         time.Duration            `json:"processing_time"`
}

// Coordinator runs the ingestion pipeline: dedup, score, threshold, store, index.
type Coordinator struct {
	detector *dedup.Detector
	scorer   *scoring.Scorer
	store    *timeline.Store
	indexer  Indexer
	cfg      config.IngestConfig
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithIndexer hands stored items to an external indexer.
func WithIndexer(idx Indexer) CoordinatorOption {
	return func(c *Coordinator) { c.indexer = idx }
}

// WithCoordinatorMetrics records ingestion metrics.
func WithCoordinatorMetrics(m *telemetry.Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// WithCoordinatorLogger sets the logger.
func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator wires the pipeline stages together.
func NewCoordinator(detector *dedup.Detector, scorer *scoring.Scorer, store *timeline.Store, cfg config.IngestConfig, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		detector: detector,
		scorer:   scorer,
		store:    store,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default().With("component", "ingest")
	}
	return c
}

// Process ingests one batch of raw items. Per-item failures are reported in
// the summary; an error is returned only when the run could not complete, in
// which case the summary still reflects every stage that finished.
func (c *Coordinator) Process(ctx context.Context, projectID string, items []scoring.Item) (*IngestSummary, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, timeline.ErrInvalidProject
	}

	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "knowledge.ingest")
	defer span.End()
	span.SetAttributes(attribute.String("project.id", projectID), attribute.Int("ingest.input", len(items)))

	summary, err := c.process(ctx, projectID, items)
	summary.ProcessingTime = time.Since(start)

	c.metrics.RecordIngestRun(string(summary.Status), summary.ProcessingTime)
	span.SetAttributes(
		attribute.String("ingest.status", string(summary.Status)),
		attribute.Int("ingest.stored", summary.ItemsStored),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Error("ingestion failed", "project", projectID, "error", err)
		return summary, err
	}

	c.logger.Info("ingestion complete",
		"project", projectID,
		"status", summary.Status,
		"input", summary.TotalInputItems,
		"duplicates", summary.DuplicatesRemoved,
		"stored", summary.ItemsStored,
		"documents", summary.DocumentsCreated,
	)
	return summary, nil
}

func (c *Coordinator) process(ctx context.Context, projectID string, items []scoring.Item) (*IngestSummary, error) {
	s := &IngestSummary{
		ProjectID:              projectID,
		Status:                 IngestFailure,
		TotalInputItems:        len(items),
		ImportanceThreshold:    c.cfg.ImportanceThreshold,
		ImportanceDistribution: make(map[scoring.Level]int),
		TimelineDistribution:   make(map[scoring.Category]int),
	}
	c.metrics.RecordIngestStage(telemetry.StageInput, len(items))

	// 1. Dedup
	dd := c.detector.Detect(projectID, items)
	s.UniqueItems = len(dd.Unique)
	s.DuplicatesRemoved = dd.DuplicatesRemoved
	s.DuplicateGroups = dd.Groups
	c.metrics.RecordIngestStage(telemetry.StageDuplicate, dd.DuplicatesRemoved)

	// 2. Score
	scores, err := c.scorer.ScoreBatch(ctx, projectID, dd.Unique)
	if err != nil {
		return s, fmt.Errorf("score batch: %w", err)
	}
	s.ItemsScored = len(scores)
	c.metrics.RecordIngestStage(telemetry.StageScored, len(scores))

	total := 0.0
	for _, sc := range scores {
		s.ImportanceDistribution[sc.Level]++
		s.TimelineDistribution[sc.Category]++
		total += sc.OverallScore
		c.metrics.RecordScore(string(sc.Level))
	}
	if len(scores) > 0 {
		s.AverageImportanceScore = total / float64(len(scores))
	}

	// 3. Threshold
	var kept []scoring.ScoredItem
	for i, sc := range scores {
		if sc.OverallScore >= c.cfg.ImportanceThreshold {
			kept = append(kept, scoring.ScoredItem{Item: dd.Unique[i], Score: sc})
		}
	}
	s.ItemsAboveThreshold = len(kept)
	c.metrics.RecordIngestStage(telemetry.StageAbove, len(kept))

	if len(kept) == 0 {
		s.Status = IngestSuccess
		return s, nil
	}

	// 4. Store
	res, err := c.store.StoreScored(ctx, projectID, kept)
	s.ItemsStored = len(res.Stored)
	s.FailedItems = res.Failures
	s.EntryIDs = res.EntryIDs()
	c.metrics.RecordIngestStage(telemetry.StageStored, len(res.Stored))
	if err != nil {
		s.Status = statusFor(s)
		return s, fmt.Errorf("store items: %w", err)
	}

	// 5. Index what was stored
	if c.cfg.IndexingEnabled && c.indexer != nil && len(res.Stored) > 0 {
		stored := make(map[string]bool, len(res.Stored))
		for _, st := range res.Stored {
			stored[st.ItemID] = true
		}
		toIndex := make([]scoring.ScoredItem, 0, len(res.Stored))
		for _, si := range kept {
			if stored[si.Item.ID] {
				toIndex = append(toIndex, si)
			}
		}
		created, err := c.indexer.Index(ctx, Namespace(projectID), toIndex)
		if err != nil {
			c.logger.Warn("indexing hand-off failed", "project", projectID, "items", len(toIndex), "error", err)
			s.IndexingError = err.Error()
		} else {
			s.DocumentsCreated = created
			c.metrics.RecordIngestStage(telemetry.StageIndexed, created)
		}
	}

	s.Status = statusFor(s)
	return s, nil
}

func statusFor(s *IngestSummary) IngestStatus {
	switch {
	case s.ItemsAboveThreshold > 0 && s.ItemsStored == 0:
		return IngestFailure
	case len(s.FailedItems) > 0 || s.ItemsStored < s.ItemsAboveThreshold || s.IndexingError != "":
		return IngestPartial
	default:
		return IngestSuccess
	}
}

// Feedback records user feedback on a scored item, biasing future scores of
// similar items. Items stored by an earlier process are re-scored first so the
// feedback can be attributed to their type and content.
func (c *Coordinator) Feedback(ctx context.Context, projectID, dataID string, feedbackScore float64, userID string) (scoring.FeedbackEntry, error) {
	if strings.TrimSpace(projectID) == "" {
		return scoring.FeedbackEntry{}, timeline.ErrInvalidProject
	}
	if e, err := c.store.Repository().GetEntryByItem(ctx, projectID, dataID); err != nil {
		c.logger.Warn("feedback lookup failed", "project", projectID, "item", dataID, "error", err)
	} else if e != nil {
		c.scorer.ScoreItem(projectID, e.Item)
	}
	entry, err := c.scorer.LearnFromFeedback(ctx, projectID, dataID, feedbackScore, userID)
	if err != nil {
		return entry, err
	}
	c.metrics.RecordFeedback()
	return entry, nil
}
