package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/josephgoksu/KnowledgeWing/internal/config"
	"github.com/josephgoksu/KnowledgeWing/internal/dedup"
	"github.com/josephgoksu/KnowledgeWing/internal/knowledge"
	"github.com/josephgoksu/KnowledgeWing/internal/memory"
	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
	"github.com/josephgoksu/KnowledgeWing/internal/telemetry"
	"github.com/josephgoksu/KnowledgeWing/internal/timeline"
)

// app wires the components one command invocation needs.
type app struct {
	cfg         appConfig
	store       *memory.SQLStore
	scorer      *scoring.Scorer
	detector    *dedup.Detector
	timeline    *timeline.Store
	coordinator *knowledge.Coordinator
	engine      *knowledge.Engine
	registry    *prometheus.Registry
	metrics     *telemetry.Metrics
}

// openApp loads configuration and opens the store and every component on top of it.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadAppConfig()
	if err != nil {
		return nil, err
	}

	store, err := memory.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Storage.Driver, err)
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.NewMetrics(registry)

	scorer := scoring.NewScorer(cfg.Scoring,
		scoring.WithJournal(store),
		scoring.WithLogger(slog.Default().With("component", "scoring")),
	)
	detector := dedup.NewDetector(cfg.Dedup, nil)
	tl := timeline.NewStore(store, scorer, timeline.NewRetentionPolicy(cfg.Retention),
		timeline.WithStoreMetrics(metrics),
	)
	coordinator := knowledge.NewCoordinator(detector, scorer, tl, cfg.Ingest,
		knowledge.WithCoordinatorMetrics(metrics),
	)
	engineOpts := []knowledge.EngineOption{
		knowledge.WithHistoryJournal(searchJournal{store: store}),
		knowledge.WithEngineMetrics(metrics),
	}
	if cfg.Search.RerankingEnabled {
		reranker, err := knowledge.NewTEIReranker(knowledge.TEIRerankerConfig{
			BaseURL: cfg.Search.RerankBaseURL,
			Timeout: cfg.Search.RerankTimeout,
		})
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("configure reranker: %w", err)
		}
		engineOpts = append(engineOpts, knowledge.WithReranker(reranker, cfg.Search.RerankTimeout))
	}
	engine := knowledge.NewEngine(knowledge.NewStoreRetriever(store), cfg.Search, engineOpts...)

	return &app{
		cfg:         cfg,
		store:       store,
		scorer:      scorer,
		detector:    detector,
		timeline:    tl,
		coordinator: coordinator,
		engine:      engine,
		registry:    registry,
		metrics:     metrics,
	}, nil
}

// restore reloads a project's feedback bias and search history.
func (a *app) restore(ctx context.Context, projectID string) error {
	return errors.Join(
		a.scorer.RestoreFeedback(ctx, projectID),
		a.engine.RestoreHistory(ctx, projectID),
	)
}

func (a *app) Close() error {
	return a.store.Close()
}

// withApp opens the app, restores the selected project and runs fn.
func withApp(ctx context.Context, fn func(a *app, projectID string) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("close store failed", "error", err)
		}
	}()

	projectID := projectID()
	if err := a.restore(ctx, projectID); err != nil {
		return err
	}
	return fn(a, projectID)
}

// searchJournal persists search history in the SQL store.
type searchJournal struct {
	store *memory.SQLStore
}

func (j searchJournal) AppendSearch(ctx context.Context, projectID string, e knowledge.HistoryEntry) error {
	return j.store.AppendSearch(ctx, memory.SearchRecord{
		ProjectID:    projectID,
		SearchID:     e.SearchID,
		Query:        e.Query,
		SearchType:   string(e.SearchType),
		ResultsCount: e.ResultsCount,
		Timestamp:    e.Timestamp,
	})
}

func (j searchJournal) ListSearches(ctx context.Context, projectID string, limit int) ([]knowledge.HistoryEntry, error) {
	records, err := j.store.ListSearches(ctx, projectID, limit)
	if err != nil {
		return nil, err
	}
	entries := make([]knowledge.HistoryEntry, len(records))
	for i, r := range records {
		entries[i] = knowledge.HistoryEntry{
			SearchID:     r.SearchID,
			Timestamp:    r.Timestamp,
			Query:        r.Query,
			SearchType:   knowledge.SearchType(r.SearchType),
			ResultsCount: r.ResultsCount,
		}
	}
	return entries, nil
}

// storageLabel describes the configured store for status output.
func storageLabel(cfg config.StorageConfig) string {
	if cfg.Driver == config.DriverPostgres {
		return "postgres"
	}
	return "sqlite " + config.ResolveDSN(cfg)
}
