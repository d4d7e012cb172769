package timeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/josephgoksu/KnowledgeWing/internal/config"
	"github.com/josephgoksu/KnowledgeWing/internal/telemetry"
)

// cronParser supports both standard (5-field) and extended (6-field with seconds) cron expressions.
var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// ValidateSchedule reports whether schedule is a usable cron expression.
func ValidateSchedule(schedule string) error {
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return nil
}

// SweepReport summarizes one pass over every project.
type SweepReport struct {
	Projects []CleanupReport   `json:"projects"`
	Errors   map[string]string `json:"errors,omitempty"`
	Deleted  int               `json:"deleted"`
	Demoted  int               `json:"demoted"`
	Duration time.Duration     `json:"duration"`
}

// Sweeper runs CleanupExpiredData for every project on a cron schedule.
type Sweeper struct {
	store   *Store
	cfg     config.SweepConfig
	metrics *telemetry.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	running bool
}

// NewSweeper creates a sweeper. The schedule is validated up front.
func NewSweeper(store *Store, cfg config.SweepConfig, metrics *telemetry.Metrics, logger *slog.Logger) (*Sweeper, error) {
	if err := ValidateSchedule(cfg.Schedule); err != nil {
		return nil, err
	}
	if cfg.ProjectTimeout <= 0 {
		cfg.ProjectTimeout = config.DefaultSweepConfig().ProjectTimeout
	}
	if logger == nil {
		logger = slog.Default().With("component", "timeline-sweeper")
	}
	return &Sweeper{
		store:   store,
		cfg:     cfg,
		metrics: metrics,
		logger:  logger,
		cron:    cron.New(cron.WithParser(cronParser)),
	}, nil
}

// RunOnce cleans every project. A failing project is logged and skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	report := SweepReport{}

	projects, err := s.store.Repository().ListProjects(ctx)
	if err != nil {
		return report, fmt.Errorf("list projects: %w", err)
	}

	for _, projectID := range projects {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		pctx, cancel := context.WithTimeout(ctx, s.cfg.ProjectTimeout)
		res, err := s.store.CleanupExpiredData(pctx, projectID)
		cancel()
		s.metrics.RecordSweepProject(err)
		if err != nil {
			s.logger.Warn("sweep failed for project", "project", projectID, "error", err)
			if report.Errors == nil {
				report.Errors = make(map[string]string)
			}
			report.Errors[projectID] = err.Error()
			continue
		}
		report.Projects = append(report.Projects, res)
		report.Deleted += res.Deleted
		report.Demoted += res.Demoted
	}

	report.Duration = time.Since(start)
	s.logger.Info("sweep complete",
		"projects", len(projects),
		"failed", len(report.Errors),
		"deleted", report.Deleted,
		"demoted", report.Demoted,
		"duration", report.Duration,
	)
	return report, nil
}

// Start schedules the sweep. Runs stop when ctx is canceled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	id, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.tick(ctx) })
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.entryID = id
	s.cron.Start()
	s.running = true
	s.logger.Info("sweeper started", "schedule", s.cfg.Schedule)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Sweeper) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("sweep failed", "error", err)
	}
}

// Reschedule swaps the cron schedule of a running sweeper.
func (s *Sweeper) Reschedule(ctx context.Context, schedule string) error {
	if err := ValidateSchedule(schedule); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Schedule = schedule
	if !s.running {
		return nil
	}
	s.cron.Remove(s.entryID)
	id, err := s.cron.AddFunc(schedule, func() { s.tick(ctx) })
	if err != nil {
		return fmt.Errorf("reschedule sweep: %w", err)
	}
	s.entryID = id
	s.logger.Info("sweeper rescheduled", "schedule", schedule)
	return nil
}

// Next returns the next scheduled run, or the zero time when not running.
func (s *Sweeper) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	c := s.cron
	s.mu.Unlock()

	<-c.Stop().Done()
	s.logger.Info("sweeper stopped")
}
