package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/josephgoksu/KnowledgeWing/internal/connector"
	"github.com/josephgoksu/KnowledgeWing/internal/knowledge"
	"github.com/josephgoksu/KnowledgeWing/internal/logger"
	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
)

// batchFs is where batch files are read from; tests swap in a MemMapFs.
var batchFs afero.Fs = afero.NewOsFs()

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-or-dir>...",
	Short: "Deduplicate, score and store knowledge items",
	Long: `Ingest reads item batches (.json, .jsonl or .yaml) and runs them through the
pipeline: duplicates are removed, unique items are scored, items below the
importance threshold are dropped and the rest are stored on the timeline.

A batch file may carry its own project_id; otherwise --project applies.

Examples:
  knowledgewing ingest -p acme ./exports/issues.jsonl
  knowledgewing ingest -p acme ./exports --threshold 0.5`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batches, err := loadBatches(args)
		if err != nil {
			return err
		}
		logger.SetLastInput(strings.Join(args, " "))

		return withApp(cmd.Context(), func(a *app, defaultProject string) error {
			if cmd.Flags().Changed("threshold") {
				threshold, _ := cmd.Flags().GetFloat64("threshold")
				if threshold < 0 || threshold > 1 {
					return fmt.Errorf("threshold must be within [0,1], got %v", threshold)
				}
				cfg := a.cfg.Ingest
				cfg.ImportanceThreshold = threshold
				a.coordinator = knowledge.NewCoordinator(a.detector, a.scorer, a.timeline, cfg,
					knowledge.WithCoordinatorMetrics(a.metrics))
			}

			byProject := groupByProject(batches, defaultProject)
			projects := sortedKeys(byProject)

			summaries := make([]*knowledge.IngestSummary, 0, len(projects))
			var failed []string
			for _, p := range projects {
				if p != defaultProject {
					if err := a.restore(cmd.Context(), p); err != nil {
						return err
					}
				}
				summary, err := a.coordinator.Process(cmd.Context(), p, byProject[p])
				if err != nil {
					return fmt.Errorf("ingest project %s: %w", p, err)
				}
				summaries = append(summaries, summary)
				if summary.Status == knowledge.IngestFailure {
					failed = append(failed, p)
				}
			}

			if err := render(cmd, summaries, func(w io.Writer) error {
				for _, s := range summaries {
					writeIngestSummary(w, s)
				}
				return nil
			}); err != nil {
				return err
			}
			if len(failed) > 0 {
				return fmt.Errorf("nothing could be stored for project(s) %s", strings.Join(failed, ", "))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().Float64("threshold", 0, "override the importance threshold (0-1)")
}

// loadBatches reads every file argument and every batch file under directory arguments.
func loadBatches(paths []string) ([]*connector.Batch, error) {
	var batches []*connector.Batch
	for _, p := range paths {
		isDir, err := afero.IsDir(batchFs, p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		if isDir {
			found, err := connector.NewLoader(batchFs, p).LoadAll()
			if err != nil {
				return nil, err
			}
			batches = append(batches, found...)
			continue
		}
		b, err := connector.NewLoader(batchFs, ".").LoadFile(p)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// loadItems flattens the batches found at paths.
func loadItems(paths []string) ([]scoring.Item, error) {
	batches, err := loadBatches(paths)
	if err != nil {
		return nil, err
	}
	return connector.Items(batches), nil
}

func groupByProject(batches []*connector.Batch, defaultProject string) map[string][]scoring.Item {
	out := make(map[string][]scoring.Item)
	for _, b := range batches {
		p := b.ProjectID
		if p == "" {
			p = defaultProject
		}
		out[p] = append(out[p], b.Items...)
	}
	return out
}

func writeIngestSummary(w io.Writer, s *knowledge.IngestSummary) {
	fmt.Fprintf(w, "Project %s: %s (%s)\n", s.ProjectID, s.Status, s.ProcessingTime.Round(time.Millisecond))
	fmt.Fprintf(w, "  Input items:        %d\n", s.TotalInputItems)
	fmt.Fprintf(w, "  Duplicates removed: %d (%d unique)\n", s.DuplicatesRemoved, s.UniqueItems)
	fmt.Fprintf(w, "  Scored:             %d\n", s.ItemsScored)
	fmt.Fprintf(w, "  Above threshold:    %d (threshold %.2f)\n", s.ItemsAboveThreshold, s.ImportanceThreshold)
	fmt.Fprintf(w, "  Stored:             %d\n", s.ItemsStored)
	if s.DocumentsCreated > 0 {
		fmt.Fprintf(w, "  Documents indexed:  %d\n", s.DocumentsCreated)
	}
	if s.ItemsScored > 0 {
		fmt.Fprintf(w, "  Average importance: %.2f\n", s.AverageImportanceScore)
		fmt.Fprintf(w, "  Importance:         %s\n", levelCounts(s.ImportanceDistribution))
	}
	for _, f := range s.FailedItems {
		fmt.Fprintf(w, "  ! %s: %s\n", f.ItemID, f.Error)
	}
	if s.IndexingError != "" {
		fmt.Fprintf(w, "  ! indexing: %s\n", s.IndexingError)
	}
	if isVerbose() && len(s.DuplicateGroups) > 0 {
		fmt.Fprintf(w, "  Duplicate groups:\n")
		writeGroups(w, s.DuplicateGroups, "    ")
	}
}

// levelCounts renders a level distribution in level order, skipping zeros.
func levelCounts(dist map[scoring.Level]int) string {
	var parts []string
	for _, l := range scoring.Levels {
		if n := dist[l]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", l, n))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
