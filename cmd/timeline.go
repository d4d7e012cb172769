package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/KnowledgeWing/internal/scoring"
	"github.com/josephgoksu/KnowledgeWing/internal/timeline"
	"github.com/josephgoksu/KnowledgeWing/internal/util"
	"github.com/josephgoksu/KnowledgeWing/internal/utils"
)

var timelineCmd = &cobra.Command{
	Use:     "timeline",
	Aliases: []string{"tl"},
	Short:   "Inspect and maintain stored timeline entries",
}

var timelineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live entries by importance",
	Long: `List prints live (unexpired) entries of the project, most important first.

Examples:
  knowledgewing timeline list -p acme --min-importance 0.6
  knowledgewing timeline list -p acme --category LAST_MONTH --limit 20`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		minImportance, _ := cmd.Flags().GetFloat64("min-importance")
		categoryFlag, _ := cmd.Flags().GetString("category")
		limit, _ := cmd.Flags().GetInt("limit")

		q := timeline.Query{MinImportance: minImportance, Limit: limit}
		if categoryFlag != "" {
			c, ok := scoring.ParseCategory(categoryFlag)
			if !ok {
				return fmt.Errorf("unknown timeline category %q (use one of %v)", categoryFlag, scoring.Categories)
			}
			q.Category = c
		}

		return withApp(cmd.Context(), func(a *app, projectID string) error {
			entries, err := a.timeline.RetrieveTimelineData(cmd.Context(), projectID, q)
			if err != nil {
				return err
			}
			return render(cmd, entries, func(w io.Writer) error {
				if len(entries) == 0 {
					fmt.Fprintf(w, "No entries stored for project %s.\n", projectID)
					fmt.Fprintln(w, "Add some with: knowledgewing ingest <file>")
					return nil
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tITEM\tTYPE\tSCORE\tLEVEL\tTIER\tCREATED\tCONTENT")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\t%s\t%s\t%s\t%s\n",
						util.ShortID(e.EntryID, 0), e.Item.ID, e.Item.Type, e.Score.OverallScore,
						e.Score.Level, e.Tier, e.Item.CreatedAt.Format("2006-01-02"),
						utils.Truncate(oneLine(e.Item.Content), 60))
				}
				return tw.Flush()
			})
		})
	},
}

var timelineShowCmd = &cobra.Command{
	Use:   "show <entry-id-or-prefix>",
	Short: "Show one entry with its scoring details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app, projectID string) error {
			id, err := util.ResolveEntryID(cmd.Context(), a.store, projectID, args[0])
			if err != nil {
				return err
			}
			e, err := a.store.GetEntry(cmd.Context(), id)
			if err != nil {
				return err
			}
			return render(cmd, e, func(w io.Writer) error {
				writeEntry(w, e, a.timeline.Policy(), time.Now())
				return nil
			})
		})
	},
}

var timelineAnalyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Summarize entries stored in a recent window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		return withApp(cmd.Context(), func(a *app, projectID string) error {
			an, err := a.timeline.GetTimelineAnalytics(cmd.Context(), projectID, days)
			if err != nil {
				return err
			}
			return render(cmd, an, func(w io.Writer) error {
				fmt.Fprintf(w, "Project %s, last %d days\n", an.ProjectID, an.DaysBack)
				fmt.Fprintf(w, "  Entries:            %d\n", an.TotalEntries)
				if an.TotalEntries == 0 {
					return nil
				}
				fmt.Fprintf(w, "  Average importance: %.2f\n", an.AverageImportance)
				fmt.Fprintf(w, "  Importance:         %s\n", levelCounts(an.LevelDistribution))

				var cats, tiers []string
				for _, c := range scoring.Categories {
					if n := an.CategoryDistribution[c]; n > 0 {
						cats = append(cats, fmt.Sprintf("%s=%d", c, n))
					}
				}
				for _, t := range timeline.Tiers {
					if n := an.TierDistribution[t]; n > 0 {
						tiers = append(tiers, fmt.Sprintf("%s=%d", t, n))
					}
				}
				fmt.Fprintf(w, "  Timeline:           %s\n", strings.Join(cats, " "))
				fmt.Fprintf(w, "  Tiers:              %s\n", strings.Join(tiers, " "))
				return nil
			})
		})
	},
}

var timelineCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired entries and demote aged ones",
	Long: `Cleanup removes entries past their retention deadline and moves the rest to
the storage tier their importance and age call for. With --all every project
is swept, as the sweep daemon does.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		return withApp(cmd.Context(), func(a *app, projectID string) error {
			if all {
				sweeper, err := timeline.NewSweeper(a.timeline, a.cfg.Sweep, a.metrics, nil)
				if err != nil {
					return err
				}
				report, err := sweeper.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				return render(cmd, report, func(w io.Writer) error {
					writeSweepReport(w, report)
					return nil
				})
			}

			report, err := a.timeline.CleanupExpiredData(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			return render(cmd, report, func(w io.Writer) error {
				fmt.Fprintf(w, "Project %s: %d deleted, %d demoted\n", report.ProjectID, report.Deleted, report.Demoted)
				for _, change := range sortedKeys(report.Planned) {
					fmt.Fprintf(w, "  %s: %d\n", change, report.Planned[change])
				}
				return nil
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(timelineCmd)
	timelineCmd.AddCommand(timelineListCmd, timelineShowCmd, timelineAnalyticsCmd, timelineCleanupCmd)

	timelineListCmd.Flags().Float64("min-importance", 0, "only entries scoring at least this (0-1)")
	timelineListCmd.Flags().String("category", "", "timeline category: RECENT, LAST_MONTH, LAST_QUARTER, OLDER or ARCHIVE")
	timelineListCmd.Flags().Int("limit", 50, "maximum entries to list")

	timelineAnalyticsCmd.Flags().Int("days", timeline.DefaultAnalyticsDays, "window in days")

	timelineCleanupCmd.Flags().Bool("all", false, "clean every project")
}

func writeEntry(w io.Writer, e *timeline.Entry, policy timeline.RetentionPolicy, now time.Time) {
	fmt.Fprintf(w, "Entry %s\n", e.EntryID)
	fmt.Fprintf(w, "  Item:       %s (%s)\n", e.Item.ID, e.Item.Type)
	if e.Item.Author != "" {
		fmt.Fprintf(w, "  Author:     %s\n", e.Item.Author)
	}
	fmt.Fprintf(w, "  Created:    %s\n", e.Item.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "  Importance: %.3f %s (confidence %.2f)\n", e.Score.OverallScore, e.Score.Level, e.Score.Confidence)
	fmt.Fprintf(w, "  Tier:       %s (now %s)\n", e.Tier, policy.Tier(e.Score.Level, scoring.CategoryAt(e.Item.CreatedAt, now)))
	fmt.Fprintf(w, "  Retain to:  %s\n", e.RetentionDeadline.Format(time.RFC3339))
	for _, r := range e.Score.Reasoning {
		fmt.Fprintf(w, "  - %s\n", r)
	}
	fmt.Fprintf(w, "\n%s\n", e.Item.Content)
}

func writeSweepReport(w io.Writer, r timeline.SweepReport) {
	fmt.Fprintf(w, "Swept %d project(s): %d deleted, %d demoted in %s\n",
		len(r.Projects), r.Deleted, r.Demoted, r.Duration.Round(time.Millisecond))
	for _, p := range r.Projects {
		fmt.Fprintf(w, "  %s: %d deleted, %d demoted\n", p.ProjectID, p.Deleted, p.Demoted)
	}
	for _, p := range sortedKeys(r.Errors) {
		fmt.Fprintf(w, "  ! %s: %s\n", p, r.Errors[p])
	}
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
