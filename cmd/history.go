package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/KnowledgeWing/internal/knowledge"
	"github.com/josephgoksu/KnowledgeWing/internal/util"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent searches of the project",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app, projectID string) error {
			entries := a.engine.SearchHistory(projectID)
			return render(cmd, entries, func(w io.Writer) error {
				if len(entries) == 0 {
					fmt.Fprintf(w, "No searches recorded for project %s.\n", projectID)
					return nil
				}
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tWHEN\tTYPE\tRESULTS\tQUERY")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
						util.ShortID(e.SearchID, 0), e.Timestamp.Local().Format(time.DateTime), e.SearchType, e.ResultsCount, e.Query)
				}
				return tw.Flush()
			})
		})
	},
}

var historyAnalyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Summarize the project's search history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app, projectID string) error {
			an := a.engine.SearchAnalytics(projectID)
			return render(cmd, an, func(w io.Writer) error {
				fmt.Fprintf(w, "Project %s: %d searches, %.1f results on average\n", an.ProjectID, an.TotalSearches, an.AverageResults)
				for _, t := range []knowledge.SearchType{knowledge.SearchCodeSemantic, knowledge.SearchCrossSource, knowledge.SearchContextual} {
					if n := an.SearchesByType[t]; n > 0 {
						fmt.Fprintf(w, "  %-14s %d\n", t, n)
					}
				}
				if len(an.TopQueries) > 0 {
					fmt.Fprintln(w, "Top queries:")
					for _, q := range an.TopQueries {
						fmt.Fprintf(w, "  %3d  %s\n", q.Count, q.Query)
					}
				}
				if len(an.ZeroResultQueries) > 0 {
					fmt.Fprintln(w, "Queries without results:")
					for _, q := range an.ZeroResultQueries {
						fmt.Fprintf(w, "  %s\n", q)
					}
				}
				return nil
			})
		})
	},
}

var historySuggestCmd = &cobra.Command{
	Use:   "suggest <prefix>",
	Short: "Suggest past queries starting with prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd.Context(), func(a *app, projectID string) error {
			suggestions := a.engine.Suggest(projectID, args[0], limit)
			return render(cmd, suggestions, func(w io.Writer) error {
				for _, s := range suggestions {
					fmt.Fprintln(w, s)
				}
				return nil
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyAnalyticsCmd, historySuggestCmd)
	historySuggestCmd.Flags().Int("limit", 5, "maximum suggestions")
}
