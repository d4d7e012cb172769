package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/KnowledgeWing/internal/dedup"
)

var scoreCmd = &cobra.Command{
	Use:   "score <file-or-dir>...",
	Short: "Score items without storing them",
	Long: `Score prints the importance assessment of every item in the given batches.
Learned feedback bias of the project is applied. Nothing is stored.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := loadItems(args)
		if err != nil {
			return err
		}
		return withApp(cmd.Context(), func(a *app, projectID string) error {
			scores, err := a.scorer.ScoreBatch(cmd.Context(), projectID, items)
			if err != nil {
				return err
			}
			sort.SliceStable(scores, func(i, j int) bool { return scores[i].OverallScore > scores[j].OverallScore })

			return render(cmd, scores, func(w io.Writer) error {
				tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ITEM\tTYPE\tSCORE\tLEVEL\tTIMELINE\tCONFIDENCE")
				for _, s := range scores {
					fmt.Fprintf(tw, "%s\t%s\t%.3f\t%s\t%s\t%.2f\n",
						s.DataID, s.DataType, s.OverallScore, s.Level, s.Category, s.Confidence)
					if isVerbose() && len(s.Reasoning) > 0 {
						fmt.Fprintf(tw, "\t%s\t\t\t\t\n", strings.Join(s.Reasoning, "; "))
					}
				}
				return tw.Flush()
			})
		})
	},
}

var dedupCmd = &cobra.Command{
	Use:   "dedup <file-or-dir>...",
	Short: "Report exact and near-duplicate items",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := loadItems(args)
		if err != nil {
			return err
		}
		cfg, err := loadAppConfig()
		if err != nil {
			return err
		}
		res := dedup.NewDetector(cfg.Dedup, nil).Detect(projectID(), items)

		report := struct {
			Input             int          `json:"input_items"`
			Unique            int          `json:"unique_items"`
			DuplicatesRemoved int          `json:"duplicates_removed"`
			Groups            dedup.Groups `json:"duplicate_groups"`
		}{len(items), len(res.Unique), res.DuplicatesRemoved, res.Groups}

		return render(cmd, report, func(w io.Writer) error {
			fmt.Fprintf(w, "%d items, %d unique, %d duplicates removed\n", report.Input, report.Unique, report.DuplicatesRemoved)
			writeGroups(w, res.Groups, "  ")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(dedupCmd)
}

// writeGroups lists duplicate groups by master id.
func writeGroups(w io.Writer, groups dedup.Groups, indent string) {
	for _, m := range sortedKeys(groups) {
		fmt.Fprintf(w, "%s%s <- %s\n", indent, m, strings.Join(groups[m], ", "))
	}
}
