package cmd

import (
	"fmt"
	"io"
	"os/user"
	"strconv"

	"github.com/spf13/cobra"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback <item-id> <score>",
	Short: "Tell the scorer how important an item really is",
	Long: `Feedback records your judgement (0 = noise, 1 = critical) of a stored item.
Future scores of items with the same type and similar content are nudged
toward it. Existing entries are not rescored.

Example:
  knowledgewing feedback -p acme ISSUE-42 0.9`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		score, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("score must be a number between 0 and 1: %w", err)
		}
		userID, _ := cmd.Flags().GetString("user")
		if userID == "" {
			if u, err := user.Current(); err == nil {
				userID = u.Username
			}
		}

		return withApp(cmd.Context(), func(a *app, projectID string) error {
			entry, err := a.coordinator.Feedback(cmd.Context(), projectID, args[0], score, userID)
			if err != nil {
				return err
			}
			return render(cmd, entry, func(w io.Writer) error {
				fmt.Fprintf(w, "Recorded feedback %.2f for %s", entry.FeedbackScore, entry.DataID)
				if entry.DataType != "" {
					fmt.Fprintf(w, " (%s, was %.2f)", entry.DataType, entry.PriorScore)
				}
				fmt.Fprintln(w)
				if isVerbose() {
					bias := a.scorer.BiasTable(projectID)
					for _, k := range sortedKeys(bias) {
						fmt.Fprintf(w, "  %-30s %+.3f\n", k, bias[k])
					}
				}
				return nil
			})
		})
	},
}

func init() {
	rootCmd.AddCommand(feedbackCmd)
	feedbackCmd.Flags().String("user", "", "user id recorded with the feedback (default: current OS user)")
}
