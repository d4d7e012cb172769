package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/josephgoksu/KnowledgeWing/internal/logger"
)

var crashLogsCmd = &cobra.Command{
	Use:   "crashlogs [name]",
	Short: "List saved crash logs or print one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logs, err := logger.ListCrashLogs()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			for _, path := range logs {
				if filepath.Base(path) == args[0] || path == args[0] {
					content, err := logger.ReadCrashLog(path)
					if err != nil {
						return err
					}
					_, err = fmt.Fprint(cmd.OutOrStdout(), content)
					return err
				}
			}
			return fmt.Errorf("crash log %q not found", args[0])
		}
		return render(cmd, logs, func(w io.Writer) error {
			if len(logs) == 0 {
				fmt.Fprintln(w, "No crash logs.")
				return nil
			}
			for _, path := range logs {
				fmt.Fprintln(w, path)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(crashLogsCmd)
}
