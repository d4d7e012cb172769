package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/josephgoksu/KnowledgeWing/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Config prints every section after defaults, config file, environment
(KNOWLEDGEWING_*) and flags have been applied, and validates it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadAppConfig()
		if err != nil {
			return err
		}
		view := struct {
			ConfigFile  string    `json:"config_file"`
			SearchPaths []string  `json:"search_paths"`
			DataDir     string    `json:"data_dir"`
			Storage     string    `json:"storage"`
			Project     string    `json:"project"`
			Config      appConfig `json:"config"`
		}{
			ConfigFile:  viper.ConfigFileUsed(),
			SearchPaths: configSearchPaths(),
			DataDir:     config.GetDataBasePath(),
			Storage:     storageLabel(cfg.Storage),
			Project:     projectID(),
			Config:      cfg,
		}

		return render(cmd, view, func(w io.Writer) error {
			file := view.ConfigFile
			if file == "" {
				file = "(none, using defaults)"
			}
			fmt.Fprintf(w, "Config file: %s\n", file)
			fmt.Fprintf(w, "Data dir:    %s\n", view.DataDir)
			fmt.Fprintf(w, "Storage:     %s\n", view.Storage)
			fmt.Fprintf(w, "Project:     %s\n\n", view.Project)
			return printYAML(w, cfg)
		})
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
