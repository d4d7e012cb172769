/*
Copyright © 2025 Joseph Goksu josephgoksu@gmail.com
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/josephgoksu/KnowledgeWing/internal/config"
	"github.com/josephgoksu/KnowledgeWing/internal/logger"
)

var (
	// cfgFile is the path to the configuration file.
	cfgFile string
	// version is the application version.
	version = "0.3.0"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "KnowledgeWing - importance-aware knowledge memory",
	Long: `KnowledgeWing ingests knowledge items from your tools, scores how much each one
matters, keeps them on a retention timeline and answers intent-aware searches.

Examples:
  knowledgewing ingest -p acme ./exports
  knowledgewing search cross -p acme "jwt session expiry"
  knowledgewing timeline analytics -p acme --days 90
  knowledgewing sweep --once`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := InitConfig(cmd); err != nil {
			return err
		}
		if _, err := logger.Setup(logLevel(), viper.GetString("log.format"), cmd.ErrOrStderr()); err != nil {
			return err
		}
		logger.SetBasePath(config.GetDataBasePath())
		logger.SetCommand(cmd.CommandPath(), viper.GetString("project"))
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	defer logger.HandlePanic()
	logger.SetVersion(version)

	if err := rootCmd.Execute(); err != nil {
		PrintError(rootCmd.ErrOrStderr(), userMessage(err), err)
		os.Exit(1)
	}
}

// GetVersion returns the binary version.
func GetVersion() string {
	return version
}

func init() {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("%s version {{.Version}}\n", config.AppName))

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./.knowledgewing.yaml or $HOME/.knowledgewing/.knowledgewing.yaml)")
	pf.BoolP("verbose", "v", false, "print technical error details")
	pf.StringP("project", "p", "", "project id (default \"default\")")
	pf.StringP("output", "o", "", "output format: text, json or yaml (default text on a terminal, json otherwise)")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.String("log-format", "", "log format: text or json")
	pf.String("data-dir", "", "data directory for the sqlite database and crash logs")
	pf.String("storage-driver", "", "storage driver: sqlite or postgres")
	pf.String("dsn", "", "database path (sqlite) or connection string (postgres)")
}

// logLevel keeps the CLI quiet unless asked otherwise.
func logLevel() string {
	if l := viper.GetString("log.level"); l != "" {
		return l
	}
	if viper.GetBool("verbose") {
		return "debug"
	}
	return "warn"
}

// persistentFlagKeys maps persistent flags to their Viper keys.
var persistentFlagKeys = map[string]string{
	"config":         "config",
	"verbose":        "verbose",
	"project":        "project",
	"output":         "output",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"data-dir":       "data.path",
	"storage-driver": "storage.driver",
	"dsn":            "storage.dsn",
}
