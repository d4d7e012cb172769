package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/josephgoksu/KnowledgeWing/internal/config"
	"github.com/josephgoksu/KnowledgeWing/internal/timeline"
)

const (
	configName     = "." + config.AppName
	defaultProject = "default"
)

// appConfig is every configuration section the CLI wires into components.
type appConfig struct {
	Scoring   config.ScoringConfig   `json:"scoring"`
	Dedup     config.DedupConfig     `json:"dedup"`
	Ingest    config.IngestConfig    `json:"ingest"`
	Search    config.SearchConfig    `json:"search"`
	Storage   config.StorageConfig   `json:"storage"`
	Retention config.RetentionConfig `json:"retention"`
	Sweep     config.SweepConfig     `json:"sweep"`
	Log       logConfig              `json:"log"`
}

type logConfig struct {
	Level  string `json:"level,omitempty" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `json:"format,omitempty" validate:"omitempty,oneof=text json"`
}

// validate is a single instance of Validate, it caches struct info
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("cronschedule", func(fl validator.FieldLevel) bool {
		return timeline.ValidateSchedule(fl.Field().String()) == nil
	})
}

// InitConfig reads in config file and ENV variables if set, and binds the
// persistent flags of cmd.
func InitConfig(cmd *cobra.Command) error {
	// Load .env file first if present
	_ = godotenv.Load()

	viper.SetEnvPrefix(config.EnvPrefix)                   // e.g., KNOWLEDGEWING_SEARCH_TIMEOUT
	viper.AutomaticEnv()                                   // Read in environment variables that match
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // Replace dots with underscores in env var names

	for name, key := range persistentFlagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := viper.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	cfgFileFlag := viper.GetString("config")
	if cfgFileFlag != "" {
		viper.SetConfigFile(cfgFileFlag)
	} else {
		viper.SetConfigName(configName)
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if dir, err := config.GetGlobalConfigDir(); err == nil {
			viper.AddConfigPath(dir)
		}
	}

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(cmd.ErrOrStderr(), "Using config file:", viper.ConfigFileUsed())
		}
	} else {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			// No config file is fine; defaults and env apply.
		case cfgFileFlag != "" && errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("config file not found: %s", cfgFileFlag)
		default:
			return fmt.Errorf("read config %s: %w", viper.ConfigFileUsed(), err)
		}
	}
	return nil
}

// loadAppConfig collects and validates every configuration section.
func loadAppConfig() (appConfig, error) {
	cfg := appConfig{
		Scoring:   config.LoadScoringConfig(),
		Dedup:     config.LoadDedupConfig(),
		Ingest:    config.LoadIngestConfig(),
		Search:    config.LoadSearchConfig(),
		Storage:   config.LoadStorageConfig(),
		Retention: config.LoadRetentionConfig(),
		Sweep:     config.LoadSweepConfig(),
		Log: logConfig{
			Level:  strings.ToLower(viper.GetString("log.level")),
			Format: strings.ToLower(viper.GetString("log.format")),
		},
	}
	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// projectID returns the selected project.
func projectID() string {
	if p := strings.TrimSpace(viper.GetString("project")); p != "" {
		return p
	}
	return defaultProject
}

// configSearchPaths lists where InitConfig looks for a config file.
func configSearchPaths() []string {
	paths := []string{filepath.Join(".", configName+".yaml")}
	if dir, err := config.GetGlobalConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, configName+".yaml"))
	}
	return paths
}
