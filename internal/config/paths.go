package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// GetGlobalConfigDir returns the path to the global configuration directory (~/.knowledgewing).
// It's a variable to allow overriding in tests.
var GetGlobalConfigDir = func() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "."+AppName), nil
}

// GetDataBasePath returns the path to the data directory.
// Resolution order (first match wins):
// 1. Explicit config via "data.path" (Viper/env/flag)
// 2. Local project directory: .knowledgewing/data (if exists)
// 3. XDG_DATA_HOME/knowledgewing (if XDG_DATA_HOME is set)
// 4. Global fallback: ~/.knowledgewing/data
func GetDataBasePath() string {
	if path := viper.GetString("data.path"); path != "" {
		return path
	}

	localData := filepath.Join("."+AppName, "data")
	if info, err := os.Stat(localData); err == nil && info.IsDir() {
		return localData
	}

	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, AppName)
	}

	dir, err := GetGlobalConfigDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(dir, "data")
}

// ResolveDSN returns the DSN the store should open. For sqlite an empty DSN
// resolves to the database file inside GetDataBasePath.
func ResolveDSN(cfg StorageConfig) string {
	if cfg.DSN != "" || cfg.Driver != DriverSQLite {
		return cfg.DSN
	}
	return filepath.Join(GetDataBasePath(), DefaultDatabaseFile)
}
