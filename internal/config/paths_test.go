package config

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestGetDataBasePath_ExplicitConfig(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("data.path", "/custom/data")
	assert.Equal(t, "/custom/data", GetDataBasePath())
}

func TestGetDataBasePath_XDG(t *testing.T) {
	viper.Reset()
	t.Setenv("XDG_DATA_HOME", "/xdg")
	t.Chdir(t.TempDir())

	assert.Equal(t, filepath.Join("/xdg", AppName), GetDataBasePath())
}

func TestGetDataBasePath_GlobalFallback(t *testing.T) {
	viper.Reset()
	t.Setenv("XDG_DATA_HOME", "")
	t.Chdir(t.TempDir())

	orig := GetGlobalConfigDir
	defer func() { GetGlobalConfigDir = orig }()
	GetGlobalConfigDir = func() (string, error) { return "/home/test/.knowledgewing", nil }

	assert.Equal(t, "/home/test/.knowledgewing/data", GetDataBasePath())
}

func TestGetDataBasePath_GlobalDirError(t *testing.T) {
	viper.Reset()
	t.Setenv("XDG_DATA_HOME", "")
	t.Chdir(t.TempDir())

	orig := GetGlobalConfigDir
	defer func() { GetGlobalConfigDir = orig }()
	GetGlobalConfigDir = func() (string, error) { return "", errors.New("no home") }

	assert.Equal(t, "./data", GetDataBasePath())
}

func TestResolveDSN(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	viper.Set("data.path", "/var/lib/kw")

	assert.Equal(t, filepath.Join("/var/lib/kw", DefaultDatabaseFile), ResolveDSN(StorageConfig{Driver: DriverSQLite}))
	assert.Equal(t, ":memory:", ResolveDSN(StorageConfig{Driver: DriverSQLite, DSN: ":memory:"}))
	assert.Equal(t, "postgres://localhost/kw", ResolveDSN(StorageConfig{Driver: DriverPostgres, DSN: "postgres://localhost/kw"}))
	assert.Empty(t, ResolveDSN(StorageConfig{Driver: DriverPostgres}))
}
