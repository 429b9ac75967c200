package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvConfigPath, EnvRootFolder, EnvConnectionString, EnvWorkers, EnvQueueSize, EnvMaxErrors, EnvXdev, EnvLogLevel, EnvLogFile, EnvMetricsAddr} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 100, cfg.QueueSize)
	assert.Empty(t, cfg.LogLevel)
	assert.Empty(t, cfg.RootFolder)
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "galactic.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
root_folder: /data/share
connection_string: /var/lib/galactic/index.db
workers: 2
exclude:
  - '\.git$'
`), 0o644))

	t.Setenv(EnvConnectionString, "/tmp/override.db")
	t.Setenv(EnvWorkers, "6")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/share", cfg.RootFolder)
	assert.Equal(t, "/tmp/override.db", cfg.ConnectionString)
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, 100, cfg.QueueSize, "unset keys keep defaults")
	assert.Equal(t, []string{`\.git$`}, cfg.Exclude)
}

func TestLoadPipelineSettingsFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvQueueSize, "250")
	t.Setenv(EnvMaxErrors, "10")
	t.Setenv(EnvXdev, "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.QueueSize)
	assert.Equal(t, 10, cfg.MaxErrors)
	assert.True(t, cfg.Xdev)

	t.Setenv(EnvXdev, "sometimes")
	_, err = Load("")
	assert.Error(t, err)

	t.Setenv(EnvXdev, "")
	t.Setenv(EnvQueueSize, "big")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadUsesConfigPathFromEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("root_folder: /srv\n"), 0o644))
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/srv", cfg.RootFolder)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("workers: [not a number"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	t.Setenv(EnvWorkers, "many")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	assert.ErrorIs(t, err, ErrMissingRoot)
	assert.ErrorIs(t, err, ErrMissingConnection)

	cfg.RootFolder = " /data/share/ "
	cfg.ConnectionString = "index.db"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/data/share", cfg.RootFolder)

	cfg.Exclude = []string{"("}
	cfg.Workers = -1
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid exclude pattern")
	assert.Contains(t, err.Error(), "workers must not be negative")
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "galactic.yaml")
	cfg := Default()
	cfg.RootFolder = "/data"
	cfg.ConnectionString = "/data/index.db"
	cfg.Exclude = []string{`\.cache$`}
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLockPath(t *testing.T) {
	cfg := &Config{ConnectionString: "/var/lib/index.db?_pragma=foreign_keys(1)"}
	assert.Equal(t, "/var/lib/index.db.lock", cfg.LockPath())

	cfg.LockFile = "/run/galactic.lock"
	assert.Equal(t, "/run/galactic.lock", cfg.LockPath())

	cfg = &Config{ConnectionString: ":memory:"}
	assert.Equal(t, filepath.Join(os.TempDir(), "galactic.lock"), cfg.LockPath())
}
