package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rigging.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "plain", cfg.Logging.Format)
	assert.True(t, cfg.Logging.Timestamps)
	assert.Equal(t, 5, cfg.Executor.Forks)
	assert.True(t, cfg.Executor.GatherFacts)
	assert.Equal(t, "", cfg.Facts.CachePath)
	assert.Equal(t, 24*time.Hour, cfg.Facts.CacheTTL)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: debug
  format: json
executor:
  forks: 20
  gather_facts: false
facts:
  cache_path: /tmp/facts.db
  cache_ttl: 1h
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 20, cfg.Executor.Forks)
	assert.False(t, cfg.Executor.GatherFacts)
	assert.Equal(t, "/tmp/facts.db", cfg.Facts.CachePath)
	assert.Equal(t, time.Hour, cfg.Facts.CacheTTL)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: warning
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warning", cfg.Logging.Level)
	assert.Equal(t, "plain", cfg.Logging.Format)
	assert.Equal(t, 5, cfg.Executor.Forks)
}

func TestLoadRejectsInvalidForks(t *testing.T) {
	path := writeConfigFile(t, `
executor:
  forks: 0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forks")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("RIGGING_EXECUTOR_FORKS", "9")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Executor.Forks)
}
