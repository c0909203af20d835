package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir changes the working directory for the duration of the test,
// matching the behavior of t.Chdir (added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.tradewatch.dev", cfg.APIURL)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
	assert.True(t, cfg.AutoSync)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 7, cfg.RetentionDays)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.DataDir)
}

func TestLoadEnvOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("TRADEWATCH_API_URL", "https://staging.tradewatch.dev")
	t.Setenv("TRADEWATCH_BATCH_SIZE", "25")
	t.Setenv("TRADEWATCH_SYNC_INTERVAL", "5s")
	t.Setenv("TRADEWATCH_AUTO_SYNC", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://staging.tradewatch.dev", cfg.APIURL)
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.SyncInterval)
	assert.False(t, cfg.AutoSync)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	yaml := []byte("api_url: https://collector.example.com\nbatch_size: 10\nlog_level: debug\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://collector.example.com", cfg.APIURL)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched keys keep their defaults.
	assert.Equal(t, 7, cfg.RetentionDays)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"zero batch size", "TRADEWATCH_BATCH_SIZE", "0"},
		{"batch size above cap", "TRADEWATCH_BATCH_SIZE", "101"},
		{"zero retention", "TRADEWATCH_RETENTION_DAYS", "0"},
		{"zero sync interval", "TRADEWATCH_SYNC_INTERVAL", "0s"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			t.Setenv(tc.key, tc.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestRetention(t *testing.T) {
	cfg := &Config{RetentionDays: 7}
	assert.Equal(t, 7*24*time.Hour, cfg.Retention())
}
