package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Playback.SaveInterval)
	assert.Equal(t, 0.98, cfg.Playback.CompletionThreshold)
	assert.True(t, cfg.Playback.AutoPlayNext)
	assert.Equal(t, "@every 30m", cfg.Maintenance.DurationRefresh)
	assert.Equal(t, "127.0.0.1:6541", cfg.Addr())

	missing, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, cfg, missing)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 7000
playback:
  save_interval: 10s
  auto_play_next: false
maintenance:
  duration_refresh: "0 3 * * *"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Playback.SaveInterval)
	assert.False(t, cfg.Playback.AutoPlayNext)
	assert.Equal(t, "0 3 * * *", cfg.Maintenance.DurationRefresh)

	// Untouched keys keep their defaults.
	assert.Equal(t, 0.98, cfg.Playback.CompletionThreshold)
	assert.True(t, cfg.Playback.RememberPosition)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("COURSEDECK_PORT", "7100")
	t.Setenv("COURSEDECK_DB_PATH", "/tmp/x.db")
	t.Setenv("COURSEDECK_SAVE_INTERVAL", "2s")
	t.Setenv("COURSEDECK_DURATION_REFRESH", "off")
	t.Setenv("COURSEDECK_LOG_PRETTY", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Server.Port)
	assert.Equal(t, "/tmp/x.db", cfg.Database.Path)
	assert.Equal(t, 2*time.Second, cfg.Playback.SaveInterval)
	assert.Empty(t, cfg.Maintenance.DurationRefresh)
	assert.False(t, cfg.Logging.Pretty)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"threshold": "playback:\n  completion_threshold: 1.5\n",
		"interval":  "playback:\n  save_interval: 0s\n",
		"cron":      "maintenance:\n  duration_refresh: \"every now and then\"\n",
		"workers":   "maintenance:\n  probe_workers: 0\n",
		"yaml":      "server: [",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}
