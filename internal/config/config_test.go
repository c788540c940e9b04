package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dockwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 50*time.Millisecond, cfg.Pipeline.FrameInterval)
	assert.Equal(t, 2*time.Second, cfg.Pipeline.SweepInterval)
	assert.Equal(t, "normal", cfg.Pipeline.Retention)
	assert.Equal(t, 5, cfg.Pipeline.MinFrames)
	assert.Equal(t, 20, cfg.Pipeline.DwellCellSize)
	assert.Equal(t, 60*time.Second, cfg.Alert.Cooldown)
	assert.True(t, cfg.Alert.AutoWarn)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, `
log:
  level: debug
  format: json
server:
  addr: ":9000"
data_dir: `+dir+`
pipeline:
  frame_interval: 100ms
  retention: persistent
alert:
  auto_warn: false
  cooldown: 30s
camera:
  default_id: dock-north
  default_source: rtsp://10.0.0.5/stream
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 100*time.Millisecond, cfg.Pipeline.FrameInterval)
	assert.Equal(t, "persistent", cfg.Pipeline.Retention)
	assert.False(t, cfg.Alert.AutoWarn)
	assert.Equal(t, 30*time.Second, cfg.Alert.Cooldown)
	assert.Equal(t, filepath.Join(dir, "plugins"), cfg.Alert.PluginDir)
	assert.Equal(t, "dock-north", cfg.Camera.DefaultID)
	assert.Equal(t, filepath.Join(dir, "dockwatch.db"), cfg.DatabasePath())
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "pipeline: [not, a, map")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "bad level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "log.level"},
		{name: "bad format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "log.format"},
		{name: "bad retention", mutate: func(c *Config) { c.Pipeline.Retention = "forever" }, wantErr: "pipeline.retention"},
		{name: "zero frame interval", mutate: func(c *Config) { c.Pipeline.FrameInterval = 0 }, wantErr: "frame_interval"},
		{name: "negative cooldown", mutate: func(c *Config) { c.Alert.Cooldown = -time.Second }, wantErr: "alert.cooldown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
