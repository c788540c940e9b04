// Package config loads the dockwatch YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration.
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	DataDir  string         `yaml:"data_dir"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Alert    AlertConfig    `yaml:"alert"`
	Camera   CameraConfig   `yaml:"camera"`
	Tray     TrayConfig     `yaml:"tray"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	StaticDir string `yaml:"static_dir"`
}

// PipelineConfig controls the detection loop. Per-camera thresholds live in
// the database, not here.
type PipelineConfig struct {
	FrameInterval time.Duration `yaml:"frame_interval"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	Retention     string        `yaml:"retention"`
	MinFrames     int           `yaml:"min_frames"`
	DwellCellSize int           `yaml:"dwell_cell_size"`
	// Disabled starts the app with detection paused.
	Disabled bool `yaml:"disabled"`
}

// AlertConfig controls automatic loitering warnings.
type AlertConfig struct {
	AutoWarn  bool          `yaml:"auto_warn"`
	Cooldown  time.Duration `yaml:"cooldown"`
	PluginDir string        `yaml:"plugin_dir"`
	Timeout   time.Duration `yaml:"timeout"`
}

// CameraConfig names the camera used when none has been selected yet.
type CameraConfig struct {
	DefaultID     string `yaml:"default_id"`
	DefaultSource string `yaml:"default_source"`
}

// TrayConfig toggles the system tray icon.
type TrayConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{Alert: AlertConfig{AutoWarn: true}}
	cfg.setDefaults()
	return cfg
}

// Load reads the file at path. An empty path or a missing file yields the
// defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %w", err)
	}

	cfg := Config{Alert: AlertConfig{AutoWarn: true}}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg.setDefaults()
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}

	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}

	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}

	if c.Pipeline.FrameInterval == 0 {
		c.Pipeline.FrameInterval = 50 * time.Millisecond
	}
	if c.Pipeline.SweepInterval == 0 {
		c.Pipeline.SweepInterval = 2 * time.Second
	}
	if c.Pipeline.Retention == "" {
		c.Pipeline.Retention = "normal"
	}
	if c.Pipeline.MinFrames == 0 {
		c.Pipeline.MinFrames = 5
	}
	if c.Pipeline.DwellCellSize == 0 {
		c.Pipeline.DwellCellSize = 20
	}

	if c.Alert.Cooldown == 0 {
		c.Alert.Cooldown = 60 * time.Second
	}
	if c.Alert.Timeout == 0 {
		c.Alert.Timeout = 10 * time.Second
	}
	if c.Alert.PluginDir == "" {
		c.Alert.PluginDir = filepath.Join(c.DataDir, "plugins")
	}

	if c.Camera.DefaultID == "" {
		c.Camera.DefaultID = "default"
	}
	if c.Camera.DefaultSource == "" {
		c.Camera.DefaultSource = "0"
	}
}

// DatabasePath returns the SQLite file inside DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "dockwatch.db")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dockwatch"
	}
	return filepath.Join(home, ".dockwatch")
}
