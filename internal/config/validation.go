package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		problems = append(problems, fmt.Sprintf("invalid log.level: %s (must be: debug, info, warn, error)", c.Log.Level))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		problems = append(problems, fmt.Sprintf("invalid log.format: %s (must be: console or json)", c.Log.Format))
	}

	if c.Server.Addr == "" {
		problems = append(problems, "server.addr is required")
	}
	if c.DataDir == "" {
		problems = append(problems, "data_dir is required")
	}

	if c.Pipeline.FrameInterval <= 0 {
		problems = append(problems, fmt.Sprintf("pipeline.frame_interval must be > 0, got: %v", c.Pipeline.FrameInterval))
	}
	if c.Pipeline.SweepInterval <= 0 {
		problems = append(problems, fmt.Sprintf("pipeline.sweep_interval must be > 0, got: %v", c.Pipeline.SweepInterval))
	}
	if c.Pipeline.Retention != "normal" && c.Pipeline.Retention != "persistent" {
		problems = append(problems, fmt.Sprintf("invalid pipeline.retention: %s (must be: normal or persistent)", c.Pipeline.Retention))
	}
	if c.Pipeline.MinFrames < 0 {
		problems = append(problems, fmt.Sprintf("pipeline.min_frames must be >= 0, got: %d", c.Pipeline.MinFrames))
	}
	if c.Pipeline.DwellCellSize < 0 {
		problems = append(problems, fmt.Sprintf("pipeline.dwell_cell_size must be >= 0, got: %d", c.Pipeline.DwellCellSize))
	}

	if c.Alert.Cooldown < 0 {
		problems = append(problems, fmt.Sprintf("alert.cooldown must be >= 0, got: %v", c.Alert.Cooldown))
	}
	if c.Alert.Timeout <= 0 {
		problems = append(problems, fmt.Sprintf("alert.timeout must be > 0, got: %v", c.Alert.Timeout))
	}

	if c.Camera.DefaultID == "" {
		problems = append(problems, "camera.default_id is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}
