package pipeline

import (
	"errors"
	"time"

	"github.com/ayusman/dockwatch/internal/vision"
)

// ErrConfigParse is wrapped by ConfigStore implementations when a stored
// config or ROI cannot be decoded. The accompanying values are the defaults.
var ErrConfigParse = errors.New("config parse error")

// DetectionConfig holds the per-camera detection settings.
type DetectionConfig struct {
	// Threshold is the mean absolute channel difference (0-255) a pixel must
	// exceed to count as motion.
	Threshold float64 `json:"threshold"`
	// MinAreaPercent is the ROI-relative motion percentage at which a tick
	// counts as motion-active.
	MinAreaPercent float64 `json:"minAreaPercent"`
	// MinComponentSize is the smallest bounding-box area kept by component
	// extraction.
	MinComponentSize     int   `json:"minComponentSize"`
	LoiteringThresholdMs int64 `json:"loiteringThresholdMs"`
	ShowMask             bool  `json:"showMask"`
}

// DefaultDetectionConfig returns the settings used when a camera has none stored.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		Threshold:            70,
		MinAreaPercent:       15,
		MinComponentSize:     100,
		LoiteringThresholdMs: 45000,
		ShowMask:             true,
	}
}

// Normalize clamps out-of-range values: a negative Threshold or a
// non-positive LoiteringThresholdMs takes the default, and the rest are
// clamped to their valid ranges. Zero Threshold and MinComponentSize are
// kept. Filling in absent fields is up to the caller, which decodes over
// DefaultDetectionConfig.
func (c DetectionConfig) Normalize() DetectionConfig {
	d := DefaultDetectionConfig()
	if c.Threshold < 0 {
		c.Threshold = d.Threshold
	}
	if c.Threshold > 255 {
		c.Threshold = 255
	}
	if c.MinAreaPercent < 0 {
		c.MinAreaPercent = 0
	}
	if c.MinAreaPercent > 100 {
		c.MinAreaPercent = 100
	}
	if c.MinComponentSize < 0 {
		c.MinComponentSize = 0
	}
	if c.LoiteringThresholdMs <= 0 {
		c.LoiteringThresholdMs = d.LoiteringThresholdMs
	}
	return c
}

// LoiteringThreshold returns LoiteringThresholdMs as a duration.
func (c DetectionConfig) LoiteringThreshold() time.Duration {
	return time.Duration(c.LoiteringThresholdMs) * time.Millisecond
}

// ConfigStore persists detection settings and ROI polygons per camera.
//
// Load returns the defaults and an empty polygon for unknown cameras. When a
// stored value is corrupt it returns the defaults together with an error
// wrapping ErrConfigParse.
type ConfigStore interface {
	Load(cameraID string) (DetectionConfig, vision.Polygon, error)
	SaveConfig(cameraID string, cfg DetectionConfig) error
	SaveROI(cameraID string, roi vision.Polygon) error
}
