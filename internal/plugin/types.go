// Package plugin discovers external warning plugins and runs them with a
// JSON request on stdin.
package plugin

import (
	"encoding/json"
	"time"
)

// ActionLoitering is the action dockwatch requests when loitering is detected.
const ActionLoitering = "loitering"

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	Actions     []string `json:"actions"`
	// Config is passed to the plugin unchanged with every request.
	Config       json.RawMessage `json:"config,omitempty"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Handles reports whether the plugin declares action.
func (m Manifest) Handles(action string) bool {
	for _, a := range m.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Box is a tracked region in frame pixels.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Object describes one loitering object in a request.
type Object struct {
	ID                string    `json:"id"`
	Box               Box       `json:"box"`
	FirstDetectedAt   time.Time `json:"firstDetectedAt"`
	ConsecutiveFrames int       `json:"consecutiveFrames"`
}

// Request is sent to a plugin on stdin.
type Request struct {
	Action    string    `json:"action"`
	CameraID  string    `json:"cameraId"`
	Timestamp time.Time `json:"timestamp"`
	// Manual is set when an operator asked for the warning.
	Manual bool `json:"manual"`
	// Image is the JPEG evidence still, base64 encoded on the wire.
	Image   []byte          `json:"image,omitempty"`
	Objects []Object        `json:"objects,omitempty"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// Response is read from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
