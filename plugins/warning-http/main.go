// Package main provides a warning plugin that forwards the evidence still
// to an HTTP endpoint, which answers with the warning text to announce.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action   string          `json:"action"`
	CameraID string          `json:"cameraId"`
	Manual   bool            `json:"manual"`
	Image    []byte          `json:"image"`
	Config   json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Config is read from the manifest or the request.
type Config struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// warningPayload is the body the warning endpoint expects.
type warningPayload struct {
	ImageData string `json:"imageData"`
	CameraID  string `json:"cameraId"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	if req.Action != "loitering" {
		writeErrorResponse(fmt.Sprintf("unknown action: %s", req.Action))
		return
	}

	cfg := Config{TimeoutSeconds: 8}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeErrorResponse(fmt.Sprintf("failed to parse config: %v", err))
			return
		}
	}
	if env := os.Getenv("DOCKWATCH_WARNING_URL"); env != "" {
		cfg.URL = env
	}
	if cfg.URL == "" {
		writeErrorResponse("url is required")
		return
	}
	if len(req.Image) == 0 {
		writeErrorResponse("image is required")
		return
	}

	data, err := postWarning(cfg, req)
	if err != nil {
		writeErrorResponse(fmt.Sprintf("action %s failed: %v", req.Action, err))
		return
	}

	writeSuccessResponse(data)
}

// postWarning sends the still and returns the endpoint's JSON reply.
func postWarning(cfg Config, req Request) (json.RawMessage, error) {
	body, err := json.Marshal(warningPayload{
		ImageData: base64.StdEncoding.EncodeToString(req.Image),
		CameraID:  req.CameraID,
	})
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	resp, err := client.Post(cfg.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(reply))
	}
	if !json.Valid(reply) {
		return nil, fmt.Errorf("endpoint returned invalid JSON")
	}
	return reply, nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{
		Success: false,
		Error:   errMsg,
	})
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse(data json.RawMessage) {
	json.NewEncoder(os.Stdout).Encode(Response{
		Success: true,
		Data:    data,
	})
}
