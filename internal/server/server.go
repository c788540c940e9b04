// Package server provides the HTTP server for the dockwatch loitering monitor.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/ayusman/dockwatch/internal/alert"
	"github.com/ayusman/dockwatch/internal/capture"
	"github.com/ayusman/dockwatch/internal/logger"
	"github.com/ayusman/dockwatch/internal/pipeline"
	"github.com/ayusman/dockwatch/internal/server/api"
	"github.com/ayusman/dockwatch/internal/store"
	"github.com/ayusman/dockwatch/internal/track"
)

// Monitor is the running detection system as seen by the HTTP layer.
type Monitor interface {
	api.LiveUpdater

	Snapshot() *pipeline.Snapshot
	ActiveCamera() string
	SelectCamera(id string) error

	DetectionEnabled() bool
	SetDetectionEnabled(enabled bool)
	AutoWarn() bool
	SetAutoWarn(enabled bool)

	TriggerWarning(ctx context.Context) error
	LastWarning() *alert.Result
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Monitor   Monitor
	Log       *logger.Logger
}

// Server represents the HTTP server for the dockwatch application.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	log    *logger.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	log := config.Log
	if log == nil {
		log = logger.NewNopLogger()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		log:    log.Named("http"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Store != nil {
		var live api.LiveUpdater
		if s.config.Monitor != nil {
			live = s.config.Monitor
		}
		cameras := api.NewCameraHandler(s.config.Store, live)
		s.mux.Handle("/api/cameras", cameras)
		s.mux.Handle("/api/cameras/", cameras)
	}

	if m := s.config.Monitor; m != nil {
		s.mux.HandleFunc("/api/active-camera", s.handleActiveCamera)
		s.mux.HandleFunc("/api/detection", s.handleDetection)
		s.mux.HandleFunc("/api/tracks", s.handleTracks)
		s.mux.HandleFunc("/api/evidence.jpg", s.handleEvidence)
		s.mux.HandleFunc("/api/warning", s.handleWarning)
		s.mux.HandleFunc("/api/heatmap", s.handleHeatmap)
		s.mux.HandleFunc("/api/heatmap.html", s.handleHeatmapPage)
		s.mux.Handle("/api/ws", NewTracksHandler(m, s.log))
		s.mux.Handle("/api/stream", NewStreamHandler(m))
	}

	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if m := s.config.Monitor; m != nil {
		response["camera"] = m.ActiveCamera()
		response["detection"] = m.DetectionEnabled()
	}

	api.WriteJSON(w, http.StatusOK, response)
}

type activeCameraPayload struct {
	ID string `json:"id"`
}

// handleActiveCamera reports or switches the camera the pipeline reads.
func (s *Server) handleActiveCamera(w http.ResponseWriter, r *http.Request) {
	m := s.config.Monitor
	switch r.Method {
	case http.MethodGet:
		api.WriteJSON(w, http.StatusOK, activeCameraPayload{ID: m.ActiveCamera()})
	case http.MethodPut, http.MethodPost:
		var req activeCameraPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
			api.WriteError(w, http.StatusBadRequest, "Camera id is required")
			return
		}
		if err := m.SelectCamera(req.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				api.WriteError(w, http.StatusNotFound, "Camera not found")
				return
			}
			s.log.Error("camera switch failed", "camera", req.ID, "error", err)
			api.WriteError(w, http.StatusInternalServerError, "Failed to switch camera")
			return
		}
		api.WriteJSON(w, http.StatusOK, activeCameraPayload{ID: m.ActiveCamera()})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type detectionPayload struct {
	Enabled  *bool `json:"enabled,omitempty"`
	AutoWarn *bool `json:"autoWarn,omitempty"`
}

type detectionResponse struct {
	Enabled     bool          `json:"enabled"`
	AutoWarn    bool          `json:"autoWarn"`
	LastWarning *alert.Result `json:"lastWarning,omitempty"`
}

// handleDetection reports or toggles detection and automatic warnings.
func (s *Server) handleDetection(w http.ResponseWriter, r *http.Request) {
	m := s.config.Monitor
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut, http.MethodPost:
		var req detectionPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.WriteError(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		if req.Enabled != nil {
			m.SetDetectionEnabled(*req.Enabled)
		}
		if req.AutoWarn != nil {
			m.SetAutoWarn(*req.AutoWarn)
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	api.WriteJSON(w, http.StatusOK, detectionResponse{
		Enabled:     m.DetectionEnabled(),
		AutoWarn:    m.AutoWarn(),
		LastWarning: m.LastWarning(),
	})
}

// tracksResponse is the JSON form of a snapshot, shared by /api/tracks and
// the websocket feed.
type tracksResponse struct {
	CameraID      string         `json:"cameraId"`
	Sequence      uint64         `json:"sequence"`
	Timestamp     int64          `json:"timestamp"`
	Loitering     bool           `json:"loitering"`
	MotionPercent float64        `json:"motionPercent"`
	MotionActive  bool           `json:"motionActive"`
	Objects       []track.Object `json:"objects"`
}

func newTracksResponse(snap *pipeline.Snapshot) tracksResponse {
	resp := tracksResponse{Objects: []track.Object{}}
	if snap == nil {
		return resp
	}
	resp.CameraID = snap.SourceID
	resp.Sequence = snap.Sequence
	resp.Loitering = snap.Loitering
	resp.MotionPercent = snap.MotionPercent
	resp.MotionActive = snap.MotionActive
	if !snap.Timestamp.IsZero() {
		resp.Timestamp = snap.Timestamp.UnixMilli()
	}
	if snap.Objects != nil {
		resp.Objects = snap.Objects
	}
	return resp
}

// handleTracks returns the live tracked objects.
func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	api.WriteJSON(w, http.StatusOK, newTracksResponse(s.config.Monitor.Snapshot()))
}

// handleEvidence renders the current frame with loitering objects boxed.
func (s *Server) handleEvidence(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snap := s.config.Monitor.Snapshot()
	if snap == nil || snap.Frame == nil {
		api.WriteError(w, http.StatusServiceUnavailable, "No frame available")
		return
	}

	img, err := capture.ComposeEvidence(snap.Frame, snap.Objects, snap.Timestamp)
	if err != nil {
		s.log.Error("evidence render failed", "camera", snap.SourceID, "error", err)
		api.WriteError(w, http.StatusInternalServerError, "Failed to render evidence")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write(img)
}

// handleWarning sends a manual warning for the current frame.
func (s *Server) handleWarning(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := s.config.Monitor.TriggerWarning(r.Context())
	switch {
	case err == nil:
		api.WriteJSON(w, http.StatusOK, s.config.Monitor.LastWarning())
	case errors.Is(err, alert.ErrInFlight):
		api.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, alert.ErrNoEvidence):
		api.WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		api.WriteError(w, http.StatusBadGateway, err.Error())
	}
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		// streams end when ctx does
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
