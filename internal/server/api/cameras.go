// Package api provides HTTP API handlers for the dockwatch camera registry.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ayusman/dockwatch/internal/pipeline"
	"github.com/ayusman/dockwatch/internal/store"
	"github.com/ayusman/dockwatch/internal/vision"
)

// LiveUpdater applies saved detection settings to the running pipeline.
// Implementations ignore cameras that are not active.
type LiveUpdater interface {
	ApplyConfig(cameraID string, cfg pipeline.DetectionConfig)
	ApplyROI(cameraID string, roi vision.Polygon)
}

// CameraHandler handles HTTP requests for camera resources and their
// detection settings.
type CameraHandler struct {
	store *store.Store
	live  LiveUpdater
}

// NewCameraHandler creates a new CameraHandler. live may be nil.
func NewCameraHandler(s *store.Store, live LiveUpdater) *CameraHandler {
	return &CameraHandler{store: s, live: live}
}

// ServeHTTP routes /api/cameras, /api/cameras/{id}, /api/cameras/{id}/config
// and /api/cameras/{id}/roi.
func (h *CameraHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/cameras")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	id, sub, _ := strings.Cut(path, "/")
	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			h.get(w, r, id)
		case http.MethodPut:
			h.update(w, r, id)
		case http.MethodDelete:
			h.delete(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "config":
		switch r.Method {
		case http.MethodGet:
			h.getConfig(w, r, id)
		case http.MethodPut:
			h.putConfig(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case "roi":
		switch r.Method {
		case http.MethodGet:
			h.getROI(w, r, id)
		case http.MethodPut:
			h.putROI(w, r, id)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

type cameraRequest struct {
	Name      string   `json:"name"`
	Location  string   `json:"location"`
	Source    string   `json:"source"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type cameraResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Location  string  `json:"location"`
	Source    string  `json:"source"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

type listCamerasResponse struct {
	Cameras []cameraResponse `json:"cameras"`
}

type roiPayload struct {
	Points vision.Polygon `json:"points"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func toResponse(c *store.Camera) cameraResponse {
	return cameraResponse{
		ID:        c.ID,
		Name:      c.Name,
		Location:  c.Location,
		Source:    c.Source,
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
		CreatedAt: c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt: c.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, errorResponse{Error: message})
}

func writeError(w http.ResponseWriter, status int, message string) {
	WriteError(w, status, message)
}

// lookup writes the error response itself and returns nil when the camera
// cannot be loaded.
func (h *CameraHandler) lookup(w http.ResponseWriter, id string) *store.Camera {
	camera, err := h.store.Cameras().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Camera not found")
			return nil
		}
		writeError(w, http.StatusInternalServerError, "Failed to get camera")
		return nil
	}
	return camera
}

// list handles GET /api/cameras.
func (h *CameraHandler) list(w http.ResponseWriter, r *http.Request) {
	cameras, err := h.store.Cameras().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list cameras")
		return
	}

	response := listCamerasResponse{
		Cameras: make([]cameraResponse, 0, len(cameras)),
	}
	for _, c := range cameras {
		response.Cameras = append(response.Cameras, toResponse(c))
	}

	WriteJSON(w, http.StatusOK, response)
}

// get handles GET /api/cameras/{id}.
func (h *CameraHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	camera := h.lookup(w, id)
	if camera == nil {
		return
	}
	WriteJSON(w, http.StatusOK, toResponse(camera))
}

// create handles POST /api/cameras.
func (h *CameraHandler) create(w http.ResponseWriter, r *http.Request) {
	var req cameraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}

	source := req.Source
	if source == "" {
		source = "0"
	}

	camera := &store.Camera{
		ID:       uuid.New().String(),
		Name:     req.Name,
		Location: req.Location,
		Source:   source,
	}
	if req.Latitude != nil {
		camera.Latitude = *req.Latitude
	}
	if req.Longitude != nil {
		camera.Longitude = *req.Longitude
	}

	if err := h.store.Cameras().Create(camera); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create camera")
		return
	}

	WriteJSON(w, http.StatusCreated, toResponse(camera))
}

// update handles PUT /api/cameras/{id}. Empty fields keep their value.
func (h *CameraHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	camera := h.lookup(w, id)
	if camera == nil {
		return
	}

	var req cameraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Name != "" {
		camera.Name = req.Name
	}
	if req.Location != "" {
		camera.Location = req.Location
	}
	if req.Source != "" {
		camera.Source = req.Source
	}
	if req.Latitude != nil {
		camera.Latitude = *req.Latitude
	}
	if req.Longitude != nil {
		camera.Longitude = *req.Longitude
	}

	if err := h.store.Cameras().Update(camera); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update camera")
		return
	}

	WriteJSON(w, http.StatusOK, toResponse(camera))
}

// delete handles DELETE /api/cameras/{id}.
func (h *CameraHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Cameras().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Camera not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete camera")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// loadSettings returns the stored settings, falling back to defaults for
// values that no longer parse.
func (h *CameraHandler) loadSettings(w http.ResponseWriter, id string) (pipeline.DetectionConfig, vision.Polygon, bool) {
	if h.lookup(w, id) == nil {
		return pipeline.DetectionConfig{}, nil, false
	}
	cfg, roi, err := h.store.Detection().Load(id)
	if err != nil && !errors.Is(err, pipeline.ErrConfigParse) {
		writeError(w, http.StatusInternalServerError, "Failed to load detection settings")
		return pipeline.DetectionConfig{}, nil, false
	}
	return cfg, roi, true
}

// getConfig handles GET /api/cameras/{id}/config.
func (h *CameraHandler) getConfig(w http.ResponseWriter, r *http.Request, id string) {
	cfg, _, ok := h.loadSettings(w, id)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, cfg)
}

// putConfig handles PUT /api/cameras/{id}/config. Fields missing from the
// body keep their stored value; out-of-range values are clamped.
func (h *CameraHandler) putConfig(w http.ResponseWriter, r *http.Request, id string) {
	cfg, _, ok := h.loadSettings(w, id)
	if !ok {
		return
	}

	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	cfg = cfg.Normalize()

	if err := h.store.Detection().SaveConfig(id, cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save detection config")
		return
	}
	if h.live != nil {
		h.live.ApplyConfig(id, cfg)
	}

	WriteJSON(w, http.StatusOK, cfg)
}

// getROI handles GET /api/cameras/{id}/roi.
func (h *CameraHandler) getROI(w http.ResponseWriter, r *http.Request, id string) {
	_, roi, ok := h.loadSettings(w, id)
	if !ok {
		return
	}
	if roi == nil {
		roi = vision.Polygon{}
	}
	WriteJSON(w, http.StatusOK, roiPayload{Points: roi})
}

// putROI handles PUT /api/cameras/{id}/roi. Fewer than three points clear
// the region so the whole frame is sampled.
func (h *CameraHandler) putROI(w http.ResponseWriter, r *http.Request, id string) {
	if h.lookup(w, id) == nil {
		return
	}

	var req roiPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	roi := req.Points
	if !roi.Restricts() {
		roi = vision.Polygon{}
	}

	if err := h.store.Detection().SaveROI(id, roi); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save ROI")
		return
	}
	if h.live != nil {
		h.live.ApplyROI(id, roi)
	}

	WriteJSON(w, http.StatusOK, roiPayload{Points: roi})
}
