package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/dockwatch/internal/alert"
	"github.com/ayusman/dockwatch/internal/heatmap"
	"github.com/ayusman/dockwatch/internal/pipeline"
	"github.com/ayusman/dockwatch/internal/store"
	"github.com/ayusman/dockwatch/internal/track"
	"github.com/ayusman/dockwatch/internal/vision"
	"github.com/ayusman/dockwatch/testdata"
)

// fakeMonitor is an in-memory Monitor.
type fakeMonitor struct {
	mu         sync.Mutex
	snap       *pipeline.Snapshot
	camera     string
	known      map[string]bool
	enabled    bool
	autoWarn   bool
	warnErr    error
	warnings   int
	lastResult *alert.Result
	configs    map[string]pipeline.DetectionConfig
	rois       map[string]vision.Polygon
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{
		camera:   "default",
		known:    map[string]bool{"default": true, "dock": true},
		enabled:  true,
		autoWarn: true,
		configs:  make(map[string]pipeline.DetectionConfig),
		rois:     make(map[string]vision.Polygon),
	}
}

func (m *fakeMonitor) setSnapshot(s *pipeline.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = s
}

func (m *fakeMonitor) Snapshot() *pipeline.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

func (m *fakeMonitor) ActiveCamera() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camera
}

func (m *fakeMonitor) SelectCamera(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.known[id] {
		return store.ErrNotFound
	}
	m.camera = id
	return nil
}

func (m *fakeMonitor) DetectionEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

func (m *fakeMonitor) SetDetectionEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = on
}

func (m *fakeMonitor) AutoWarn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.autoWarn
}

func (m *fakeMonitor) SetAutoWarn(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoWarn = on
}

func (m *fakeMonitor) TriggerWarning(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.warnErr != nil {
		return m.warnErr
	}
	m.warnings++
	m.lastResult = &alert.Result{CameraID: m.camera, Manual: true}
	return nil
}

func (m *fakeMonitor) LastWarning() *alert.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastResult
}

func (m *fakeMonitor) ApplyConfig(id string, cfg pipeline.DetectionConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configs[id] = cfg
}

func (m *fakeMonitor) ApplyROI(id string, roi vision.Polygon) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rois[id] = roi
}

func sampleSnapshot(seq uint64) *pipeline.Snapshot {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return &pipeline.Snapshot{
		SourceID:  "default",
		Sequence:  seq,
		Timestamp: at,
		Frame:     testdata.BlankFrame(testdata.FrameWidth, testdata.FrameHeight, at),
		Objects: []track.Object{
			{ID: "a", Box: track.Rect{X: 20, Y: 20, Width: 20, Height: 20}, FirstDetectedAt: at.Add(-time.Minute), ConsecutiveFrames: 9, Loitering: true},
			{ID: "b", Box: track.Rect{X: 120, Y: 80, Width: 20, Height: 20}, FirstDetectedAt: at, ConsecutiveFrames: 1},
		},
		Loitering:     true,
		MotionPercent: 2.5,
		Dwell:         []heatmap.CellCount{{Cell: heatmap.Cell{X: 1, Y: 1}, Count: 9}, {Cell: heatmap.Cell{X: 6, Y: 4}, Count: 1}},
		DwellMax:      9,
		CellSize:      20,
		Config:        pipeline.DefaultDetectionConfig(),
	}
}

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	s := New(Config{})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/api/health", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, "ok", response["status"])
		assert.Contains(t, response, "uptime")
		assert.NotContains(t, response, "camera")
	})

	t.Run("only allows GET method", func(t *testing.T) {
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
			rec := serve(t, s, method, "/api/health", "")
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, method)
		}
	})

	t.Run("reports monitor state", func(t *testing.T) {
		s := New(Config{Monitor: newFakeMonitor()})
		rec := serve(t, s, http.MethodGet, "/api/health", "")

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		assert.Equal(t, "default", response["camera"])
		assert.Equal(t, true, response["detection"])
	})
}

func TestServer_NotFound(t *testing.T) {
	s := New(Config{})

	for _, path := range []string{"/api/nonexistent", "/api/tracks", "/api/cameras"} {
		rec := serve(t, s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestServer_StaticFiles(t *testing.T) {
	tmpDir := t.TempDir()
	testContent := "<html><body>dockwatch</body></html>"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte(testContent), 0644))
	cssContent := "body { color: red; }"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "style.css"), []byte(cssContent), 0644))

	s := New(Config{StaticDir: tmpDir})

	t.Run("serves index.html at root path", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, testContent, rec.Body.String())
	})

	t.Run("serves static files from configured directory", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/style.css", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, cssContent, rec.Body.String())
	})

	t.Run("returns 404 for non-existent static files", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/nonexistent.html", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestServer_ActiveCamera(t *testing.T) {
	m := newFakeMonitor()
	s := New(Config{Monitor: m})

	rec := serve(t, s, http.MethodGet, "/api/active-camera", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"default"}`, rec.Body.String())

	rec = serve(t, s, http.MethodPut, "/api/active-camera", `{"id":"dock"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"dock"}`, rec.Body.String())
	assert.Equal(t, "dock", m.ActiveCamera())

	rec = serve(t, s, http.MethodPut, "/api/active-camera", `{"id":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "dock", m.ActiveCamera())

	rec = serve(t, s, http.MethodPut, "/api/active-camera", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(t, s, http.MethodDelete, "/api/active-camera", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_Detection(t *testing.T) {
	m := newFakeMonitor()
	s := New(Config{Monitor: m})

	rec := serve(t, s, http.MethodGet, "/api/detection", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enabled":true,"autoWarn":true}`, rec.Body.String())

	rec = serve(t, s, http.MethodPut, "/api/detection", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"enabled":false,"autoWarn":true}`, rec.Body.String())
	assert.False(t, m.DetectionEnabled())

	rec = serve(t, s, http.MethodPut, "/api/detection", `{"autoWarn":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, m.AutoWarn())
	assert.False(t, m.DetectionEnabled())

	rec = serve(t, s, http.MethodPut, "/api/detection", `nope`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Tracks(t *testing.T) {
	m := newFakeMonitor()
	s := New(Config{Monitor: m})

	t.Run("no snapshot yet", func(t *testing.T) {
		rec := serve(t, s, http.MethodGet, "/api/tracks", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp tracksResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Empty(t, resp.Objects)
		assert.False(t, resp.Loitering)
	})

	t.Run("live objects", func(t *testing.T) {
		m.setSnapshot(sampleSnapshot(7))
		rec := serve(t, s, http.MethodGet, "/api/tracks", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp tracksResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "default", resp.CameraID)
		assert.Equal(t, uint64(7), resp.Sequence)
		assert.True(t, resp.Loitering)
		assert.Equal(t, 2.5, resp.MotionPercent)
		require.Len(t, resp.Objects, 2)
		assert.Equal(t, "a", resp.Objects[0].ID)
		assert.True(t, resp.Objects[0].Loitering)
		assert.Equal(t, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli(), resp.Timestamp)
	})
}

func TestServer_Heatmap(t *testing.T) {
	m := newFakeMonitor()
	s := New(Config{Monitor: m})

	rec := serve(t, s, http.MethodGet, "/api/heatmap", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cameraId":"","cellSize":0,"max":0,"cells":[]}`, rec.Body.String())

	rec = serve(t, s, http.MethodGet, "/api/heatmap.html", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	m.setSnapshot(sampleSnapshot(3))

	rec = serve(t, s, http.MethodGet, "/api/heatmap", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp heatmapResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 20, resp.CellSize)
	assert.Equal(t, 9, resp.Max)
	assert.Equal(t, []heatmap.CellCount{{Cell: heatmap.Cell{X: 1, Y: 1}, Count: 9}, {Cell: heatmap.Cell{X: 6, Y: 4}, Count: 1}}, resp.Cells)

	rec = serve(t, s, http.MethodGet, "/api/heatmap.html", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<title>Dwell Heatmap</title>")
}

func TestServer_Warning(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"sent", nil, http.StatusOK},
		{"in flight", alert.ErrInFlight, http.StatusConflict},
		{"no frame", alert.ErrNoEvidence, http.StatusServiceUnavailable},
		{"plugin failure", alert.ErrNoPlugins, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newFakeMonitor()
			m.warnErr = tt.err
			s := New(Config{Monitor: m})

			rec := serve(t, s, http.MethodPost, "/api/warning", "")
			assert.Equal(t, tt.want, rec.Code)
			if tt.err == nil {
				assert.Equal(t, 1, m.warnings)
				assert.Contains(t, rec.Body.String(), `"manual":true`)
			} else {
				assert.Contains(t, rec.Body.String(), tt.err.Error())
			}
		})
	}

	rec := serve(t, New(Config{Monitor: newFakeMonitor()}), http.MethodGet, "/api/warning", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_EvidenceWithoutFrame(t *testing.T) {
	s := New(Config{Monitor: newFakeMonitor()})

	rec := serve(t, s, http.MethodGet, "/api/evidence.jpg", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Evidence(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV encode in short mode")
	}

	m := newFakeMonitor()
	m.setSnapshot(sampleSnapshot(1))
	s := New(Config{Monitor: m})

	rec := serve(t, s, http.MethodGet, "/api/evidence.jpg", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	body := rec.Body.Bytes()
	require.Greater(t, len(body), 2)
	assert.Equal(t, []byte{0xFF, 0xD8}, body[:2])
}

func TestServer_CameraConfigAppliedLive(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Cameras().Create(&store.Camera{ID: "dock", Name: "Dock", Source: "0"}))

	m := newFakeMonitor()
	s := New(Config{Store: st, Monitor: m})

	rec := serve(t, s, http.MethodPut, "/api/cameras/dock/config", `{"threshold":30}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 30.0, m.configs["dock"].Threshold)

	rec = serve(t, s, http.MethodPut, "/api/cameras/dock/roi", `{"points":[{"x":0,"y":0},{"x":10,"y":0},{"x":0,"y":10}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, m.rois["dock"], 3)
}

func TestNew(t *testing.T) {
	t.Run("creates server with config", func(t *testing.T) {
		cfg := Config{StaticDir: "/some/path"}
		s := New(cfg)
		require.NotNil(t, s)
		assert.Equal(t, cfg.StaticDir, s.config.StaticDir)
	})

	t.Run("server implements http.Handler", func(t *testing.T) {
		var _ http.Handler = New(Config{})
	})
}
