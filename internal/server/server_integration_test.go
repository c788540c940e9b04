package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/dockwatch/internal/store"
)

func TestAPI_CameraWorkflow(t *testing.T) {
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close()

	ts := httptest.NewServer(New(Config{Store: st}))
	defer ts.Close()
	client := ts.Client()

	// create
	resp, err := client.Post(ts.URL+"/api/cameras", "application/json",
		bytes.NewBufferString(`{"name":"Loading dock","source":"1","latitude":1.5,"longitude":103.8}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	assert.Equal(t, "Loading dock", created.Name)

	// list
	resp, err = client.Get(ts.URL + "/api/cameras")
	require.NoError(t, err)
	var listed struct {
		Cameras []struct {
			ID string `json:"id"`
		} `json:"cameras"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	resp.Body.Close()
	require.Len(t, listed.Cameras, 1)
	assert.Equal(t, created.ID, listed.Cameras[0].ID)

	// per-camera config
	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/cameras/"+created.ID+"/config", strings.NewReader(`{"loiteringThresholdMs":30000}`))
	resp, err = client.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	cfg, _, err := st.Detection().Load(created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), cfg.LoiteringThresholdMs)

	// delete
	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/api/cameras/"+created.ID, nil)
	resp, err = client.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp, err = client.Get(ts.URL + "/api/cameras/" + created.ID)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_HealthCheck(t *testing.T) {
	ts := httptest.NewServer(New(Config{}))
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health struct {
		Status string `json:"status"`
		Uptime string `json:"uptime"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health.Status)
}

func TestAPI_TracksWebsocket(t *testing.T) {
	m := newFakeMonitor()
	m.setSnapshot(sampleSnapshot(1))

	ts := httptest.NewServer(New(Config{Monitor: m}))
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first tracksResponse
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, uint64(1), first.Sequence)
	assert.True(t, first.Loitering)
	assert.Len(t, first.Objects, 2)

	next := sampleSnapshot(2)
	next.Loitering = false
	next.Objects = nil
	m.setSnapshot(next)

	var second tracksResponse
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, uint64(2), second.Sequence)
	assert.False(t, second.Loitering)
	assert.Empty(t, second.Objects)
}

func TestAPI_Stream(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping OpenCV encode in short mode")
	}

	m := newFakeMonitor()
	m.setSnapshot(sampleSnapshot(1))

	ts := httptest.NewServer(New(Config{Monitor: m}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "--frame\r\n", line)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "Content-Type: image/jpeg\r\n", line)
}
