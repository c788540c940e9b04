package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ayusman/dockwatch/internal/capture"
)

// DefaultStreamInterval paces the MJPEG stream at roughly 15 FPS.
const DefaultStreamInterval = 66 * time.Millisecond

// StreamHandler serves the latest processed frame as MJPEG with the ROI,
// track boxes and optionally the motion mask drawn on top.
type StreamHandler struct {
	monitor  Monitor
	interval time.Duration
}

// NewStreamHandler creates a new StreamHandler reading from m.
func NewStreamHandler(m Monitor) *StreamHandler {
	return &StreamHandler{monitor: m, interval: DefaultStreamInterval}
}

// ServeHTTP streams MJPEG frames until the client disconnects. A frame is
// written only when a new snapshot with a frame has been published.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var (
		lastSeq uint64
		sent    bool
	)
	for {
		snap := h.monitor.Snapshot()
		if snap != nil && snap.Frame != nil && (!sent || snap.Sequence != lastSeq) {
			buf, err := capture.RenderOverlay(snap.Frame, capture.Overlay{
				ROI:      snap.ROI,
				Objects:  snap.Objects,
				Mask:     snap.Mask,
				ShowMask: snap.Config.ShowMask,
				Now:      snap.Timestamp,
			})
			if err == nil {
				fmt.Fprintf(w, "--frame\r\n")
				fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
				fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(buf))
				w.Write(buf)
				fmt.Fprintf(w, "\r\n")

				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			}
			lastSeq, sent = snap.Sequence, true
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
