package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/dockwatch/internal/logger"
)

// DefaultPushInterval is how often the websocket feed checks for a new snapshot.
const DefaultPushInterval = 100 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local dashboard only
	},
}

// TracksHandler pushes every new snapshot to websocket clients as JSON.
type TracksHandler struct {
	monitor  Monitor
	log      *logger.Logger
	interval time.Duration
}

// NewTracksHandler creates a TracksHandler reading from m.
func NewTracksHandler(m Monitor, log *logger.Logger) *TracksHandler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &TracksHandler{
		monitor:  m,
		log:      log,
		interval: DefaultPushInterval,
	}
}

// ServeHTTP upgrades the connection and writes a message whenever the
// snapshot sequence changes. The current snapshot is sent immediately.
func (h *TracksHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	// reads detect the client going away
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	var (
		lastSeq uint64
		sent    bool
	)
	for {
		if snap := h.monitor.Snapshot(); snap != nil && (!sent || snap.Sequence != lastSeq) {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(newTracksResponse(snap)); err != nil {
				h.log.Debug("websocket write failed", "error", err)
				return
			}
			lastSeq, sent = snap.Sequence, true
		}

		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}
