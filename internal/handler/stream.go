package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/nimbus-im/nimbus/internal/engine"
	"github.com/nimbus-im/nimbus/pkg/logger"
	"github.com/nimbus-im/nimbus/pkg/metrics"
)

// StreamHandler pushes engine snapshots to UI collaborators over SSE.
type StreamHandler struct {
	engine *engine.Engine
	logger *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(eng *engine.Engine, log *logger.Logger) *StreamHandler {
	return &StreamHandler{engine: eng, logger: log}
}

// HeartbeatEvent keeps idle SSE connections alive.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

// Stream handles GET /api/v1/stream. Every engine mutation yields one
// snapshot event; a slow client skips to the most recent state rather than
// stalling the engine.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	snapshots := make(chan engine.Snapshot, 16)
	unsubscribe := h.engine.Subscribe(func(snap engine.Snapshot) {
		select {
		case snapshots <- snap:
		default:
			// Buffer full: drop; the client catches up on the next one.
		}
	})
	defer unsubscribe()

	// Initial state so the client does not wait for the first mutation.
	sendSSEEvent(w, flusher, "snapshot", h.engine.Snapshot())

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("SSE client disconnected")
			return

		case snap := <-snapshots:
			sendSSEEvent(w, flusher, "snapshot", snap)

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &HeartbeatEvent{
				Timestamp: time.Now(),
			})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
