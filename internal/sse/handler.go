package sse

import (
	"encoding/json/v2"
	"fmt"
	"net/http"
	"time"

	"github.com/aloudapp/aloud-server/internal/logger"
)

// writeDeadline bounds each event write. The manager's heartbeat arrives
// well inside it, so a healthy but quiet stream never trips the deadline
// while a hung client connection does.
const writeDeadline = 60 * time.Second

// Handler serves one SSE connection per request, pumping the client's queue
// until either side hangs up.
type Handler struct {
	manager *Manager
	log     *logger.Logger
}

// NewHandler creates the event stream endpoint.
func NewHandler(manager *Manager, log *logger.Logger) *Handler {
	return &Handler{manager: manager, log: log}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if r.Context().Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Keep reverse proxies from buffering the stream.
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.log.WithError(err).Error("response writer cannot stream")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	client, err := h.manager.Connect()
	if err != nil {
		h.log.WithError(err).Error("registering event client failed")
		http.Error(w, "Failed to establish connection", http.StatusInternalServerError)
		return
	}
	defer h.manager.Disconnect(client.ID)

	log := h.log.WithField("client_id", client.ID)

	if err := h.writeEvent(w, rc, "connected", map[string]string{
		"client_id": client.ID,
	}); err != nil {
		log.Warn("client gone before the stream started")
		return
	}

	for {
		select {
		case event, ok := <-client.EventChan:
			if !ok {
				// Manager closed the stream (server shutdown).
				return
			}
			if err := h.writeEvent(w, rc, string(event.Type), event); err != nil {
				log.Debug("client disconnected during send")
				return
			}
		case <-client.Done:
			return
		case <-r.Context().Done():
			log.Debug("client hung up")
			return
		}
	}
}

// writeEvent emits one `event:`/`data:` pair and flushes it, then pushes the
// write deadline out for the next one.
func (h *Handler) writeEvent(w http.ResponseWriter, rc *http.ResponseController, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}
	if err := rc.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		// Not every ResponseWriter supports deadlines; stream on without.
		h.log.Debug("write deadline unsupported", "error", err.Error())
	}
	return nil
}
