package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/httpjson"
)

const sseHeartbeat = 15 * time.Second

// handleEvents diffuse les événements du bus en SSE.
// ?topic=... (répétable) restreint les topics reçus.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpjson.WriteError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := s.bus.Subscribe(r.URL.Query()["topic"]...)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: hello\ndata: {\"status\":\"connected\"}\n\n")
	if s.orch != nil {
		if b, err := json.Marshal(s.orch.Snapshot()); err == nil {
			fmt.Fprintf(w, "event: state\ndata: %s\n\n", b)
		}
	}
	flusher.Flush()

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Topic, evt.Payload)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprintf(w, "event: ping\ndata: {}\n\n")
			flusher.Flush()
		}
	}
}
