package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

const streamKeepAlive = 25 * time.Second

// streamSubmissions sends the board as server-sent events: one "submissions"
// event per snapshot, and a comment line as keep-alive.
func (s *HTTPServer) streamSubmissions(w http.ResponseWriter, r *http.Request) {
	updates := s.service.WatchSubmissions(r.Context())

	controller := http.NewResponseController(w)
	_ = controller.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := controller.Flush(); err != nil {
		log.WithError(err).Warn("stream: response does not support flushing")
		return
	}

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case items, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(map[string]any{"items": items})
			if err != nil {
				log.WithError(err).Error("stream: encode snapshot failed")
				return
			}
			if _, err := fmt.Fprintf(w, "event: submissions\ndata: %s\n\n", data); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		if err := controller.Flush(); err != nil {
			return
		}
	}
}
