package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	streamPollInterval = time.Second
	streamKeepAlive    = 15 * time.Second
)

// handleJobStream sends a "jobs" event with the full job list whenever it
// changes, and a comment line when nothing changed for streamKeepAlive.
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var last []byte
	var eventID int
	lastWrite := time.Now()

	push := func(now time.Time) error {
		payload, err := json.Marshal(s.queue.List())
		if err != nil {
			return err
		}
		switch {
		case !bytes.Equal(payload, last):
			eventID++
			_, err = fmt.Fprintf(w, "id: %d\nevent: jobs\ndata: %s\n\n", eventID, payload)
			last = payload
		case now.Sub(lastWrite) >= streamKeepAlive:
			_, err = fmt.Fprint(w, ": keepalive\n\n")
		default:
			return nil
		}
		if err != nil {
			return err
		}
		lastWrite = now
		flusher.Flush()
		return nil
	}

	if err := push(time.Now()); err != nil {
		return
	}

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case now := <-ticker.C:
			if err := push(now); err != nil {
				return
			}
		}
	}
}
