package sse

import (
	"fmt"
	"net/http"

	"github.com/debemdeboas/inkwell/internal/config"
)

// Handler streams broadcasts for the topic named by the "draft" query
// parameter.
func (s *SSEClients) Handler(w http.ResponseWriter, r *http.Request) {
	topic := r.URL.Query().Get("draft")
	if topic == "" {
		http.Error(w, "Draft parameter required", http.StatusBadRequest)
		return
	}

	w.Header().Set(config.HCType, config.CTypeStream)
	w.Header().Set(config.HCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Del("X-Content-Type-Options")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", topic)
	flusher.Flush()

	client := &Client{
		Msg:   make(chan string, 8),
		Topic: topic,
	}
	s.Add(client)
	sseLogger.Debug().Str("topic", topic).Msg("SSE client connected")

	defer func() {
		s.Delete(client)
		sseLogger.Debug().Str("topic", topic).Msg("SSE client disconnected")
	}()

	done := r.Context().Done()
	for {
		select {
		case msg, ok := <-client.Msg:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: status\ndata: %s\n\n", msg)
			flusher.Flush()
		case <-done:
			return
		}
	}
}
