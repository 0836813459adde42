package relay

import (
	"bufio"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"git.home.luguber.info/inful/previewer/internal/logfields"
)

const heartbeatInterval = 30 * time.Second

// SSEHandler streams one channel as Server-Sent Events. The channel comes
// from the {channel} route parameter and the subscription is implicit.
func (h *Hub) SSEHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		channel := chi.URLParam(r, "channel")
		if channel == "" {
			http.Error(w, "missing channel", http.StatusBadRequest)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "stream unsupported", http.StatusInternalServerError)
			return
		}

		c := h.Connect()
		defer h.Disconnect(c)
		h.Subscribe(c, channel)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		bw := bufio.NewWriter(w)
		flush := func() bool {
			if err := bw.Flush(); err != nil {
				return false
			}
			flusher.Flush()
			return true
		}
		if _, err := bw.WriteString(": connected\n\n"); err != nil || !flush() {
			return
		}
		slog.Debug("Relay event stream opened", logfields.ConnID(c.id), logfields.Channel(channel))

		hb := time.NewTicker(heartbeatInterval)
		defer hb.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-c.Done():
				return
			case <-hb.C:
				if _, err := bw.WriteString(": ping\n\n"); err != nil || !flush() {
					return
				}
			case text := <-c.Messages():
				writeEvent(bw, text)
				if !flush() {
					return
				}
			}
		}
	}
}

// writeEvent frames text as one SSE event, one data line per text line.
func writeEvent(bw *bufio.Writer, text string) {
	for _, line := range strings.Split(text, "\n") {
		_, _ = bw.WriteString("data: " + line + "\n")
	}
	_, _ = bw.WriteString("\n")
}
