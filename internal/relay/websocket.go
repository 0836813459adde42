package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"

	"git.home.luguber.info/inful/previewer/internal/logfields"
)

// Frame event names on the websocket.
const (
	EventSubscribe = "subscribe"
	EventMessage   = "message"
)

// Frame is the JSON envelope exchanged on the websocket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// WebSocketHandler serves the live channel protocol. Clients send
// {"event":"subscribe","data":"<channel>"} and receive
// {"event":"message","data":"<text>"} frames.
func (h *Hub) WebSocketHandler() http.Handler {
	return websocket.Server{Handler: h.serveWebSocket}
}

func (h *Hub) serveWebSocket(ws *websocket.Conn) {
	c := h.Connect()
	defer h.Disconnect(c)
	logger := slog.With(logfields.ConnID(c.id), logfields.RemoteAddr(ws.Request().RemoteAddr))
	logger.Debug("Relay websocket connected")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeFrames(ws, c, logger)
	}()

	for {
		var raw string
		if err := websocket.Message.Receive(ws, &raw); err != nil {
			break
		}
		var f Frame
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			logger.Debug("Ignoring malformed websocket frame", logfields.Error(err))
			continue
		}
		if f.Event != EventSubscribe {
			logger.Debug("Ignoring websocket event", "event", f.Event)
			continue
		}
		var channel string
		if err := json.Unmarshal(f.Data, &channel); err != nil || channel == "" {
			logger.Debug("Ignoring subscribe without a channel")
			continue
		}
		h.Subscribe(c, channel)
	}

	h.Disconnect(c)
	wg.Wait()
	logger.Debug("Relay websocket closed")
}

// writeFrames is the only writer on ws.
func (h *Hub) writeFrames(ws *websocket.Conn, c *Client, logger *slog.Logger) {
	defer func() { _ = ws.Close() }()
	for {
		select {
		case <-c.Done():
			return
		case text := <-c.Messages():
			if err := websocket.JSON.Send(ws, outFrame{Event: EventMessage, Data: text}); err != nil {
				logger.Debug("Relay websocket write failed", logfields.Error(err))
				return
			}
		}
	}
}
