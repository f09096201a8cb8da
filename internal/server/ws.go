package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// writeTimeout bounds a single event write to one websocket client.
const writeTimeout = 5 * time.Second

// Event is one message pushed to websocket subscribers.
type Event struct {
	// Type names the event ("transcript-saved", "format-changed",
	// "import-done", "cache-cleared").
	Type string `json:"type"`
	// Data is the event payload, shaped per type.
	Data any `json:"data,omitempty"`
}

// Hub fans events out to the connected websocket clients. A client that
// cannot be written to is dropped. All methods are safe for concurrent use.
type Hub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewHub returns a hub with no clients.
func NewHub() *Hub {
	return &Hub{conns: make(map[*websocket.Conn]struct{})}
}

// Handle upgrades the request to a websocket and keeps the connection
// subscribed until the client goes away.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	h.add(conn)
	defer h.remove(conn)
	slog.Debug("websocket client connected", "clients", h.Len())

	// Clients only listen; read until the connection drops so closes and
	// pings are processed.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			return
		}
	}
}

// Broadcast sends ev to every connected client, dropping clients whose
// writes fail.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("websocket event encode failed", "type", ev.Type, "error", err)
		return
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.Write(ctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			slog.Debug("dropping websocket client", "error", err)
			c.Close(websocket.StatusGoingAway, "write failed")
			h.remove(c)
		}
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) add(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}
