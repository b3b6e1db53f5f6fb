// Package ws pushes approval, validation, and pipeline events to
// connected dashboard clients over WebSocket. Clients may subscribe to a
// subset of event families via the topics query parameter.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
)

// Message is the envelope for all WebSocket messages. Type is a dotted
// event name such as "approval.requested"; its leading segment is the
// event family used for subscription filtering.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// client is one connected subscriber. A buffered send channel decouples
// broadcasters from slow readers; a client that falls behind is dropped.
type client struct {
	ws     *websocket.Conn
	topics map[string]struct{} // empty means all families
	send   chan []byte
	cancel context.CancelFunc
}

// wants reports whether the client subscribed to the event's family.
func (c *client) wants(eventType string) bool {
	if len(c.topics) == 0 {
		return true
	}
	_, ok := c.topics[eventFamily(eventType)]
	return ok
}

// eventFamily returns the segment before the first dot, so
// "approval.requested" and "approval.expired" share the family
// "approval".
func eventFamily(eventType string) string {
	if i := strings.IndexByte(eventType, '.'); i >= 0 {
		return eventType[:i]
	}
	return eventType
}

// Hub fans broadcast events out to every subscribed client.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
	}
}

// HandleWS upgrades the request to a WebSocket subscription. The topics
// query parameter narrows delivery to the named event families, e.g.
// ?topics=approval,validation; omitting it subscribes to everything.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // CORS handled by middleware
	})
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &client{
		ws:     ws,
		topics: parseTopics(r.URL.Query().Get("topics")),
		send:   make(chan []byte, 16),
		cancel: cancel,
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr, "topics", len(c.topics))

	// Write pump: the only goroutine that touches the connection for writes.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-c.send:
				if !ok {
					return
				}
				if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
					slog.Debug("websocket write failed", "error", err)
					h.remove(c)
					return
				}
			}
		}
	}()

	// Read loop (to detect disconnects and consume pings)
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()
}

// parseTopics splits a comma-separated topic list into a set.
func parseTopics(raw string) map[string]struct{} {
	topics := make(map[string]struct{})
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics[t] = struct{}{}
		}
	}
	return topics
}

// Broadcast sends a message to every client subscribed to its family.
// Clients whose send buffer is full are dropped rather than blocked on.
func (h *Hub) Broadcast(_ context.Context, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wants(msg.Type) {
			continue
		}
		select {
		case c.send <- data:
		default:
			slog.Debug("websocket client lagging, dropping", "type", msg.Type)
			go h.remove(c)
		}
	}
}

// ConnectionCount returns the number of active subscriptions.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		c.cancel()
		delete(h.clients, c)
		slog.Info("websocket disconnected")
	}
}
