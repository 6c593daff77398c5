// Package websocket streams new submissions to dashboard clients watching a
// form. Each connection subscribes to exactly one form; broadcasts fan out
// only to that form's watchers.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Message is one live feed event.
type Message struct {
	Type         string    `json:"type"`
	FormID       int64     `json:"form_id"`
	SubmissionID int64     `json:"submission_id,omitempty"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// NewSubmissionMessage announces a submission that just landed on a form.
func NewSubmissionMessage(formID, submissionID int64, createdAt time.Time) Message {
	return Message{
		Type:         "submission_created",
		FormID:       formID,
		SubmissionID: submissionID,
		CreatedAt:    createdAt.UTC(),
	}
}

// Hub maintains the set of active WebSocket clients per form.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger.With("component", "websocket"),
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to every client watching the message's form.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if c.formID != msg.FormID {
			continue
		}
		select {
		case c.send <- data:
		default:
			// Client buffer full — drop message to avoid blocking
		}
	}
}

// WatcherCount returns the number of clients watching the given form.
func (h *Hub) WatcherCount(formID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clients {
		if c.formID == formID {
			n++
		}
	}
	return n
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
