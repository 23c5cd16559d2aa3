// Package realtime pushes job lifecycle notifications to websocket clients.
// Delivery is at most once: a client that is not joined, or whose buffer is
// full, misses the frame and can read the job snapshot instead.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Frame is the envelope of every message on the socket
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Notification is the payload of a forwarded lifecycle event
type Notification struct {
	Type   string `json:"type"`
	JobID  string `json:"jobId"`
	Reason string `json:"reason,omitempty"`
}

// Client is one connection's outbound side
type Client struct {
	id   string
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newClient(id string, buffer int) *Client {
	return &Client{id: id, send: make(chan []byte, buffer), done: make(chan struct{})}
}

// close stops delivery to the client. Safe to call more than once.
func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// enqueue never blocks; it reports false when the frame was dropped
func (c *Client) enqueue(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Hub tracks which clients are joined to which job rooms
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[*Client]struct{}
	joined map[*Client]map[string]struct{}
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  make(map[string]map[*Client]struct{}),
		joined: make(map[*Client]map[string]struct{}),
		logger: logger,
	}
}

// Join adds c to room
func (h *Hub) Join(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}

	rooms, ok := h.joined[c]
	if !ok {
		rooms = make(map[string]struct{})
		h.joined[c] = rooms
	}
	rooms[room] = struct{}{}
}

// Leave removes c from room
func (h *Hub) Leave(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(room, c)
}

// LeaveAll removes c from every room it joined
func (h *Hub) LeaveAll(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.joined[c] {
		h.leave(room, c)
	}
	delete(h.joined, c)
}

func (h *Hub) leave(room string, c *Client) {
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.joined[c]; ok {
		delete(rooms, room)
	}
}

// Members returns how many clients are joined to room
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Send encodes frame once and offers it to every client in room. It returns
// the number of clients that accepted it.
func (h *Hub) Send(room string, frame Frame) int {
	msg, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("Failed to encode frame",
			slog.String("event", frame.Event),
			slog.Any("error", err),
		)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.rooms[room] {
		if c.enqueue(msg) {
			delivered++
			continue
		}
		h.logger.Warn("Client buffer full, dropping frame",
			slog.String("client_id", c.id),
			slog.String("room", room),
			slog.String("event", frame.Event),
		)
	}
	return delivered
}
