package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mahaj/roomchat/pkg/room"
	"github.com/mahaj/roomchat/pkg/wire"
)

var ErrUnknownConnection = errors.New("unknown connection")

// Hub tracks live clients and their room channels. It is the room
// Broadcaster: sends never block, a client whose buffer is full is dropped.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client            // conn id -> client
	channels map[string]map[string]*Client // room -> conn id -> client
	logger   *slog.Logger
}

var _ room.Broadcaster = (*Hub)(nil)

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:  make(map[string]*Client),
		channels: make(map[string]map[string]*Client),
		logger:   logger,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client registered", "conn", c.ID)
}

// Unregister removes c from every channel and closes its send buffer. It
// reports whether c was still registered.
func (h *Hub) Unregister(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeLocked(c)
}

func (h *Hub) removeLocked(c *Client) bool {
	if cur, ok := h.clients[c.ID]; !ok || cur != c {
		return false
	}
	delete(h.clients, c.ID)
	for roomName, members := range h.channels {
		if _, ok := members[c.ID]; ok {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(h.channels, roomName)
			}
		}
	}
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return true
}

// drop disconnects slow clients found while holding the read lock.
func (h *Hub) drop(slow []*Client) {
	if len(slow) == 0 {
		return
	}
	h.mu.Lock()
	for _, c := range slow {
		if h.removeLocked(c) {
			h.logger.Warn("dropping slow client", "conn", c.ID)
		}
	}
	h.mu.Unlock()
}

// enqueue must be called with h.mu held (read or write).
func (h *Hub) enqueue(c *Client, msg []byte) bool {
	if c.closed {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (h *Hub) JoinChannel(_ context.Context, connID, roomName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return fmt.Errorf("join %s: %w %s", roomName, ErrUnknownConnection, connID)
	}
	members, ok := h.channels[roomName]
	if !ok {
		members = make(map[string]*Client)
		h.channels[roomName] = members
	}
	members[connID] = c
	return nil
}

func (h *Hub) LeaveChannel(_ context.Context, connID, roomName string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.channels[roomName]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.channels, roomName)
		}
	}
	return nil
}

func (h *Hub) BroadcastToRoom(_ context.Context, roomName, event string, payload any) error {
	msg, err := wire.Encode(event, "", payload)
	if err != nil {
		return err
	}

	var slow []*Client
	h.mu.RLock()
	for _, c := range h.channels[roomName] {
		if !h.enqueue(c, msg) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	h.drop(slow)
	return nil
}

func (h *Hub) SendToConnection(_ context.Context, connID, event string, payload any) error {
	msg, err := wire.Encode(event, "", payload)
	if err != nil {
		return err
	}
	return h.send(connID, msg)
}

// send queues a raw frame for connID.
func (h *Hub) send(connID string, msg []byte) error {
	h.mu.RLock()
	c, ok := h.clients[connID]
	delivered := ok && h.enqueue(c, msg)
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("send: %w %s", ErrUnknownConnection, connID)
	}
	if !delivered {
		h.drop([]*Client{c})
	}
	return nil
}

// Members returns the connection ids subscribed to roomName.
func (h *Hub) Members(roomName string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.channels[roomName]))
	for id := range h.channels[roomName] {
		out = append(out, id)
	}
	return out
}

// Len returns the number of registered clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unregisters every client, which ends their write pumps.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		h.removeLocked(c)
	}
}
