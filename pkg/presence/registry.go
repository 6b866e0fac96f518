// Package presence tracks which live connection is in which room, under which
// user. It is a cache of connectivity, never of durable membership.
package presence

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Entry is one connection's presence in one room.
type Entry struct {
	ConnID   string
	Room     string
	UserID   int64
	Username string
}

type bucket struct {
	order   []string
	entries map[string]Entry
}

func (b *bucket) remove(connID string) {
	delete(b.entries, connID)
	for i, id := range b.order {
		if id == connID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			return
		}
	}
}

// Registry is safe for concurrent use. Each room bucket keeps insertion order.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*bucket
	byConn map[string]map[string]struct{} // connID -> rooms

	mirror Mirror
	logger *slog.Logger
}

// NewRegistry builds an empty registry. A nil mirror disables mirroring.
func NewRegistry(mirror Mirror, logger *slog.Logger) *Registry {
	if mirror == nil {
		mirror = NopMirror{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		rooms:  make(map[string]*bucket),
		byConn: make(map[string]map[string]struct{}),
		mirror: mirror,
		logger: logger,
	}
}

// Add inserts or overwrites connID's entry in room. An overwrite keeps the
// original position.
func (r *Registry) Add(ctx context.Context, room, connID string, userID int64, username string) {
	e := Entry{ConnID: connID, Room: room, UserID: userID, Username: username}

	r.mu.Lock()
	b, ok := r.rooms[room]
	if !ok {
		b = &bucket{entries: make(map[string]Entry)}
		r.rooms[room] = b
	}
	if _, exists := b.entries[connID]; !exists {
		b.order = append(b.order, connID)
	}
	b.entries[connID] = e
	rooms, ok := r.byConn[connID]
	if !ok {
		rooms = make(map[string]struct{})
		r.byConn[connID] = rooms
	}
	rooms[room] = struct{}{}
	r.mu.Unlock()

	if err := r.mirror.Add(ctx, room, connID, username); err != nil {
		r.logger.Warn("presence mirror add failed", "room", room, "conn", connID, "err", err)
	}
}

// Remove deletes connID's entry in room and reports whether one existed. An
// emptied room bucket is dropped.
func (r *Registry) Remove(ctx context.Context, room, connID string) (Entry, bool) {
	r.mu.Lock()
	b, ok := r.rooms[room]
	if !ok {
		r.mu.Unlock()
		return Entry{}, false
	}
	e, ok := b.entries[connID]
	if !ok {
		r.mu.Unlock()
		return Entry{}, false
	}
	b.remove(connID)
	if len(b.entries) == 0 {
		delete(r.rooms, room)
	}
	if rooms := r.byConn[connID]; rooms != nil {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.byConn, connID)
		}
	}
	r.mu.Unlock()

	if err := r.mirror.Remove(ctx, room, connID); err != nil {
		r.logger.Warn("presence mirror remove failed", "room", room, "conn", connID, "err", err)
	}
	return e, true
}

// Users returns a snapshot of room's entries in insertion order.
func (r *Registry) Users(room string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.rooms[room]
	if !ok {
		return []Entry{}
	}
	out := make([]Entry, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.entries[id])
	}
	return out
}

// Usernames returns the distinct usernames present in room, in order of
// first appearance.
func (r *Registry) Usernames(room string) []string {
	entries := r.Users(room)
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.Username]; ok {
			continue
		}
		seen[e.Username] = struct{}{}
		out = append(out, e.Username)
	}
	return out
}

// Has reports whether connID is present in room.
func (r *Registry) Has(room, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.rooms[room]
	if !ok {
		return false
	}
	_, ok = b.entries[connID]
	return ok
}

// Get returns connID's entry in room.
func (r *Registry) Get(room, connID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.rooms[room]
	if !ok {
		return Entry{}, false
	}
	e, ok := b.entries[connID]
	return e, ok
}

// FindAll returns every entry held by connID, ordered by room name.
func (r *Registry) FindAll(connID string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := r.byConn[connID]
	out := make([]Entry, 0, len(rooms))
	for room := range rooms {
		out = append(out, r.rooms[room].entries[connID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}

// Rooms lists the rooms connID is present in, sorted.
func (r *Registry) Rooms(connID string) []string {
	all := r.FindAll(connID)
	out := make([]string, 0, len(all))
	for _, e := range all {
		out = append(out, e.Room)
	}
	return out
}

// ConnectionsByUsername returns every connection of username in room, in
// insertion order.
func (r *Registry) ConnectionsByUsername(room, username string) []string {
	var out []string
	for _, e := range r.Users(room) {
		if e.Username == username {
			out = append(out, e.ConnID)
		}
	}
	return out
}
