// Package typing tracks which users are typing in each room. Entries live
// until an explicit stop, leave or disconnect; there is no timeout.
package typing

import "sync"

type set struct {
	order []string
	in    map[string]struct{}
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	rooms map[string]*set
}

func NewTracker() *Tracker {
	return &Tracker{rooms: make(map[string]*set)}
}

// Mark adds username to room's typing set and reports whether it changed.
func (t *Tracker) Mark(room, username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.rooms[room]
	if !ok {
		s = &set{in: make(map[string]struct{})}
		t.rooms[room] = s
	}
	if _, ok := s.in[username]; ok {
		return false
	}
	s.in[username] = struct{}{}
	s.order = append(s.order, username)
	return true
}

// Clear removes username from room's typing set and reports whether it changed.
func (t *Tracker) Clear(room, username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.rooms[room]
	if !ok {
		return false
	}
	if _, ok := s.in[username]; !ok {
		return false
	}
	delete(s.in, username)
	for i, u := range s.order {
		if u == username {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if len(s.in) == 0 {
		delete(t.rooms, room)
	}
	return true
}

// Typers returns room's typing set in the order users started typing.
func (t *Tracker) Typers(room string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.rooms[room]
	if !ok {
		return []string{}
	}
	return append([]string(nil), s.order...)
}

// IsTyping reports whether username is in room's typing set.
func (t *Tracker) IsTyping(room, username string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.rooms[room]
	if !ok {
		return false
	}
	_, ok = s.in[username]
	return ok
}
