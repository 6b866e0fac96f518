// Package memory is an in-process Store. It is the default driver for local
// runs and the backing store for coordinator tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mahaj/roomchat/pkg/model"
	"github.com/mahaj/roomchat/pkg/snowflake"
	"github.com/mahaj/roomchat/pkg/store"
)

type memberKey struct {
	userID int64
	roomID int64
}

// Store keeps every entity in maps guarded by one mutex.
type Store struct {
	mu          sync.RWMutex
	ids         *snowflake.Node
	now         func() time.Time
	users       map[int64]model.User
	usersByName map[string]int64
	rooms       map[int64]model.Room
	roomsByName map[string]int64
	members     map[memberKey]model.Membership
	messages    map[int64][]model.Message
}

var _ store.Store = (*Store)(nil)

// New returns an empty store drawing ids from ids.
func New(ids *snowflake.Node) *Store {
	return &Store{
		ids:         ids,
		now:         func() time.Time { return time.Now().UTC() },
		users:       make(map[int64]model.User),
		usersByName: make(map[string]int64),
		rooms:       make(map[int64]model.Room),
		roomsByName: make(map[string]int64),
		members:     make(map[memberKey]model.Membership),
		messages:    make(map[int64][]model.Message),
	}
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByName[username]
	if !ok {
		return model.User{}, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
	}
	return s.users[id], nil
}

func (s *Store) CreateUser(ctx context.Context, username string) (model.User, error) {
	if err := ctx.Err(); err != nil {
		return model.User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.usersByName[username]; ok {
		return model.User{}, fmt.Errorf("user %q: %w", username, store.ErrConflict)
	}
	u := model.User{ID: s.ids.Generate(), Username: username, CreatedAt: s.now()}
	s.users[u.ID] = u
	s.usersByName[username] = u.ID
	return u, nil
}

func (s *Store) FindRoomByName(ctx context.Context, name string) (model.Room, error) {
	if err := ctx.Err(); err != nil {
		return model.Room{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.roomsByName[name]
	if !ok {
		return model.Room{}, fmt.Errorf("room %q: %w", name, store.ErrNotFound)
	}
	return s.rooms[id], nil
}

func (s *Store) CreateRoom(ctx context.Context, name string, ownerID int64) (model.Room, error) {
	if err := ctx.Err(); err != nil {
		return model.Room{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roomsByName[name]; ok {
		return model.Room{}, fmt.Errorf("room %q: %w", name, store.ErrConflict)
	}
	r := model.Room{ID: s.ids.Generate(), Name: name, OwnerID: ownerID, CreatedAt: s.now()}
	s.rooms[r.ID] = r
	s.roomsByName[name] = r.ID
	return r, nil
}

func (s *Store) TransferOwnership(ctx context.Context, roomID, newOwnerID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return fmt.Errorf("room %d: %w", roomID, store.ErrNotFound)
	}
	r.OwnerID = newOwnerID
	s.rooms[roomID] = r
	return nil
}

func (s *Store) UpsertMembership(ctx context.Context, userID, roomID int64) (model.Membership, error) {
	if err := ctx.Err(); err != nil {
		return model.Membership{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memberKey{userID: userID, roomID: roomID}
	if m, ok := s.members[key]; ok {
		return m, nil
	}
	m := model.Membership{UserID: userID, RoomID: roomID, JoinedAt: s.now()}
	s.members[key] = m
	return m, nil
}

func (s *Store) DeleteMembership(ctx context.Context, userID, roomID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := memberKey{userID: userID, roomID: roomID}
	if _, ok := s.members[key]; !ok {
		return fmt.Errorf("membership %d/%d: %w", userID, roomID, store.ErrNotFound)
	}
	delete(s.members, key)
	return nil
}

func (s *Store) ListMembers(ctx context.Context, roomID int64) ([]model.Member, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]model.Member, 0)
	for key, m := range s.members {
		if key.roomID != roomID {
			continue
		}
		members = append(members, model.Member{User: s.users[key.userID], JoinedAt: m.JoinedAt})
	}
	sort.Slice(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].ID < members[j].ID
	})
	return members, nil
}

func (s *Store) ListUserRooms(ctx context.Context, userID int64) ([]model.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]model.Room, 0)
	for key := range s.members {
		if key.userID == userID {
			rooms = append(rooms, s.rooms[key.roomID])
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	return rooms, nil
}

func (s *Store) CreateMessage(ctx context.Context, roomID, senderID int64, content string) (model.Message, error) {
	if err := ctx.Err(); err != nil {
		return model.Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return model.Message{}, fmt.Errorf("room %d: %w", roomID, store.ErrNotFound)
	}
	sender, ok := s.users[senderID]
	if !ok {
		return model.Message{}, fmt.Errorf("user %d: %w", senderID, store.ErrNotFound)
	}
	m := model.Message{
		ID:         s.ids.Generate(),
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: sender.Username,
		Content:    content,
		CreatedAt:  s.now(),
	}
	s.messages[roomID] = append(s.messages[roomID], m)
	return m, nil
}

func (s *Store) ListMessages(ctx context.Context, roomID int64) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Message, len(s.messages[roomID]))
	copy(out, s.messages[roomID])
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
