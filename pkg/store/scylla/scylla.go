// Package scylla stores chat state in ScyllaDB (or Cassandra) through gocql.
// Username, room name and membership uniqueness use lightweight transactions
// (IF NOT EXISTS / IF EXISTS), so concurrent writers on different gateways
// still agree on a single winner.
package scylla

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gocql/gocql"

	"github.com/mahaj/roomchat/pkg/db"
	"github.com/mahaj/roomchat/pkg/model"
	"github.com/mahaj/roomchat/pkg/snowflake"
	"github.com/mahaj/roomchat/pkg/store"
)

type Store struct {
	db  *db.Session
	ids *snowflake.Node
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

// New wraps an open session. The schema must already exist (db.EnsureSchema).
func New(session *db.Session, ids *snowflake.Node) *Store {
	return &Store{db: session, ids: ids, now: time.Now}
}

func (s *Store) Close() error {
	s.db.Close()
	return nil
}

func (s *Store) timestamp() time.Time {
	// Cassandra timestamps carry milliseconds.
	return s.now().UTC().Truncate(time.Millisecond)
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gocql.ErrNotFound) {
		return fmt.Errorf(format+": %w", append(args, store.ErrNotFound)...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (model.User, error) {
	u := model.User{Username: username}
	err := s.db.Query(`SELECT id, created_at FROM users WHERE username = ?`, username).
		WithContext(ctx).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return model.User{}, notFound(err, "user %q", username)
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, username string) (model.User, error) {
	u := model.User{ID: s.ids.Generate(), Username: username, CreatedAt: s.timestamp()}
	applied, err := s.db.Query(`INSERT INTO users (username, id, created_at) VALUES (?, ?, ?) IF NOT EXISTS`,
		u.Username, u.ID, u.CreatedAt).WithContext(ctx).MapScanCAS(map[string]any{})
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	if !applied {
		return model.User{}, fmt.Errorf("user %q: %w", username, store.ErrConflict)
	}
	if err := s.db.Query(`INSERT INTO users_by_id (id, username) VALUES (?, ?)`, u.ID, u.Username).
		WithContext(ctx).Exec(); err != nil {
		return model.User{}, fmt.Errorf("index user: %w", err)
	}
	return u, nil
}

func (s *Store) FindRoomByName(ctx context.Context, name string) (model.Room, error) {
	r := model.Room{Name: name}
	var owner *int64
	err := s.db.Query(`SELECT id, owner_id, created_at FROM rooms WHERE name = ?`, name).
		WithContext(ctx).Scan(&r.ID, &owner, &r.CreatedAt)
	if err != nil {
		return model.Room{}, notFound(err, "room %q", name)
	}
	if owner != nil {
		r.OwnerID = *owner
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return r, nil
}

func ownerValue(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func (s *Store) CreateRoom(ctx context.Context, name string, ownerID int64) (model.Room, error) {
	r := model.Room{ID: s.ids.Generate(), Name: name, OwnerID: ownerID, CreatedAt: s.timestamp()}
	applied, err := s.db.Query(`INSERT INTO rooms (name, id, owner_id, created_at) VALUES (?, ?, ?, ?) IF NOT EXISTS`,
		r.Name, r.ID, ownerValue(ownerID), r.CreatedAt).WithContext(ctx).MapScanCAS(map[string]any{})
	if err != nil {
		return model.Room{}, fmt.Errorf("create room: %w", err)
	}
	if !applied {
		return model.Room{}, fmt.Errorf("room %q: %w", name, store.ErrConflict)
	}
	if err := s.db.Query(`INSERT INTO rooms_by_id (id, name) VALUES (?, ?)`, r.ID, r.Name).
		WithContext(ctx).Exec(); err != nil {
		return model.Room{}, fmt.Errorf("index room: %w", err)
	}
	return r, nil
}

func (s *Store) roomName(ctx context.Context, roomID int64) (string, error) {
	var name string
	err := s.db.Query(`SELECT name FROM rooms_by_id WHERE id = ?`, roomID).WithContext(ctx).Scan(&name)
	if err != nil {
		return "", notFound(err, "room %d", roomID)
	}
	return name, nil
}

func (s *Store) TransferOwnership(ctx context.Context, roomID, newOwnerID int64) error {
	name, err := s.roomName(ctx, roomID)
	if err != nil {
		return err
	}
	// Conditional so it orders with the IF NOT EXISTS insert on the same partition.
	applied, err := s.db.Query(`UPDATE rooms SET owner_id = ? WHERE name = ? IF EXISTS`,
		ownerValue(newOwnerID), name).WithContext(ctx).MapScanCAS(map[string]any{})
	if err != nil {
		return fmt.Errorf("transfer ownership: %w", err)
	}
	if !applied {
		return fmt.Errorf("room %d: %w", roomID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) username(ctx context.Context, userID int64) (string, error) {
	var name string
	err := s.db.Query(`SELECT username FROM users_by_id WHERE id = ?`, userID).WithContext(ctx).Scan(&name)
	if err != nil {
		return "", notFound(err, "user %d", userID)
	}
	return name, nil
}

func (s *Store) UpsertMembership(ctx context.Context, userID, roomID int64) (model.Membership, error) {
	username, err := s.username(ctx, userID)
	if err != nil {
		return model.Membership{}, err
	}
	roomName, err := s.roomName(ctx, roomID)
	if err != nil {
		return model.Membership{}, err
	}

	m := model.Membership{UserID: userID, RoomID: roomID, JoinedAt: s.timestamp()}
	prev := map[string]any{}
	applied, err := s.db.Query(`INSERT INTO room_members (room_id, user_id, username, joined_at) VALUES (?, ?, ?, ?) IF NOT EXISTS`,
		roomID, userID, username, m.JoinedAt).WithContext(ctx).MapScanCAS(prev)
	if err != nil {
		return model.Membership{}, fmt.Errorf("upsert membership: %w", err)
	}
	if !applied {
		if joined, ok := prev["joined_at"].(time.Time); ok {
			m.JoinedAt = joined.UTC()
		}
	}
	// Idempotent, so a retry after a partial failure repairs the index.
	if err := s.db.Query(`INSERT INTO user_rooms (user_id, room_id, room_name) VALUES (?, ?, ?)`,
		userID, roomID, roomName).WithContext(ctx).Exec(); err != nil {
		return model.Membership{}, fmt.Errorf("index membership: %w", err)
	}
	return m, nil
}

func (s *Store) DeleteMembership(ctx context.Context, userID, roomID int64) error {
	applied, err := s.db.Query(`DELETE FROM room_members WHERE room_id = ? AND user_id = ? IF EXISTS`,
		roomID, userID).WithContext(ctx).MapScanCAS(map[string]any{})
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	if !applied {
		return fmt.Errorf("membership %d/%d: %w", userID, roomID, store.ErrNotFound)
	}
	if err := s.db.Query(`DELETE FROM user_rooms WHERE user_id = ? AND room_id = ?`, userID, roomID).
		WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("unindex membership: %w", err)
	}
	return nil
}

func (s *Store) ListMembers(ctx context.Context, roomID int64) ([]model.Member, error) {
	iter := s.db.Query(`SELECT user_id, username, joined_at FROM room_members WHERE room_id = ?`, roomID).
		WithContext(ctx).Iter()

	members := make([]model.Member, 0)
	var m model.Member
	for iter.Scan(&m.ID, &m.Username, &m.JoinedAt) {
		m.JoinedAt = m.JoinedAt.UTC()
		members = append(members, m)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	// Clustering is by user id; join order is applied here.
	sort.SliceStable(members, func(i, j int) bool {
		if !members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].JoinedAt.Before(members[j].JoinedAt)
		}
		return members[i].ID < members[j].ID
	})
	return members, nil
}

func (s *Store) ListUserRooms(ctx context.Context, userID int64) ([]model.Room, error) {
	iter := s.db.Query(`SELECT room_name FROM user_rooms WHERE user_id = ?`, userID).WithContext(ctx).Iter()
	var names []string
	var name string
	for iter.Scan(&name) {
		names = append(names, name)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list user rooms: %w", err)
	}
	sort.Strings(names)

	rooms := make([]model.Room, 0, len(names))
	for _, n := range names {
		r, err := s.FindRoomByName(ctx, n)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, nil
}

func (s *Store) CreateMessage(ctx context.Context, roomID, senderID int64, content string) (model.Message, error) {
	sender, err := s.username(ctx, senderID)
	if err != nil {
		return model.Message{}, err
	}
	if _, err := s.roomName(ctx, roomID); err != nil {
		return model.Message{}, err
	}

	m := model.Message{
		ID:         s.ids.Generate(),
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: sender,
		Content:    content,
		CreatedAt:  s.timestamp(),
	}
	query := `INSERT INTO messages (room_id, id, sender_id, sender_username, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if err := s.db.Query(query, m.RoomID, m.ID, m.SenderID, m.SenderName, m.Content, m.CreatedAt).
		WithContext(ctx).Exec(); err != nil {
		return model.Message{}, fmt.Errorf("create message: %w", err)
	}
	return m, nil
}

func (s *Store) ListMessages(ctx context.Context, roomID int64) ([]model.Message, error) {
	iter := s.db.Query(`SELECT id, sender_id, sender_username, content, created_at FROM messages WHERE room_id = ?`, roomID).
		WithContext(ctx).Iter()

	msgs := make([]model.Message, 0)
	m := model.Message{RoomID: roomID}
	for iter.Scan(&m.ID, &m.SenderID, &m.SenderName, &m.Content, &m.CreatedAt) {
		m.CreatedAt = m.CreatedAt.UTC()
		msgs = append(msgs, m)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	// Ids come from several gateway nodes; the timestamp is authoritative.
	sort.SliceStable(msgs, func(i, j int) bool {
		if !msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}
