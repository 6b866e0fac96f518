// Package sqlite is an embedded Store backed by SQLite (modernc.org/sqlite,
// no cgo). Uniqueness is enforced with UNIQUE constraints and
// INSERT ... ON CONFLICT DO NOTHING, so racing creates resolve in the database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mahaj/roomchat/pkg/model"
	"github.com/mahaj/roomchat/pkg/snowflake"
	"github.com/mahaj/roomchat/pkg/store"
)

//go:embed schema.sql
var schema string

// Store persists chat state in one SQLite file.
type Store struct {
	db  *sql.DB
	ids *snowflake.Node
	now func() time.Time
}

var _ store.Store = (*Store)(nil)

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string, ids *snowflake.Node) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, ids: ids, now: time.Now}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (model.User, error) {
	var (
		u       model.User
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, created_at FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user: %w", err)
	}
	u.CreatedAt = fromMillis(created)
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, username string) (model.User, error) {
	u := model.User{ID: s.ids.Generate(), Username: username, CreatedAt: fromMillis(toMillis(s.now()))}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, username, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(username) DO NOTHING`,
		u.ID, u.Username, toMillis(u.CreatedAt),
	)
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	} else if n == 0 {
		return model.User{}, fmt.Errorf("user %q: %w", username, store.ErrConflict)
	}
	return u, nil
}

func scanRoom(row interface{ Scan(...any) error }) (model.Room, error) {
	var (
		r       model.Room
		owner   sql.NullInt64
		created int64
	)
	if err := row.Scan(&r.ID, &r.Name, &owner, &created); err != nil {
		return model.Room{}, err
	}
	r.OwnerID = owner.Int64
	r.CreatedAt = fromMillis(created)
	return r, nil
}

func (s *Store) FindRoomByName(ctx context.Context, name string) (model.Room, error) {
	r, err := scanRoom(s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id, created_at FROM rooms WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Room{}, fmt.Errorf("room %q: %w", name, store.ErrNotFound)
	}
	if err != nil {
		return model.Room{}, fmt.Errorf("find room: %w", err)
	}
	return r, nil
}

func nullableID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func (s *Store) CreateRoom(ctx context.Context, name string, ownerID int64) (model.Room, error) {
	r := model.Room{ID: s.ids.Generate(), Name: name, OwnerID: ownerID, CreatedAt: fromMillis(toMillis(s.now()))}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, name, owner_id, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO NOTHING`,
		r.ID, r.Name, nullableID(ownerID), toMillis(r.CreatedAt),
	)
	if err != nil {
		return model.Room{}, fmt.Errorf("create room: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return model.Room{}, fmt.Errorf("create room: %w", err)
	} else if n == 0 {
		return model.Room{}, fmt.Errorf("room %q: %w", name, store.ErrConflict)
	}
	return r, nil
}

func (s *Store) TransferOwnership(ctx context.Context, roomID, newOwnerID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rooms SET owner_id = ? WHERE id = ?`, nullableID(newOwnerID), roomID)
	if err != nil {
		return fmt.Errorf("transfer ownership: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("transfer ownership: %w", err)
	} else if n == 0 {
		return fmt.Errorf("room %d: %w", roomID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) UpsertMembership(ctx context.Context, userID, roomID int64) (model.Membership, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Membership{}, fmt.Errorf("upsert membership: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memberships (user_id, room_id, joined_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id, room_id) DO NOTHING`,
		userID, roomID, toMillis(s.now()),
	); err != nil {
		return model.Membership{}, fmt.Errorf("upsert membership: %w", err)
	}

	m := model.Membership{UserID: userID, RoomID: roomID}
	var joined int64
	if err := tx.QueryRowContext(ctx,
		`SELECT joined_at FROM memberships WHERE user_id = ? AND room_id = ?`, userID, roomID,
	).Scan(&joined); err != nil {
		return model.Membership{}, fmt.Errorf("upsert membership: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Membership{}, fmt.Errorf("upsert membership: %w", err)
	}
	m.JoinedAt = fromMillis(joined)
	return m, nil
}

func (s *Store) DeleteMembership(ctx context.Context, userID, roomID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM memberships WHERE user_id = ? AND room_id = ?`, userID, roomID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete membership: %w", err)
	} else if n == 0 {
		return fmt.Errorf("membership %d/%d: %w", userID, roomID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) ListMembers(ctx context.Context, roomID int64) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.created_at, m.joined_at
		   FROM memberships m JOIN users u ON u.id = m.user_id
		  WHERE m.room_id = ?
		  ORDER BY m.joined_at, u.id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := make([]model.Member, 0)
	for rows.Next() {
		var (
			m               model.Member
			created, joined int64
		)
		if err := rows.Scan(&m.ID, &m.Username, &created, &joined); err != nil {
			return nil, fmt.Errorf("list members: %w", err)
		}
		m.CreatedAt = fromMillis(created)
		m.JoinedAt = fromMillis(joined)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

func (s *Store) ListUserRooms(ctx context.Context, userID int64) ([]model.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.name, r.owner_id, r.created_at
		   FROM memberships m JOIN rooms r ON r.id = m.room_id
		  WHERE m.user_id = ?
		  ORDER BY r.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]model.Room, 0)
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("list user rooms: %w", err)
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list user rooms: %w", err)
	}
	return rooms, nil
}

func (s *Store) CreateMessage(ctx context.Context, roomID, senderID int64, content string) (model.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Message{}, fmt.Errorf("create message: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m := model.Message{
		ID:        s.ids.Generate(),
		RoomID:    roomID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: fromMillis(toMillis(s.now())),
	}
	err = tx.QueryRowContext(ctx, `SELECT username FROM users WHERE id = ?`, senderID).Scan(&m.SenderName)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, fmt.Errorf("user %d: %w", senderID, store.ErrNotFound)
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("create message: %w", err)
	}
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM rooms WHERE id = ?`, roomID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, fmt.Errorf("room %d: %w", roomID, store.ErrNotFound)
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("create message: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, room_id, sender_id, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.RoomID, m.SenderID, m.Content, toMillis(m.CreatedAt),
	); err != nil {
		return model.Message{}, fmt.Errorf("create message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Message{}, fmt.Errorf("create message: %w", err)
	}
	return m, nil
}

func (s *Store) ListMessages(ctx context.Context, roomID int64) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.room_id, m.sender_id, u.username, m.content, m.created_at
		   FROM messages m JOIN users u ON u.id = m.sender_id
		  WHERE m.room_id = ?
		  ORDER BY m.created_at, m.id`, roomID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]model.Message, 0)
	for rows.Next() {
		var (
			m       model.Message
			created int64
		)
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		m.CreatedAt = fromMillis(created)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}
