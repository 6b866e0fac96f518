package db

import "fmt"

// Tables are denormalized per query: every lookup the chat store performs is a
// single-partition read.
var tables = []struct {
	name string
	ddl  string
}{
	{"users", `CREATE TABLE IF NOT EXISTS users (
		username text PRIMARY KEY,
		id bigint,
		created_at timestamp
	)`},
	{"users_by_id", `CREATE TABLE IF NOT EXISTS users_by_id (
		id bigint PRIMARY KEY,
		username text
	)`},
	{"rooms", `CREATE TABLE IF NOT EXISTS rooms (
		name text PRIMARY KEY,
		id bigint,
		owner_id bigint,
		created_at timestamp
	)`},
	{"rooms_by_id", `CREATE TABLE IF NOT EXISTS rooms_by_id (
		id bigint PRIMARY KEY,
		name text
	)`},
	{"room_members", `CREATE TABLE IF NOT EXISTS room_members (
		room_id bigint,
		user_id bigint,
		username text,
		joined_at timestamp,
		PRIMARY KEY (room_id, user_id)
	)`},
	{"user_rooms", `CREATE TABLE IF NOT EXISTS user_rooms (
		user_id bigint,
		room_id bigint,
		room_name text,
		PRIMARY KEY (user_id, room_id)
	)`},
	{"messages", `CREATE TABLE IF NOT EXISTS messages (
		room_id bigint,
		id bigint,
		sender_id bigint,
		sender_username text,
		content text,
		created_at timestamp,
		PRIMARY KEY (room_id, id)
	) WITH CLUSTERING ORDER BY (id ASC)`},
}

// Tables lists the chat tables in creation order.
func Tables() []string {
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.name)
	}
	return names
}

// EnsureSchema creates any missing chat table. It is safe to run repeatedly.
func EnsureSchema(s *Session) error {
	for _, t := range tables {
		if err := s.Query(t.ddl).Exec(); err != nil {
			return fmt.Errorf("create table %s: %w", t.name, err)
		}
	}
	return nil
}

// DropSchema drops every chat table.
func DropSchema(s *Session) error {
	for i := len(tables) - 1; i >= 0; i-- {
		if err := s.Query("DROP TABLE IF EXISTS " + tables[i].name).Exec(); err != nil {
			return fmt.Errorf("drop table %s: %w", tables[i].name, err)
		}
	}
	return nil
}
