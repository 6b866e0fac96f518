package model

import (
	"strconv"
	"time"
)

// User is a durable chat identity. Usernames are unique and case-sensitive.
type User struct {
	ID        int64
	Username  string
	CreatedAt time.Time
}

// Room is a durable named room. OwnerID is zero when the room has no owner.
type Room struct {
	ID        int64
	Name      string
	OwnerID   int64
	CreatedAt time.Time
}

// Owned reports whether the room currently has an owner.
func (r Room) Owned() bool {
	return r.OwnerID != 0
}

// Membership is durable participation of a user in a room, independent of
// whether the user is connected.
type Membership struct {
	UserID   int64
	RoomID   int64
	JoinedAt time.Time
}

// Member is a room member as returned by membership listings.
type Member struct {
	User
	JoinedAt time.Time
}

// Message is an immutable chat message. SenderName is denormalized from the
// sender's User at write time.
type Message struct {
	ID         int64
	RoomID     int64
	SenderID   int64
	SenderName string
	Content    string
	CreatedAt  time.Time
}

// FormatID renders an id the way it travels on the wire. Snowflake ids exceed
// the integer precision of JSON numbers in most clients, so they are strings.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseID is the inverse of FormatID.
func ParseID(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
