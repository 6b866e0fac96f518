package model

import "time"

// Events pushed from the server to connections.
const (
	EventUserJoined     = "userJoined"
	EventUserLeft       = "userLeft"
	EventUserListUpdate = "userListUpdate"
	EventOwnerChanged   = "ownerChanged"
	EventNewMessage     = "newMessage"
	EventTypingUpdate   = "typingUpdate"
	EventUserRemoved    = "userRemoved"
	EventKickedFromRoom = "kickedFromRoom"
)

// MessageTypeChat is the only message type produced today.
const MessageTypeChat = "chat"

// Participant is one live connection's identity in a userListUpdate payload.
type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// UserEvent is the payload of userJoined, userLeft and userRemoved.
type UserEvent struct {
	Username string `json:"username"`
}

// OwnerChanged is the payload of ownerChanged.
type OwnerChanged struct {
	NewOwnerID       string `json:"newOwnerId"`
	NewOwnerUsername string `json:"newOwnerUsername"`
}

// TypingUpdate carries the full typing set of a room, never a delta.
type TypingUpdate struct {
	UsersTyping []string `json:"usersTyping"`
}

// Kicked is sent directly to an evicted connection.
type Kicked struct {
	RoomName string `json:"roomName"`
}

// ChatMessage is a Message denormalized for clients.
type ChatMessage struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
}

// NewChatMessage builds the client view of a stored message.
func NewChatMessage(m Message) ChatMessage {
	return ChatMessage{
		ID:        FormatID(m.ID),
		Username:  m.SenderName,
		Message:   m.Content,
		Timestamp: m.CreatedAt,
		Type:      MessageTypeChat,
	}
}

// RoomInfo is the checkRoom view of a room.
type RoomInfo struct {
	Name         string   `json:"name"`
	ID           string   `json:"id"`
	OwnerID      *string  `json:"ownerId"`
	Participants []string `json:"participants"`
}

// RoomMember is one member inside a RoomSummary.
type RoomMember struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joinedAt"`
}

// RoomSummary is a room as listed by getUserRooms, with its members.
type RoomSummary struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	OwnerID *string      `json:"ownerId"`
	Members []RoomMember `json:"members"`
}

// OwnerRef returns the wire form of a room owner, nil when unowned.
func OwnerRef(r Room) *string {
	if !r.Owned() {
		return nil
	}
	id := FormatID(r.OwnerID)
	return &id
}
