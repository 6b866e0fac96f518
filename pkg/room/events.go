package room

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Inbound event names.
const (
	EventCreateRoom         = "createRoom"
	EventJoinRoom           = "joinRoom"
	EventLeaveRoom          = "leaveRoom"
	EventSendMessage        = "sendMessage"
	EventTyping             = "typing"
	EventStopTyping         = "stopTyping"
	EventGetUserRooms       = "getUserRooms"
	EventGetRoomMessages    = "getRoomMessages"
	EventRemoveUserFromRoom = "removeUserFromRoom"
	EventCheckRoom          = "checkRoom"
	EventCheckRooms         = "checkRooms"
)

// ErrUnknownEvent is returned by Decode for names outside the event table.
var ErrUnknownEvent = errors.New("unknown event")

// Event is one inbound client event.
type Event interface {
	EventName() string
}

type CreateRoom struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}

type JoinRoom struct {
	RoomName string `json:"roomName"`
	Username string `json:"username"`
}

type LeaveRoom struct {
	RoomName string `json:"roomName"`
	Username string `json:"username"`
}

type SendMessage struct {
	RoomName string `json:"roomName"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type Typing struct {
	RoomName string `json:"roomName"`
	Username string `json:"username"`
}

type StopTyping struct {
	RoomName string `json:"roomName"`
	Username string `json:"username"`
}

type GetUserRooms struct {
	Username string `json:"username"`
}

type GetRoomMessages struct {
	RoomName string `json:"roomName"`
}

type RemoveUserFromRoom struct {
	RoomName string `json:"roomName"`
	Username string `json:"username"`
}

// CheckRoom accepts either a bare JSON string or {"roomName": ...}.
type CheckRoom struct {
	RoomName string `json:"roomName"`
}

func (c *CheckRoom) UnmarshalJSON(b []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(b), []byte(`"`)) {
		return json.Unmarshal(b, &c.RoomName)
	}
	type plain CheckRoom
	return json.Unmarshal(b, (*plain)(c))
}

// CheckRooms asks which rooms the calling connection is present in.
type CheckRooms struct{}

func (CreateRoom) EventName() string         { return EventCreateRoom }
func (JoinRoom) EventName() string           { return EventJoinRoom }
func (LeaveRoom) EventName() string          { return EventLeaveRoom }
func (SendMessage) EventName() string        { return EventSendMessage }
func (Typing) EventName() string             { return EventTyping }
func (StopTyping) EventName() string         { return EventStopTyping }
func (GetUserRooms) EventName() string       { return EventGetUserRooms }
func (GetRoomMessages) EventName() string    { return EventGetRoomMessages }
func (RemoveUserFromRoom) EventName() string { return EventRemoveUserFromRoom }
func (CheckRoom) EventName() string          { return EventCheckRoom }
func (CheckRooms) EventName() string         { return EventCheckRooms }

func decodeInto[T Event](data json.RawMessage) (Event, error) {
	var ev T
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return ev, nil
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ev.EventName(), err)
	}
	return ev, nil
}

// Decode turns a named payload into its Event. An empty payload decodes to
// the zero event, which validation then rejects.
func Decode(name string, data json.RawMessage) (Event, error) {
	switch name {
	case EventCreateRoom:
		return decodeInto[CreateRoom](data)
	case EventJoinRoom:
		return decodeInto[JoinRoom](data)
	case EventLeaveRoom:
		return decodeInto[LeaveRoom](data)
	case EventSendMessage:
		return decodeInto[SendMessage](data)
	case EventTyping:
		return decodeInto[Typing](data)
	case EventStopTyping:
		return decodeInto[StopTyping](data)
	case EventGetUserRooms:
		return decodeInto[GetUserRooms](data)
	case EventGetRoomMessages:
		return decodeInto[GetRoomMessages](data)
	case EventRemoveUserFromRoom:
		return decodeInto[RemoveUserFromRoom](data)
	case EventCheckRoom:
		return decodeInto[CheckRoom](data)
	case EventCheckRooms:
		return CheckRooms{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}
}

// Acked reports whether the event expects an Ack.
func Acked(ev Event) bool {
	switch ev.(type) {
	case Typing, StopTyping:
		return false
	default:
		return true
	}
}
