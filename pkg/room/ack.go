package room

import (
	"encoding/json"
	"fmt"

	"github.com/mahaj/roomchat/pkg/model"
)

// Ack answers an inbound event. Result's fields are flattened next to
// success and message on the wire, e.g.
//
//	{"success":true,"roomName":"general","userId":"42"}
type Ack struct {
	Success bool
	Message string
	Result  any
}

func (a Ack) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if a.Result != nil {
		raw, err := json.Marshal(a.Result)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("ack result %T is not an object: %w", a.Result, err)
		}
	}
	fields["success"], _ = json.Marshal(a.Success)
	if a.Message != "" {
		fields["message"], _ = json.Marshal(a.Message)
	}
	return json.Marshal(fields)
}

func succeeded(result any) Ack { return Ack{Success: true, Result: result} }

func failed(err error) Ack { return Ack{Success: false, Message: Message(err)} }

type CreateRoomResult struct {
	RoomName string `json:"roomName"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type JoinRoomResult struct {
	RoomName string `json:"roomName"`
	UserID   string `json:"userId"`
}

// LeaveRoomResult names the new owner when leaving handed ownership over.
type LeaveRoomResult struct {
	RoomName string  `json:"-"`
	NewOwner *string `json:"newOwner"`
}

type UserRoomsResult struct {
	Rooms []model.RoomSummary `json:"rooms"`
}

type RoomMessagesResult struct {
	Messages []model.ChatMessage `json:"messages"`
}

type CheckRoomResult struct {
	Room model.RoomInfo `json:"room"`
}

type ConnectionRoomsResult struct {
	Rooms []string `json:"rooms"`
}
