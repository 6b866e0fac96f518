package room

import (
	"context"
	"errors"

	"github.com/mahaj/roomchat/pkg/model"
	"github.com/mahaj/roomchat/pkg/store"
)

// Reader serves the side-effect free queries. The HTTP API uses it directly.
type Reader struct {
	store store.Store
}

func NewReader(s store.Store) *Reader {
	return &Reader{store: s}
}

// CheckRoom returns the room with its durable participants.
func (r *Reader) CheckRoom(ctx context.Context, req CheckRoom) (CheckRoomResult, error) {
	name, err := cleanRoomName(req.RoomName)
	if err != nil {
		return CheckRoomResult{}, err
	}
	room, err := r.store.FindRoomByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return CheckRoomResult{}, notFound("Room not found")
	}
	if err != nil {
		return CheckRoomResult{}, internal("Internal server error", err)
	}
	members, err := r.store.ListMembers(ctx, room.ID)
	if err != nil {
		return CheckRoomResult{}, internal("Internal server error", err)
	}

	participants := make([]string, 0, len(members))
	for _, m := range members {
		participants = append(participants, m.Username)
	}
	return CheckRoomResult{Room: model.RoomInfo{
		Name:         room.Name,
		ID:           model.FormatID(room.ID),
		OwnerID:      model.OwnerRef(room),
		Participants: participants,
	}}, nil
}

// GetUserRooms lists the rooms username is a member of, with their members.
func (r *Reader) GetUserRooms(ctx context.Context, req GetUserRooms) (UserRoomsResult, error) {
	username, err := cleanUsername(req.Username)
	if err != nil {
		return UserRoomsResult{}, err
	}
	user, err := r.store.FindUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return UserRoomsResult{}, notFound("User not found")
	}
	if err != nil {
		return UserRoomsResult{}, internal("Failed to fetch user rooms", err)
	}
	rooms, err := r.store.ListUserRooms(ctx, user.ID)
	if err != nil {
		return UserRoomsResult{}, internal("Failed to fetch user rooms", err)
	}

	out := make([]model.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		members, err := r.store.ListMembers(ctx, room.ID)
		if err != nil {
			return UserRoomsResult{}, internal("Failed to fetch user rooms", err)
		}
		summary := model.RoomSummary{
			ID:      model.FormatID(room.ID),
			Name:    room.Name,
			OwnerID: model.OwnerRef(room),
			Members: make([]model.RoomMember, 0, len(members)),
		}
		for _, m := range members {
			summary.Members = append(summary.Members, model.RoomMember{
				ID:       model.FormatID(m.ID),
				Username: m.Username,
				JoinedAt: m.JoinedAt,
			})
		}
		out = append(out, summary)
	}
	return UserRoomsResult{Rooms: out}, nil
}

// GetRoomMessages returns the room's history, oldest first.
func (r *Reader) GetRoomMessages(ctx context.Context, req GetRoomMessages) (RoomMessagesResult, error) {
	name, err := cleanRoomName(req.RoomName)
	if err != nil {
		return RoomMessagesResult{}, err
	}
	room, err := r.store.FindRoomByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return RoomMessagesResult{}, notFound("Room not found")
	}
	if err != nil {
		return RoomMessagesResult{}, internal("Failed to load messages", err)
	}
	msgs, err := r.store.ListMessages(ctx, room.ID)
	if err != nil {
		return RoomMessagesResult{}, internal("Failed to load messages", err)
	}

	out := make([]model.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, model.NewChatMessage(m))
	}
	return RoomMessagesResult{Messages: out}, nil
}
