// Package room is the chat room state machine. It reconciles live presence
// with durable users, rooms and memberships and tells the transport what to
// fan out.
package room

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mahaj/roomchat/pkg/model"
	"github.com/mahaj/roomchat/pkg/presence"
	"github.com/mahaj/roomchat/pkg/store"
	"github.com/mahaj/roomchat/pkg/typing"
)

// Broadcaster is the fan-out transport. JoinChannel must return only once
// the connection receives room broadcasts.
type Broadcaster interface {
	JoinChannel(ctx context.Context, connID, room string) error
	LeaveChannel(ctx context.Context, connID, room string) error
	BroadcastToRoom(ctx context.Context, room, event string, payload any) error
	SendToConnection(ctx context.Context, connID, event string, payload any) error
}

type Options struct {
	Store       store.Store
	Broadcaster Broadcaster
	Presence    *presence.Registry
	Typing      *typing.Tracker
	Logger      *slog.Logger
}

// Coordinator handles inbound room events. Handlers that create rooms or
// change membership hold a per-room lock, so ownership handoff is atomic
// within the process.
type Coordinator struct {
	*Reader

	store    store.Store
	bc       Broadcaster
	presence *presence.Registry
	typing   *typing.Tracker
	logger   *slog.Logger
	locks    *keyedMutex
}

func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Presence == nil {
		opts.Presence = presence.NewRegistry(nil, opts.Logger)
	}
	if opts.Typing == nil {
		opts.Typing = typing.NewTracker()
	}
	return &Coordinator{
		Reader:   NewReader(opts.Store),
		store:    opts.Store,
		bc:       opts.Broadcaster,
		presence: opts.Presence,
		typing:   opts.Typing,
		logger:   opts.Logger,
		locks:    newKeyedMutex(),
	}
}

// Presence exposes the live registry.
func (c *Coordinator) Presence() *presence.Registry { return c.presence }

// Typers returns room's current typing set.
func (c *Coordinator) Typers(room string) []string { return c.typing.Typers(room) }

// ensureUser finds or creates username. A concurrent creator wins the unique
// key and the loser re-reads.
func (c *Coordinator) ensureUser(ctx context.Context, username string) (model.User, error) {
	u, err := c.store.FindUserByUsername(ctx, username)
	if err == nil || !errors.Is(err, store.ErrNotFound) {
		return u, err
	}
	u, err = c.store.CreateUser(ctx, username)
	if errors.Is(err, store.ErrConflict) {
		return c.store.FindUserByUsername(ctx, username)
	}
	return u, err
}

// ensureRoom finds or creates name owned by ownerID and reports whether this
// call created it.
func (c *Coordinator) ensureRoom(ctx context.Context, name string, ownerID int64) (model.Room, bool, error) {
	r, err := c.store.FindRoomByName(ctx, name)
	if err == nil {
		return r, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.Room{}, false, err
	}
	r, err = c.store.CreateRoom(ctx, name, ownerID)
	if errors.Is(err, store.ErrConflict) {
		r, err = c.store.FindRoomByName(ctx, name)
		return r, false, err
	}
	return r, err == nil, err
}

func (c *Coordinator) participants(room string) []model.Participant {
	entries := c.presence.Users(room)
	out := make([]model.Participant, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.Participant{ID: model.FormatID(e.UserID), Username: e.Username})
	}
	return out
}

// Broadcast failures happen after the state change is committed, so they are
// logged and never reported back to the caller.
func (c *Coordinator) broadcast(ctx context.Context, room, event string, payload any) {
	if err := c.bc.BroadcastToRoom(ctx, room, event, payload); err != nil {
		c.logger.Error("broadcast failed", "room", room, "event", event, "err", err)
	}
}

func (c *Coordinator) broadcastUserList(ctx context.Context, room string) {
	c.broadcast(ctx, room, model.EventUserListUpdate, c.participants(room))
}

func (c *Coordinator) broadcastTyping(ctx context.Context, room string) {
	c.broadcast(ctx, room, model.EventTypingUpdate, model.TypingUpdate{UsersTyping: c.typing.Typers(room)})
}

// join subscribes connID to room and records its presence.
func (c *Coordinator) join(ctx context.Context, connID string, room string, user model.User) error {
	if err := c.bc.JoinChannel(ctx, connID, room); err != nil {
		return err
	}
	c.presence.Add(ctx, room, connID, user.ID, user.Username)
	return nil
}

// clearTypingIfGone drops username from room's typing set once none of its
// connections remain there.
func (c *Coordinator) clearTypingIfGone(room, username string) bool {
	if len(c.presence.ConnectionsByUsername(room, username)) > 0 {
		return false
	}
	return c.typing.Clear(room, username)
}

// reassignOwner hands room to its earliest remaining member, or clears the
// owner when nobody is left. It returns the new owner, if any.
func (c *Coordinator) reassignOwner(ctx context.Context, room model.Room) (*model.Member, error) {
	members, err := c.store.ListMembers(ctx, room.ID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		if err := c.store.TransferOwnership(ctx, room.ID, 0); err != nil {
			return nil, err
		}
		c.logger.Info("room left without members; owner cleared", "room", room.Name)
		return nil, nil
	}
	next := members[0]
	if err := c.store.TransferOwnership(ctx, room.ID, next.ID); err != nil {
		return nil, err
	}
	c.logger.Info("room owner reassigned", "room", room.Name, "owner", next.Username)
	return &next, nil
}

func ownerChanged(m *model.Member) model.OwnerChanged {
	return model.OwnerChanged{NewOwnerID: model.FormatID(m.ID), NewOwnerUsername: m.Username}
}

// CreateRoom creates a new room owned by the caller and joins it.
func (c *Coordinator) CreateRoom(ctx context.Context, connID string, req CreateRoom) (CreateRoomResult, error) {
	name, username, err := cleanRoomAndUser(req.Name, req.Username)
	if err != nil {
		return CreateRoomResult{}, err
	}
	unlock := c.locks.Lock(name)
	defer unlock()

	const failMsg = "Failed to create room"
	if _, err := c.store.FindRoomByName(ctx, name); err == nil {
		return CreateRoomResult{}, conflict("Room already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return CreateRoomResult{}, internal(failMsg, err)
	}

	user, err := c.ensureUser(ctx, username)
	if err != nil {
		return CreateRoomResult{}, internal(failMsg, err)
	}
	room, err := c.store.CreateRoom(ctx, name, user.ID)
	if errors.Is(err, store.ErrConflict) {
		return CreateRoomResult{}, conflict("Room already exists")
	}
	if err != nil {
		return CreateRoomResult{}, internal(failMsg, err)
	}
	if _, err := c.store.UpsertMembership(ctx, user.ID, room.ID); err != nil {
		return CreateRoomResult{}, internal(failMsg, err)
	}
	// The room and membership are committed; a retry would only see
	// "Room already exists", so a failed subscribe is logged and acked.
	if err := c.join(ctx, connID, room.Name, user); err != nil {
		c.logger.Warn("created room but could not subscribe connection", "room", room.Name, "conn", connID, "err", err)
	}

	c.logger.Info("room created", "room", room.Name, "owner", user.Username, "conn", connID)
	c.broadcastUserList(ctx, room.Name)

	return CreateRoomResult{
		RoomName: room.Name,
		UserID:   model.FormatID(user.ID),
		Username: user.Username,
	}, nil
}

// JoinRoom joins an existing room, creating it (owned by the caller) when it
// does not exist yet. Repeated joins are idempotent.
func (c *Coordinator) JoinRoom(ctx context.Context, connID string, req JoinRoom) (JoinRoomResult, error) {
	name, username, err := cleanRoomAndUser(req.RoomName, req.Username)
	if err != nil {
		return JoinRoomResult{}, err
	}
	unlock := c.locks.Lock(name)
	defer unlock()

	const failMsg = "Failed to join room"
	user, err := c.ensureUser(ctx, username)
	if err != nil {
		return JoinRoomResult{}, internal(failMsg, err)
	}
	room, created, err := c.ensureRoom(ctx, name, user.ID)
	if err != nil {
		return JoinRoomResult{}, internal(failMsg, err)
	}
	if _, err := c.store.UpsertMembership(ctx, user.ID, room.ID); err != nil {
		return JoinRoomResult{}, internal(failMsg, err)
	}

	var claimed *model.Member
	if !created && !room.Owned() {
		if err := c.store.TransferOwnership(ctx, room.ID, user.ID); err != nil {
			return JoinRoomResult{}, internal(failMsg, err)
		}
		claimed = &model.Member{User: user}
		c.logger.Info("ownerless room claimed", "room", room.Name, "owner", user.Username)
	}

	if err := c.join(ctx, connID, room.Name, user); err != nil {
		return JoinRoomResult{}, internal(failMsg, err)
	}

	c.logger.Info("user joined room", "room", room.Name, "user", user.Username, "conn", connID, "created", created)
	c.broadcast(ctx, room.Name, model.EventUserJoined, model.UserEvent{Username: user.Username})
	c.broadcastUserList(ctx, room.Name)
	if claimed != nil {
		c.broadcast(ctx, room.Name, model.EventOwnerChanged, ownerChanged(claimed))
	}

	return JoinRoomResult{RoomName: room.Name, UserID: model.FormatID(user.ID)}, nil
}

// LeaveRoom drops the caller's membership and the presence of every
// connection the user holds in the room. An owner who leaves hands the room
// to the earliest remaining member.
func (c *Coordinator) LeaveRoom(ctx context.Context, connID string, req LeaveRoom) (LeaveRoomResult, error) {
	name, username, err := cleanRoomAndUser(req.RoomName, req.Username)
	if err != nil {
		return LeaveRoomResult{}, err
	}
	unlock := c.locks.Lock(name)
	defer unlock()

	const failMsg = "Failed to leave room"
	user, room, err := c.findUserAndRoom(ctx, username, name, "User or room not found", failMsg)
	if err != nil {
		return LeaveRoomResult{}, err
	}

	if err := c.store.DeleteMembership(ctx, user.ID, room.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return LeaveRoomResult{}, internal(failMsg, err)
	}

	var newOwner *model.Member
	if room.OwnerID == user.ID {
		if newOwner, err = c.reassignOwner(ctx, room); err != nil {
			return LeaveRoomResult{}, internal(failMsg, err)
		}
	}

	// The membership is gone, so every connection of the user leaves with it.
	others := make([]string, 0, 1)
	for _, id := range c.presence.ConnectionsByUsername(room.Name, user.Username) {
		if id != connID {
			others = append(others, id)
		}
	}
	for _, id := range append([]string{connID}, others...) {
		if err := c.bc.LeaveChannel(ctx, id, room.Name); err != nil {
			c.logger.Warn("leave channel failed", "room", room.Name, "conn", id, "err", err)
		}
		c.presence.Remove(ctx, room.Name, id)
	}
	typingChanged := c.typing.Clear(room.Name, user.Username)

	c.logger.Info("user left room", "room", room.Name, "user", user.Username, "conn", connID, "siblings", len(others))
	if newOwner != nil {
		c.broadcast(ctx, room.Name, model.EventOwnerChanged, ownerChanged(newOwner))
	}
	left := model.UserEvent{Username: user.Username}
	c.broadcast(ctx, room.Name, model.EventUserLeft, left)
	c.broadcastUserList(ctx, room.Name)
	if typingChanged {
		c.broadcastTyping(ctx, room.Name)
	}
	for _, id := range others {
		if err := c.bc.SendToConnection(ctx, id, model.EventUserLeft, left); err != nil {
			c.logger.Warn("leave notice failed", "room", room.Name, "conn", id, "err", err)
		}
	}

	res := LeaveRoomResult{RoomName: room.Name}
	if newOwner != nil {
		res.NewOwner = &newOwner.Username
	}
	return res, nil
}

func (c *Coordinator) findUserAndRoom(ctx context.Context, username, roomName, missingMsg, failMsg string) (model.User, model.Room, error) {
	user, err := c.store.FindUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, model.Room{}, notFound(missingMsg)
	}
	if err != nil {
		return model.User{}, model.Room{}, internal(failMsg, err)
	}
	room, err := c.store.FindRoomByName(ctx, roomName)
	if errors.Is(err, store.ErrNotFound) {
		return model.User{}, model.Room{}, notFound(missingMsg)
	}
	if err != nil {
		return model.User{}, model.Room{}, internal(failMsg, err)
	}
	return user, room, nil
}

// SendMessage stores a message and fans it out to the room.
func (c *Coordinator) SendMessage(ctx context.Context, connID string, req SendMessage) error {
	name, username, err := cleanRoomAndUser(req.RoomName, req.Username)
	if err != nil {
		return err
	}
	content, err := cleanMessage(req.Message)
	if err != nil {
		return err
	}

	const failMsg = "Failed to send message"
	user, room, err := c.findUserAndRoom(ctx, username, name, "Invalid user or room", failMsg)
	if err != nil {
		return err
	}
	msg, err := c.store.CreateMessage(ctx, room.ID, user.ID, content)
	if err != nil {
		return internal(failMsg, err)
	}

	c.logger.Debug("message stored", "room", room.Name, "user", user.Username, "id", msg.ID, "conn", connID)
	c.broadcast(ctx, room.Name, model.EventNewMessage, model.NewChatMessage(msg))
	return nil
}

// setTyping applies update under the room lock, so a concurrent leave or
// kick cannot land between the presence check and the typing change.
func (c *Coordinator) setTyping(ctx context.Context, connID, roomName, username string, update func(room, username string) bool) error {
	name, user, err := cleanRoomAndUser(roomName, username)
	if err != nil {
		return err
	}
	unlock := c.locks.Lock(name)
	defer unlock()

	if !c.presence.Has(name, connID) {
		return notFound(fmt.Sprintf("Connection is not in room %s", name))
	}
	update(name, user)
	c.broadcastTyping(ctx, name)
	return nil
}

// Typing marks username as typing and fans out the full typing set. It is
// rejected when the connection is not present in the room.
func (c *Coordinator) Typing(ctx context.Context, connID string, req Typing) error {
	return c.setTyping(ctx, connID, req.RoomName, req.Username, c.typing.Mark)
}

// StopTyping is the inverse of Typing.
func (c *Coordinator) StopTyping(ctx context.Context, connID string, req StopTyping) error {
	return c.setTyping(ctx, connID, req.RoomName, req.Username, c.typing.Clear)
}

// RemoveUserFromRoom evicts username: its membership is deleted, every live
// connection of it in the room is unsubscribed and told it was kicked.
// Authorization is left to the caller.
func (c *Coordinator) RemoveUserFromRoom(ctx context.Context, connID string, req RemoveUserFromRoom) error {
	name, username, err := cleanRoomAndUser(req.RoomName, req.Username)
	if err != nil {
		return err
	}
	unlock := c.locks.Lock(name)
	defer unlock()

	const failMsg = "Failed to remove user"
	user, room, err := c.findUserAndRoom(ctx, username, name, "User or room not found", failMsg)
	if err != nil {
		return err
	}
	if err := c.store.DeleteMembership(ctx, user.ID, room.ID); errors.Is(err, store.ErrNotFound) {
		return notFound("User is not a member of this room")
	} else if err != nil {
		return internal(failMsg, err)
	}

	var newOwner *model.Member
	if room.OwnerID == user.ID {
		if newOwner, err = c.reassignOwner(ctx, room); err != nil {
			return internal(failMsg, err)
		}
	}

	evicted := c.presence.ConnectionsByUsername(room.Name, user.Username)
	for _, id := range evicted {
		if err := c.bc.LeaveChannel(ctx, id, room.Name); err != nil {
			c.logger.Warn("leave channel failed", "room", room.Name, "conn", id, "err", err)
		}
		c.presence.Remove(ctx, room.Name, id)
	}
	typingChanged := c.typing.Clear(room.Name, user.Username)

	c.logger.Info("user removed from room", "room", room.Name, "user", user.Username, "by", connID, "evicted", len(evicted))
	if newOwner != nil {
		c.broadcast(ctx, room.Name, model.EventOwnerChanged, ownerChanged(newOwner))
	}
	c.broadcast(ctx, room.Name, model.EventUserRemoved, model.UserEvent{Username: user.Username})
	c.broadcastUserList(ctx, room.Name)
	if typingChanged {
		c.broadcastTyping(ctx, room.Name)
	}
	for _, id := range evicted {
		if err := c.bc.SendToConnection(ctx, id, model.EventKickedFromRoom, model.Kicked{RoomName: room.Name}); err != nil {
			c.logger.Warn("kick notice failed", "room", room.Name, "conn", id, "err", err)
		}
	}
	return nil
}

// CheckRooms lists the rooms connID is present in.
func (c *Coordinator) CheckRooms(_ context.Context, connID string) ConnectionRoomsResult {
	rooms := c.presence.Rooms(connID)
	c.logger.Info("connection rooms", "conn", connID, "rooms", rooms)
	return ConnectionRoomsResult{Rooms: rooms}
}

// Disconnect clears every presence connID holds. Durable membership is kept.
// It never fails; a connection that never joined anything is a no-op.
func (c *Coordinator) Disconnect(ctx context.Context, connID string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("disconnect panicked", "conn", connID, "panic", r)
		}
	}()

	entries := c.presence.FindAll(connID)
	if len(entries) == 0 {
		c.logger.Debug("disconnect without presence", "conn", connID)
		return
	}
	for _, e := range entries {
		c.leaveOnDisconnect(ctx, e)
	}
}

func (c *Coordinator) leaveOnDisconnect(ctx context.Context, e presence.Entry) {
	unlock := c.locks.Lock(e.Room)
	defer unlock()

	if _, ok := c.presence.Remove(ctx, e.Room, e.ConnID); !ok {
		return
	}
	typingChanged := c.clearTypingIfGone(e.Room, e.Username)

	c.logger.Info("connection left room", "room", e.Room, "user", e.Username, "conn", e.ConnID)
	c.broadcast(ctx, e.Room, model.EventUserLeft, model.UserEvent{Username: e.Username})
	c.broadcastUserList(ctx, e.Room)
	if typingChanged {
		c.broadcastTyping(ctx, e.Room)
	}
}
