package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/roomchat/pkg/model"
	"github.com/mahaj/roomchat/pkg/snowflake"
	"github.com/mahaj/roomchat/pkg/store/memory"
)

func TestScenarioAliceAndBob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	created, err := h.c.CreateRoom(ctx, "c-alice", CreateRoom{Name: "general", Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "general", created.RoomName)
	assert.Equal(t, "alice", created.Username)

	joined := h.join(t, "c-bob", "general", "bob")
	assert.Equal(t, "general", joined.RoomName)

	rooms, err := h.c.GetUserRooms(ctx, GetUserRooms{Username: "bob"})
	require.NoError(t, err)
	require.Len(t, rooms.Rooms, 1)
	assert.Equal(t, "general", rooms.Rooms[0].Name)
	require.Len(t, rooms.Rooms[0].Members, 2)
	assert.Equal(t, "alice", rooms.Rooms[0].Members[0].Username)

	require.NoError(t, h.c.SendMessage(ctx, "c-alice", SendMessage{RoomName: "general", Username: "alice", Message: "hi"}))
	got := h.bc.received("c-bob", model.EventNewMessage)
	require.Len(t, got, 1)
	msg := got[0].(model.ChatMessage)
	assert.Equal(t, "hi", msg.Message)
	assert.Equal(t, "alice", msg.Username)
	assert.Equal(t, model.MessageTypeChat, msg.Type)

	left, err := h.c.LeaveRoom(ctx, "c-alice", LeaveRoom{RoomName: "general", Username: "alice"})
	require.NoError(t, err)
	require.NotNil(t, left.NewOwner)
	assert.Equal(t, "bob", *left.NewOwner)

	changes := h.bc.received("c-bob", model.EventOwnerChanged)
	require.Len(t, changes, 1)
	oc := changes[0].(model.OwnerChanged)
	assert.Equal(t, "bob", oc.NewOwnerUsername)
	assert.Equal(t, model.FormatID(h.user(t, "bob").ID), oc.NewOwnerID)
	assert.Equal(t, h.user(t, "bob").ID, h.room(t, "general").OwnerID)
}

func TestJoinCreatesRoomOwnedByJoiner(t *testing.T) {
	h := newHarness(t)

	h.join(t, "c1", "lobby", "alice")
	assert.Equal(t, h.user(t, "alice").ID, h.room(t, "lobby").OwnerID)

	h.join(t, "c2", "lobby", "bob")
	assert.Equal(t, h.user(t, "alice").ID, h.room(t, "lobby").OwnerID, "second join keeps the owner")
}

func TestRepeatedJoinIsIdempotent(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.join(t, "c1", "lobby", "alice")
	}
	h.join(t, "c2", "lobby", "alice")

	assert.Equal(t, []string{"alice"}, h.members(t, "lobby"))
	assert.Len(t, h.c.Presence().Users("lobby"), 2, "one entry per connection")
}

func TestJoinTrimsUsername(t *testing.T) {
	h := newHarness(t)
	h.join(t, "c1", " lobby ", "  alice  ")
	h.join(t, "c2", "lobby", "alice")

	assert.Equal(t, []string{"alice"}, h.members(t, "lobby"))
	assert.Equal(t, "alice", h.c.Presence().Users("lobby")[0].Username)
}

func TestJoinBroadcastOrderAndSubscription(t *testing.T) {
	h := newHarness(t)
	h.join(t, "c1", "lobby", "alice")

	assert.True(t, h.bc.subscribed("lobby", "c1"))
	assert.Equal(t, []string{model.EventUserJoined, model.EventUserListUpdate}, h.bc.events())

	// The joiner itself sees its own join.
	list := h.bc.received("c1", model.EventUserListUpdate)
	require.Len(t, list, 1)
	assert.Equal(t, []model.Participant{{ID: model.FormatID(h.user(t, "alice").ID), Username: "alice"}}, list[0])
}

func TestCreateRoom(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.c.CreateRoom(ctx, "c1", CreateRoom{Name: "general", Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, []string{model.EventUserListUpdate}, h.bc.events())
	assert.True(t, h.bc.subscribed("general", "c1"))
	assert.Equal(t, []string{"alice"}, h.members(t, "general"))

	_, err = h.c.CreateRoom(ctx, "c2", CreateRoom{Name: "general", Username: "bob"})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "Room already exists", Message(err))
	assert.False(t, h.bc.subscribed("general", "c2"))
}

func TestCreateRoomRace(t *testing.T) {
	ctx := context.Background()
	ids, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s := memory.New(ids)

	// Two coordinators sharing a store stand in for two processes.
	a := newHarnessWithStore(t, s)
	b := newHarnessWithStore(t, s)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, h := range []*harness{a, b} {
		wg.Add(1)
		go func(i int, h *harness) {
			defer wg.Done()
			_, errs[i] = h.c.CreateRoom(ctx, fmt.Sprintf("c%d", i), CreateRoom{Name: "contested", Username: fmt.Sprintf("u%d", i)})
		}(i, h)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, conflicts)
}

func TestConcurrentJoinsOnNewRoom(t *testing.T) {
	ctx := context.Background()
	ids, err := snowflake.NewNode(1)
	require.NoError(t, err)
	s := memory.New(ids)
	a := newHarnessWithStore(t, s)
	b := newHarnessWithStore(t, s)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		h := a
		if i%2 == 1 {
			h = b
		}
		wg.Add(1)
		go func(i int, h *harness) {
			defer wg.Done()
			_, err := h.c.JoinRoom(ctx, fmt.Sprintf("c%d", i), JoinRoom{RoomName: "fresh", Username: fmt.Sprintf("u%d", i)})
			assert.NoError(t, err)
		}(i, h)
	}
	wg.Wait()

	room := a.room(t, "fresh")
	assert.True(t, room.Owned())
	assert.Len(t, a.members(t, "fresh"), n)
	assert.Len(t, a.c.Presence().Users("fresh"), n/2)
	assert.Len(t, b.c.Presence().Users("fresh"), n/2)
}

func TestLeaveByNonOwnerKeepsOwner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.join(t, "c1", "lobby", "alice")
	h.join(t, "c2", "lobby", "bob")
	h.bc.reset()

	res, err := h.c.LeaveRoom(ctx, "c2", LeaveRoom{RoomName: "lobby", Username: "bob"})
	require.NoError(t, err)
	assert.Nil(t, res.NewOwner)
	assert.Equal(t, h.user(t, "alice").ID, h.room(t, "lobby").OwnerID)
	assert.Equal(t, []string{"alice"}, h.members(t, "lobby"))
	assert.Equal(t, []string{model.EventUserLeft, model.EventUserListUpdate}, h.bc.events())
	assert.False(t, h.bc.subscribed("lobby", "c2"))
}

func TestOwnerLeaveHandsToEarliestMember(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.join(t, "c1", "lobby", "alice")
	h.join(t, "c2", "lobby", "bob")
	h.join(t, "c3", "lobby", "carol")
	h.bc.reset()

	res, err := h.c.LeaveRoom(ctx, "c1", LeaveRoom{RoomName: "lobby", Username: "alice"})
	require.NoError(t, err)
	require.NotNil(t, res.NewOwner)
	assert.Equal(t, "bob", *res.NewOwner)
	assert.Equal(t, h.user(t, "bob").ID, h.room(t, "lobby").OwnerID)
	assert.Equal(t, []string{model.EventOwnerChanged, model.EventUserLeft, model.EventUserListUpdate}, h.bc.events())
}

func TestLastMemberLeavingClearsOwner(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.join(t, "c1", "lobby", "alice")

	res, err := h.c.LeaveRoom(ctx, "c1", LeaveRoom{RoomName: "lobby", Username: "alice"})
	require.NoError(t, err)
	assert.Nil(t, res.NewOwner)
	assert.False(t, h.room(t, "lobby").Owned())

	info, err := h.c.CheckRoom(ctx, CheckRoom{RoomName: "lobby"})
	require.NoError(t, err)
	assert.Nil(t, info.Room.OwnerID)
	assert.Empty(t, info.Room.Participants)
}

func TestJoinClaimsOwnerlessRoom(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.join(t, "c1", "lobby", "alice")
	_, err := h.c.LeaveRoom(ctx, "c1", LeaveRoom{RoomName: "lobby", Username: "alice"})
	require.NoError(t, err)
	h.bc.reset()

	h.join(t, "c2", "lobby", "bob")
	assert.Equal(t, h.user(t, "bob").ID, h.room(t, "lobby").OwnerID)
	assert.Equal(t, []string{model.EventUserJoined, model.EventUserListUpdate, model.EventOwnerChanged}, h.bc.events())
}

func TestLeaveTakesEveryConnectionOfUser(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.join(t, "c1", "lobby", "bob")
	h.join(t, "c2", "lobby", "bob")
	h.bc.reset()

	_, err := h.c.LeaveRoom(ctx, "c1", LeaveRoom{RoomName: "lobby", Username: "bob"})
	require.NoError(t, err)

	assert.Empty(t, h.c.Presence().Users("lobby"))
	assert.Empty(t, h.members(t, "lobby"))
	assert.False(t, h.room(t, "lobby").Owned())
	assert.False(t, h.bc.subscribed("lobby", "c1"))
	assert.False(t, h.bc.subscribed("lobby", "c2"))
	assert.Equal(t, []any{model.UserEvent{Username: "bob"}}, h.bc.received("c2", model.EventUserLeft))
}

func TestLeaveWithSecondConnectionHandsOwnership(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.join(t, "c1", "lobby", "bob")
	h.join(t, "c2", "lobby", "bob")
	h.join(t, "c3", "lobby", "alice")
	require.NoError(t, h.c.Typing(ctx, "c2", Typing{RoomName: "lobby", Username: "bob"}))
	h.bc.reset()

	res, err := h.c.LeaveRoom(ctx, "c1", LeaveRoom{RoomName: "lobby", Username: "bob"})
	require.NoError(t, err)
	require.NotNil(t, res.NewOwner)
	assert.Equal(t, "alice", *res.NewOwner)

	assert.Equal(t, []string{"alice"}, h.c.Presence().Usernames("lobby"))
	assert.Empty(t, h.c.Typers("lobby"))
	assert.Len(t, h.bc.received("c3", model.EventUserLeft), 1)
	assert.Equal(t,
		[]string{model.EventOwnerChanged, model.EventUserLeft, model.EventUserListUpdate, model.EventTypingUpdate, model.EventUserLeft},
		h.bc.events())
}

func TestLeaveUnknown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.join(t, "c1", "lobby", "alice")

	_, err := h.c.LeaveRoom(ctx, "c1", LeaveRoom{RoomName: "nowhere", Username: "alice"})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "User or room not found", Message(err))

	_, err = h.c.LeaveRoom(ctx, "c1", LeaveRoom{RoomName: "lobby", Username: "ghost"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLeaveWithoutMembershipStillClearsPresence(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.join(t, "c1", "lobby", "alice")
	h.join(t, "c2", "lobby", "bob")

	_, err := h.c.LeaveRoom(ctx, "c2", LeaveRoom{RoomName: "lobby", Username: "bob"})
	require.NoError(t, err)
	_, err = h.c.LeaveRoom(ctx, "c2", LeaveRoom{RoomName: "lobby", Username: "bob"})
	require.NoError(t, err, "a second leave is not an error")
}

func TestMessagesKeepSendOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.join(t, "c1", "lobby", "alice")
	h.join(t, "c2", "lobby", "bob")

	var want []string
	for i := 0; i < 10; i++ {
		body := fmt.Sprintf("m%d", i)
		user := "alice"
		if i%3 == 0 {
			user = "bob"
		}
		require.NoError(t, h.c.SendMessage(ctx, "c1", SendMessage{RoomName: "lobby", Username: user, Message: body}))
		want = append(want, body)
	}

	res, err := h.c.GetRoomMessages(ctx, GetRoomMessages{RoomName: "lobby"})
	require.NoError(t, err)
	got := make([]string, 0, len(res.Messages))
	for i, m := range res.Messages {
		got = append(got, m.Message)
		if i > 0 {
			assert.False(t, m.Timestamp.Before(res.Messages[i-1].Timestamp))
		}
	}
	assert.Equal(t, want, got)
	assert.Equal(t, "bob", res.Messages[0].Username)
}

func TestSendMessageValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.join(t, "c1", "lobby", "alice")

	err := h.c.SendMessage(ctx, "c1", SendMessage{RoomName: "lobby", Username: "alice", Message: "   "})
	require.ErrorIs(t, err, ErrValidation)

	long := make([]rune, maxMessageRunes+1)
	for i := range long {
		long[i] = 'é'
	}
	err = h.c.SendMessage(ctx, "c1", SendMessage{RoomName: "lobby", Username: "alice", Message: string(long)})
	require.ErrorIs(t, err, ErrValidation)

	err = h.c.SendMessage(ctx, "c1", SendMessage{RoomName: "lobby", Username: "alice", Message: string(long[:maxMessageRunes])})
	require.NoError(t, err)

	err = h.c.SendMessage(ctx, "c1", SendMessage{RoomName: "nowhere", Username: "alice", Message: "hi"})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Invalid user or room", Message(err))
}

func TestStoreFailureIsInternal(t *testing.T) {
	ctx := context.Background()
	ids, err := snowflake.NewNode(1)
	require.NoError(t, err)
	base := memory.New(ids)
	h := newHarnessWithStore(t, failingStore{Store: base, fail: "CreateMessage"})
	h.join(t, "c1", "lobby", "alice")

	err = h.c.SendMessage(ctx, "c1", SendMessage{RoomName: "lobby", Username: "alice", Message: "hi"})
	require.ErrorIs(t, err, ErrInternal)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, "Failed to send message", Message(err))
	assert.Empty(t, h.bc.received("c1", model.EventNewMessage))

	h = newHarnessWithStore(t, failingStore{Store: base, fail: "FindRoomByName"})
	_, err = h.c.CheckRoom(ctx, CheckRoom{RoomName: "lobby"})
	require.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, "Internal server error", Message(err))
}

func TestJoinChannelFailureIsInternal(t *testing.T) {
	h := newHarness(t)
	h.bc.joinErr = errors.New("socket gone")

	_, err := h.c.JoinRoom(context.Background(), "c1", JoinRoom{RoomName: "lobby", Username: "alice"})
	require.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, "Failed to join room", Message(err))
	assert.Empty(t, h.c.Presence().Users("lobby"))
	assert.Empty(t, h.bc.events())
}

func TestCreateRoomAcksWhenSubscribeFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.bc.joinErr = errors.New("socket gone")

	res, err := h.c.CreateRoom(ctx, "c1", CreateRoom{Name: "general", Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "general", res.RoomName)
	assert.Equal(t, []string{"alice"}, h.members(t, "general"))
	assert.Empty(t, h.c.Presence().Users("general"))

	h.bc.joinErr = nil
	h.join(t, "c1", "general", "alice")
	assert.True(t, h.bc.subscribed("general", "c1"))
}

func TestValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.c.JoinRoom(ctx, "c1", JoinRoom{RoomName: "", Username: "alice"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Room name is required", Message(err))

	_, err = h.c.CreateRoom(ctx, "c1", CreateRoom{Name: "lobby", Username: "   "})
	require.ErrorIs(t, err, ErrValidation)

	long := make([]byte, maxUsernameBytes+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = h.c.JoinRoom(ctx, "c1", JoinRoom{RoomName: "lobby", Username: string(long)})
	require.ErrorIs(t, err, ErrValidation)

	_, err = h.c.JoinRoom(ctx, "c1", JoinRoom{RoomName: "bad\xff", Username: "alice"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestTypingConvergence(t *testing.T) {
	ctx := context.Background()

	cases := map[string]func(t *testing.T, h *harness){
		"stopTyping": func(t *testing.T, h *harness) {
			require.NoError(t, h.c.StopTyping(ctx, "c2", StopTyping{RoomName: "lobby", Username: "bob"}))
		},
		"leaveRoom": func(t *testing.T, h *harness) {
			_, err := h.c.LeaveRoom(ctx, "c2", LeaveRoom{RoomName: "lobby", Username: "bob"})
			require.NoError(t, err)
		},
		"disconnect": func(t *testing.T, h *harness) {
			h.c.Disconnect(ctx, "c2")
		},
	}

	for name, drop := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.join(t, "c1", "lobby", "alice")
			h.join(t, "c2", "lobby", "bob")

			require.NoError(t, h.c.Typing(ctx, "c1", Typing{RoomName: "lobby", Username: "alice"}))
			require.NoError(t, h.c.Typing(ctx, "c2", Typing{RoomName: "lobby", Username: "bob"}))
			assert.Equal(t, []string{"alice", "bob"}, h.c.Typers("lobby"))

			h.bc.reset()
			drop(t, h)
			assert.Equal(t, []string{"alice"}, h.c.Typers("lobby"))

			updates := h.bc.received("c1", model.EventTypingUpdate)
			require.NotEmpty(t, updates)
			assert.Equal(t, model.TypingUpdate{UsersTyping: []string{"alice"}}, updates[len(updates)-1])
		})
	}
}

func TestTypingKeptWhileAnotherConnectionRemains(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.join(t, "c1", "lobby", "bob")
	h.join(t, "c2", "lobby", "bob")
	require.NoError(t, h.c.Typing(ctx, "c1", Typing{RoomName: "lobby", Username: "bob"}))

	h.c.Disconnect(ctx, "c1")
	assert.Equal(t, []string{"bob"}, h.c.Typers("lobby"))

	h.c.Disconnect(ctx, "c2")
	assert.Empty(t, h.c.Typers("lobby"))
}

func TestTypingRequiresPresence(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.join(t, "c1", "lobby", "alice")
	h.bc.reset()

	err := h.c.Typing(ctx, "stranger", Typing{RoomName: "lobby", Username: "alice"})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, h.c.Typers("lobby"))
	assert.Empty(t, h.bc.events())

	err = h.c.StopTyping(ctx, "c1", StopTyping{RoomName: "lobby"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestTypingRacingRemovalLeavesNoTyper(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		h := newHarness(t)
		h.join(t, "c1", "lobby", "alice")
		h.join(t, "c2", "lobby", "bob")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = h.c.Typing(ctx, "c2", Typing{RoomName: "lobby", Username: "bob"})
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, h.c.RemoveUserFromRoom(ctx, "c1", RemoveUserFromRoom{RoomName: "lobby", Username: "bob"}))
		}()
		wg.Wait()

		require.Empty(t, h.c.Typers("lobby"), "iteration %d", i)
	}
}

func TestTypingBroadcastsFullSet(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.join(t, "c1", "lobby", "alice")
	h.join(t, "c2", "lobby", "bob")
	h.bc.reset()

	require.NoError(t, h.c.Typing(ctx, "c1", Typing{RoomName: "lobby", Username: "alice"}))
	require.NoError(t, h.c.Typing(ctx, "c2", Typing{RoomName: "lobby", Username: "bob"}))
	require.NoError(t, h.c.Typing(ctx, "c2", Typing{RoomName: "lobby", Username: "bob"}))

	updates := h.bc.received("c1", model.EventTypingUpdate)
	require.Len(t, updates, 3)
	assert.Equal(t, model.TypingUpdate{UsersTyping: []string{"alice"}}, updates[0])
	assert.Equal(t, model.TypingUpdate{UsersTyping: []string{"alice", "bob"}}, updates[2])
}

func TestRemoveUserFromRoom(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.join(t, "c1", "lobby", "alice")
	h.join(t, "c2", "lobby", "bob")
	h.join(t, "c3", "lobby", "bob")
	require.NoError(t, h.c.Typing(ctx, "c2", Typing{RoomName: "lobby", Username: "bob"}))
	h.bc.reset()

	require.NoError(t, h.c.RemoveUserFromRoom(ctx, "c1", RemoveUserFromRoom{RoomName: "lobby", Username: "bob"}))

	assert.Equal(t, []string{"alice"}, h.members(t, "lobby"))
	assert.Equal(t, []string{"alice"}, h.c.Presence().Usernames("lobby"))
	assert.Empty(t, h.c.Typers("lobby"))
	assert.False(t, h.bc.subscribed("lobby", "c2"))
	assert.False(t, h.bc.subscribed("lobby", "c3"))

	assert.Equal(t, []string{
		model.EventUserRemoved, model.EventUserListUpdate, model.EventTypingUpdate,
		model.EventKickedFromRoom, model.EventKickedFromRoom,
	}, h.bc.events())
	assert.Equal(t, []any{model.Kicked{RoomName: "lobby"}}, h.bc.received("c2", model.EventKickedFromRoom))
	assert.Len(t, h.bc.received("c3", model.EventKickedFromRoom), 1)
	assert.Empty(t, h.bc.received("c2", model.EventUserRemoved), "evicted connections only get the direct notice")

	err := h.c.RemoveUserFromRoom(ctx, "c1", RemoveUserFromRoom{RoomName: "lobby", Username: "bob"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveOwnerReassigns(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.join(t, "c1", "lobby", "alice")
	h.join(t, "c2", "lobby", "bob")
	h.bc.reset()

	require.NoError(t, h.c.RemoveUserFromRoom(ctx, "c2", RemoveUserFromRoom{RoomName: "lobby", Username: "alice"}))
	assert.Equal(t, h.user(t, "bob").ID, h.room(t, "lobby").OwnerID)
	assert.Equal(t, model.EventOwnerChanged, h.bc.events()[0])
}

func TestRemoveOfflineMember(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.join(t, "c1", "lobby", "alice")
	h.join(t, "c2", "lobby", "bob")
	h.c.Disconnect(ctx, "c2")
	h.bc.reset()

	require.NoError(t, h.c.RemoveUserFromRoom(ctx, "c1", RemoveUserFromRoom{RoomName: "lobby", Username: "bob"}))
	assert.Equal(t, []string{model.EventUserRemoved, model.EventUserListUpdate}, h.bc.events())
}

func TestDisconnect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	assert.NotPanics(t, func() { h.c.Disconnect(ctx, "never-joined") })
	assert.Empty(t, h.bc.events())

	h.join(t, "c1", "lobby", "alice")
	h.join(t, "c2", "lobby", "bob")
	h.join(t, "c2", "other", "bob")
	h.bc.reset()

	h.c.Disconnect(ctx, "c2")
	assert.Empty(t, h.c.Presence().Rooms("c2"))
	assert.Equal(t, []string{"alice", "bob"}, h.members(t, "lobby"), "membership survives disconnect")
	assert.Equal(t, []any{model.UserEvent{Username: "bob"}}, h.bc.received("c1", model.EventUserLeft))
	assert.Equal(t, []string{
		model.EventUserLeft, model.EventUserListUpdate,
		model.EventUserLeft, model.EventUserListUpdate,
	}, h.bc.events())

	h.c.Disconnect(ctx, "c2")
	assert.Len(t, h.bc.events(), 4, "second disconnect is a no-op")
}

func TestPresenceConvergence(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("c%d", i)
			user := fmt.Sprintf("u%d", i)
			_, err := h.c.JoinRoom(ctx, conn, JoinRoom{RoomName: "busy", Username: user})
			assert.NoError(t, err)
			switch i % 4 {
			case 0:
				_, err := h.c.LeaveRoom(ctx, conn, LeaveRoom{RoomName: "busy", Username: user})
				assert.NoError(t, err)
			case 1:
				h.c.Disconnect(ctx, conn)
			}
		}(i)
	}
	wg.Wait()

	users := h.c.Presence().Users("busy")
	assert.Len(t, users, n/2)
	for _, e := range users {
		var i int
		_, err := fmt.Sscanf(e.ConnID, "c%d", &i)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, i%4, 2)
	}
	assert.True(t, h.room(t, "busy").Owned())
	assert.Equal(t, 0, h.c.locks.size())
}

func TestCheckRoomAndRooms(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.join(t, "c1", "b-room", "alice")
	h.join(t, "c1", "a-room", "alice")
	h.join(t, "c2", "b-room", "bob")

	info, err := h.c.CheckRoom(ctx, CheckRoom{RoomName: "b-room"})
	require.NoError(t, err)
	assert.Equal(t, "b-room", info.Room.Name)
	assert.Equal(t, []string{"alice", "bob"}, info.Room.Participants)
	require.NotNil(t, info.Room.OwnerID)
	assert.Equal(t, model.FormatID(h.user(t, "alice").ID), *info.Room.OwnerID)

	_, err = h.c.CheckRoom(ctx, CheckRoom{RoomName: "missing"})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "Room not found", Message(err))

	assert.Equal(t, []string{"a-room", "b-room"}, h.c.CheckRooms(ctx, "c1").Rooms)
	assert.Empty(t, h.c.CheckRooms(ctx, "nobody").Rooms)
}

func TestGetUserRoomsUnknownUser(t *testing.T) {
	h := newHarness(t)
	_, err := h.c.GetUserRooms(context.Background(), GetUserRooms{Username: "ghost"})
	require.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "User not found", Message(err))

	_, err = h.c.GetRoomMessages(context.Background(), GetRoomMessages{RoomName: "nowhere"})
	require.ErrorIs(t, err, ErrNotFound)
}
