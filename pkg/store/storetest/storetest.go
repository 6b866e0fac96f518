// Package storetest is a conformance suite every store driver must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahaj/roomchat/pkg/store"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Users", testUsers},
		{"Rooms", testRooms},
		{"Ownership", testOwnership},
		{"MembershipIdempotent", testMembershipIdempotent},
		{"MembershipConcurrentUpsert", testMembershipConcurrentUpsert},
		{"MembershipDelete", testMembershipDelete},
		{"MembersOrderedByJoin", testMembersOrderedByJoin},
		{"UserRooms", testUserRooms},
		{"RoomCreateRace", testRoomCreateRace},
		{"Messages", testMessages},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.FindUserByUsername(ctx, "alice")
	require.ErrorIs(t, err, store.ErrNotFound)

	alice, err := s.CreateUser(ctx, "alice")
	require.NoError(t, err)
	assert.NotZero(t, alice.ID)
	assert.Equal(t, "alice", alice.Username)

	found, err := s.FindUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, found.ID)

	_, err = s.CreateUser(ctx, "alice")
	require.ErrorIs(t, err, store.ErrConflict)

	upper, err := s.CreateUser(ctx, "Alice")
	require.NoError(t, err, "usernames are case-sensitive")
	assert.NotEqual(t, alice.ID, upper.ID)
}

func testRooms(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner, err := s.CreateUser(ctx, "owner")
	require.NoError(t, err)

	_, err = s.FindRoomByName(ctx, "general")
	require.ErrorIs(t, err, store.ErrNotFound)

	room, err := s.CreateRoom(ctx, "general", owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "general", room.Name)
	assert.Equal(t, owner.ID, room.OwnerID)

	found, err := s.FindRoomByName(ctx, "general")
	require.NoError(t, err)
	assert.Equal(t, room.ID, found.ID)
	assert.Equal(t, owner.ID, found.OwnerID)

	_, err = s.CreateRoom(ctx, "general", owner.ID)
	require.ErrorIs(t, err, store.ErrConflict)
}

func testOwnership(t *testing.T, s store.Store) {
	ctx := context.Background()
	a, err := s.CreateUser(ctx, "a")
	require.NoError(t, err)
	b, err := s.CreateUser(ctx, "b")
	require.NoError(t, err)
	room, err := s.CreateRoom(ctx, "r", a.ID)
	require.NoError(t, err)

	require.NoError(t, s.TransferOwnership(ctx, room.ID, b.ID))
	got, err := s.FindRoomByName(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.OwnerID)

	require.NoError(t, s.TransferOwnership(ctx, room.ID, 0))
	got, err = s.FindRoomByName(ctx, "r")
	require.NoError(t, err)
	assert.False(t, got.Owned())
}

func testMembershipIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "u")
	require.NoError(t, err)
	room, err := s.CreateRoom(ctx, "r", u.ID)
	require.NoError(t, err)

	first, err := s.UpsertMembership(ctx, u.ID, room.ID)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := s.UpsertMembership(ctx, u.ID, room.ID)
	require.NoError(t, err)
	assert.True(t, first.JoinedAt.Equal(second.JoinedAt), "repeat upsert keeps the original join time")

	members, err := s.ListMembers(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "u", members[0].Username)
}

func testMembershipConcurrentUpsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "u")
	require.NoError(t, err)
	room, err := s.CreateRoom(ctx, "r", u.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.UpsertMembership(ctx, u.ID, room.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	members, err := s.ListMembers(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func testMembershipDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "u")
	require.NoError(t, err)
	room, err := s.CreateRoom(ctx, "r", u.ID)
	require.NoError(t, err)

	require.ErrorIs(t, s.DeleteMembership(ctx, u.ID, room.ID), store.ErrNotFound)

	_, err = s.UpsertMembership(ctx, u.ID, room.ID)
	require.NoError(t, err)
	require.NoError(t, s.DeleteMembership(ctx, u.ID, room.ID))

	members, err := s.ListMembers(ctx, room.ID)
	require.NoError(t, err)
	assert.Empty(t, members)

	rooms, err := s.ListUserRooms(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func testMembersOrderedByJoin(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner, err := s.CreateUser(ctx, "owner")
	require.NoError(t, err)
	room, err := s.CreateRoom(ctx, "r", owner.ID)
	require.NoError(t, err)

	// Created in one order, joined in another.
	names := []string{"carol", "alice", "bob"}
	ids := make(map[string]int64, len(names))
	for _, n := range []string{"alice", "bob", "carol"} {
		u, err := s.CreateUser(ctx, n)
		require.NoError(t, err)
		ids[n] = u.ID
	}
	for _, n := range names {
		_, err := s.UpsertMembership(ctx, ids[n], room.ID)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	members, err := s.ListMembers(ctx, room.ID)
	require.NoError(t, err)
	got := make([]string, 0, len(members))
	for _, m := range members {
		got = append(got, m.Username)
	}
	assert.Equal(t, names, got)
}

func testUserRooms(t *testing.T, s store.Store) {
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "u")
	require.NoError(t, err)
	other, err := s.CreateUser(ctx, "other")
	require.NoError(t, err)

	for _, name := range []string{"zeta", "alpha", "mid"} {
		room, err := s.CreateRoom(ctx, name, u.ID)
		require.NoError(t, err)
		_, err = s.UpsertMembership(ctx, u.ID, room.ID)
		require.NoError(t, err)
	}
	lonely, err := s.CreateRoom(ctx, "lonely", other.ID)
	require.NoError(t, err)
	_, err = s.UpsertMembership(ctx, other.ID, lonely.ID)
	require.NoError(t, err)

	rooms, err := s.ListUserRooms(ctx, u.ID)
	require.NoError(t, err)
	got := make([]string, 0, len(rooms))
	for _, r := range rooms {
		got = append(got, r.Name)
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, got)
}

func testRoomCreateRace(t *testing.T, s store.Store) {
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "u")
	require.NoError(t, err)

	const racers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateRoom(ctx, "contested", u.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, store.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Equal(t, racers-1, conflicts)
}

func testMessages(t *testing.T, s store.Store) {
	ctx := context.Background()
	alice, err := s.CreateUser(ctx, "alice")
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, "bob")
	require.NoError(t, err)
	room, err := s.CreateRoom(ctx, "general", alice.ID)
	require.NoError(t, err)
	other, err := s.CreateRoom(ctx, "other", alice.ID)
	require.NoError(t, err)

	var want []string
	for i := 0; i < 5; i++ {
		sender := alice
		if i%2 == 1 {
			sender = bob
		}
		body := fmt.Sprintf("m%d", i)
		msg, err := s.CreateMessage(ctx, room.ID, sender.ID, body)
		require.NoError(t, err)
		assert.Equal(t, sender.Username, msg.SenderName)
		want = append(want, body)
	}
	_, err = s.CreateMessage(ctx, other.ID, bob.ID, "elsewhere")
	require.NoError(t, err)

	_, err = s.CreateMessage(ctx, room.ID, 42, "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)

	msgs, err := s.ListMessages(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, msgs, len(want))
	for i, m := range msgs {
		assert.Equal(t, want[i], m.Content)
		assert.Equal(t, room.ID, m.RoomID)
		if i > 0 {
			assert.False(t, m.CreatedAt.Before(msgs[i-1].CreatedAt))
		}
	}
	assert.Equal(t, "bob", msgs[1].SenderName)
}
