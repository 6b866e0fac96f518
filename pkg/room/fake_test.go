package room

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mahaj/roomchat/pkg/model"
	"github.com/mahaj/roomchat/pkg/snowflake"
	"github.com/mahaj/roomchat/pkg/store"
	"github.com/mahaj/roomchat/pkg/store/memory"
)

type sent struct {
	Room    string // empty for direct sends
	Conn    string // empty for room broadcasts
	Event   string
	Payload any
}

// fakeBroadcaster keeps channel subscriptions and records what each
// connection would have received.
type fakeBroadcaster struct {
	mu       sync.Mutex
	channels map[string]map[string]bool
	log      []sent
	inbox    map[string][]sent
	joinErr  error
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{
		channels: make(map[string]map[string]bool),
		inbox:    make(map[string][]sent),
	}
}

func (f *fakeBroadcaster) JoinChannel(_ context.Context, connID, room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.joinErr != nil {
		return f.joinErr
	}
	if f.channels[room] == nil {
		f.channels[room] = make(map[string]bool)
	}
	f.channels[room][connID] = true
	return nil
}

func (f *fakeBroadcaster) LeaveChannel(_ context.Context, connID, room string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels[room], connID)
	return nil
}

func (f *fakeBroadcaster) BroadcastToRoom(_ context.Context, room, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := sent{Room: room, Event: event, Payload: payload}
	f.log = append(f.log, s)
	for conn := range f.channels[room] {
		f.inbox[conn] = append(f.inbox[conn], s)
	}
	return nil
}

func (f *fakeBroadcaster) SendToConnection(_ context.Context, connID, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := sent{Conn: connID, Event: event, Payload: payload}
	f.log = append(f.log, s)
	f.inbox[connID] = append(f.inbox[connID], s)
	return nil
}

func (f *fakeBroadcaster) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.log))
	for _, s := range f.log {
		out = append(out, s.Event)
	}
	return out
}

func (f *fakeBroadcaster) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = nil
	f.inbox = make(map[string][]sent)
}

func (f *fakeBroadcaster) received(connID, event string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []any
	for _, s := range f.inbox[connID] {
		if s.Event == event {
			out = append(out, s.Payload)
		}
	}
	return out
}

func (f *fakeBroadcaster) subscribed(room, connID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.channels[room][connID]
}

type harness struct {
	c     *Coordinator
	bc    *fakeBroadcaster
	store store.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ids, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return newHarnessWithStore(t, memory.New(ids))
}

func newHarnessWithStore(t *testing.T, s store.Store) *harness {
	bc := newFakeBroadcaster()
	return &harness{c: New(Options{Store: s, Broadcaster: bc}), bc: bc, store: s}
}

func (h *harness) room(t *testing.T, name string) model.Room {
	t.Helper()
	r, err := h.store.FindRoomByName(context.Background(), name)
	require.NoError(t, err)
	return r
}

func (h *harness) user(t *testing.T, name string) model.User {
	t.Helper()
	u, err := h.store.FindUserByUsername(context.Background(), name)
	require.NoError(t, err)
	return u
}

func (h *harness) members(t *testing.T, roomName string) []string {
	t.Helper()
	ms, err := h.store.ListMembers(context.Background(), h.room(t, roomName).ID)
	require.NoError(t, err)
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Username)
	}
	return out
}

func (h *harness) join(t *testing.T, conn, roomName, username string) JoinRoomResult {
	t.Helper()
	res, err := h.c.JoinRoom(context.Background(), conn, JoinRoom{RoomName: roomName, Username: username})
	require.NoError(t, err)
	return res
}

// failingStore fails the named operation with errBoom.
type failingStore struct {
	store.Store
	fail string
}

var errBoom = errors.New("boom")

func (f failingStore) CreateMessage(ctx context.Context, roomID, senderID int64, content string) (model.Message, error) {
	if f.fail == "CreateMessage" {
		return model.Message{}, errBoom
	}
	return f.Store.CreateMessage(ctx, roomID, senderID, content)
}

func (f failingStore) FindRoomByName(ctx context.Context, name string) (model.Room, error) {
	if f.fail == "FindRoomByName" {
		return model.Room{}, errBoom
	}
	return f.Store.FindRoomByName(ctx, name)
}
