// Package store defines the durable persistence contract for users, rooms,
// memberships and messages. Drivers live in subpackages.
package store

import (
	"context"
	"errors"

	"github.com/mahaj/roomchat/pkg/model"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a unique key is already taken.
	ErrConflict = errors.New("store: conflict")
)

// Store is implemented by every persistence driver. All methods are safe for
// concurrent use; uniqueness of usernames, room names and (user, room)
// membership pairs is enforced by the driver, not by callers.
type Store interface {
	FindUserByUsername(ctx context.Context, username string) (model.User, error)
	// CreateUser fails with ErrConflict when the username is taken.
	CreateUser(ctx context.Context, username string) (model.User, error)

	FindRoomByName(ctx context.Context, name string) (model.Room, error)
	// CreateRoom fails with ErrConflict when the name is taken.
	CreateRoom(ctx context.Context, name string, ownerID int64) (model.Room, error)
	// TransferOwnership sets the room owner. Zero clears it.
	TransferOwnership(ctx context.Context, roomID, newOwnerID int64) error

	// UpsertMembership inserts the pair if absent and returns the stored row;
	// repeated calls keep the original JoinedAt.
	UpsertMembership(ctx context.Context, userID, roomID int64) (model.Membership, error)
	// DeleteMembership fails with ErrNotFound when the pair is absent.
	DeleteMembership(ctx context.Context, userID, roomID int64) error
	// ListMembers orders by JoinedAt, then user id.
	ListMembers(ctx context.Context, roomID int64) ([]model.Member, error)
	// ListUserRooms orders by room name.
	ListUserRooms(ctx context.Context, userID int64) ([]model.Room, error)

	CreateMessage(ctx context.Context, roomID, senderID int64, content string) (model.Message, error)
	// ListMessages orders by CreatedAt, then id.
	ListMessages(ctx context.Context, roomID int64) ([]model.Message, error)

	Close() error
}
