package presence

import (
	"context"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// Mirror receives every presence change so other processes can read live
// presence without asking the gateway.
type Mirror interface {
	Add(ctx context.Context, room, connID, username string) error
	Remove(ctx context.Context, room, connID string) error
}

// NopMirror discards changes.
type NopMirror struct{}

func (NopMirror) Add(context.Context, string, string, string) error { return nil }
func (NopMirror) Remove(context.Context, string, string) error      { return nil }

const keyPrefix = "presence:"

// Key is the Redis hash holding room's presence (connID -> username).
func Key(room string) string {
	return keyPrefix + room
}

// RedisMirror keeps one hash per room in Redis.
type RedisMirror struct {
	rdb *redis.Client
}

func NewRedisMirror(rdb *redis.Client) *RedisMirror {
	return &RedisMirror{rdb: rdb}
}

func (m *RedisMirror) Add(ctx context.Context, room, connID, username string) error {
	return m.rdb.HSet(ctx, Key(room), connID, username).Err()
}

func (m *RedisMirror) Remove(ctx context.Context, room, connID string) error {
	return m.rdb.HDel(ctx, Key(room), connID).Err()
}

// Users returns the distinct usernames live in room, sorted.
func (m *RedisMirror) Users(ctx context.Context, room string) ([]string, error) {
	vals, err := m.rdb.HVals(ctx, Key(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("read presence for %s: %w", room, err)
	}
	seen := make(map[string]struct{}, len(vals))
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// Reset deletes every presence hash. A gateway calls it on start, since
// presence from a previous process is stale.
func (m *RedisMirror) Reset(ctx context.Context) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := m.rdb.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("scan presence keys: %w", err)
		}
		if len(keys) > 0 {
			n, err := m.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, fmt.Errorf("delete presence keys: %w", err)
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
