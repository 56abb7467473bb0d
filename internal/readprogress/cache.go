package readprogress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis key patterns:
// last_read:{room_id}:{user_id}   STRING "{msgId}_{timestamp}"  - hot read position
// last_read:dirty                 SET<room_id>                  - rooms awaiting reconciliation
const (
	keyPrefix = "last_read:"
	dirtyKey  = "last_read:dirty"
	scanCount = 100
)

func lastReadKey(roomID, userID string) string {
	return keyPrefix + roomID + ":" + userID
}

func roomPrefix(roomID string) string {
	return keyPrefix + roomID + ":"
}

// Cache is the hot tier of read progress.
type Cache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewCache creates a cache writing entries with ttl.
func NewCache(client redis.Cmdable, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Set stores value for (roomID, userID) and marks the room dirty.
func (c *Cache) Set(ctx context.Context, roomID, userID, value string) error {
	pipe := c.client.TxPipeline()
	pipe.Set(ctx, lastReadKey(roomID, userID), value, c.ttl)
	pipe.SAdd(ctx, dirtyKey, roomID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache last read: %w", err)
	}
	return nil
}

// Snapshot returns userID -> value for every cached entry of roomID.
func (c *Cache) Snapshot(ctx context.Context, roomID string) (map[string]string, error) {
	prefix := roomPrefix(roomID)

	var keys []string
	iter := c.client.Scan(ctx, 0, escapeGlob(prefix)+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan last read keys: %w", err)
	}

	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	pipe := c.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Get(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read last read values: %w", err)
	}

	for i, cmd := range cmds {
		val, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			continue // expired between SCAN and GET
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", keys[i], err)
		}
		out[strings.TrimPrefix(keys[i], prefix)] = val
	}
	return out, nil
}

// PopDirty removes and returns up to n dirty rooms.
func (c *Cache) PopDirty(ctx context.Context, n int) ([]string, error) {
	rooms, err := c.client.SPopN(ctx, dirtyKey, int64(n)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to pop dirty rooms: %w", err)
	}
	return rooms, nil
}

// MarkDirty puts rooms back on the dirty set.
func (c *Cache) MarkDirty(ctx context.Context, rooms ...string) error {
	if len(rooms) == 0 {
		return nil
	}
	members := make([]interface{}, len(rooms))
	for i, r := range rooms {
		members[i] = r
	}
	return c.client.SAdd(ctx, dirtyKey, members...).Err()
}

// escapeGlob quotes the SCAN MATCH metacharacters in s.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
