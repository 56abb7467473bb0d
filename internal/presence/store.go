package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
)

// Store holds one TTL-bounded status marker per (room, user).
type Store interface {
	// Set writes status and restarts the TTL.
	Set(ctx context.Context, roomID, userID string, status domain.Status) error

	// Refresh restarts the TTL of an existing marker, or writes online when
	// the marker has already expired.
	Refresh(ctx context.Context, roomID, userID string) error

	// Get returns the marker. ok is false when the key is absent or expired.
	Get(ctx context.Context, roomID, userID string) (status domain.Status, ok bool, err error)

	// Online lists users of roomID whose marker reads online.
	Online(ctx context.Context, roomID string) ([]string, error)
}

// Redis key patterns:
// online:{room_id}:{user_id}   STRING "online"|"offline"   - sliding TTL marker
const keyPrefix = "online:"

func onlineKey(roomID, userID string) string {
	return keyPrefix + roomID + ":" + userID
}

type redisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed presence store.
func NewRedisStore(client redis.Cmdable, ttl time.Duration) Store {
	return &redisStore{client: client, ttl: ttl}
}

func (s *redisStore) Set(ctx context.Context, roomID, userID string, status domain.Status) error {
	if err := s.client.Set(ctx, onlineKey(roomID, userID), string(status), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set presence: %w", err)
	}
	return nil
}

func (s *redisStore) Refresh(ctx context.Context, roomID, userID string) error {
	key := onlineKey(roomID, userID)
	ok, err := s.client.Expire(ctx, key, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	if ok {
		return nil
	}
	if err := s.client.SetNX(ctx, key, string(domain.StatusOnline), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh presence: %w", err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, roomID, userID string) (domain.Status, bool, error) {
	val, err := s.client.Get(ctx, onlineKey(roomID, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.StatusOffline, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get presence: %w", err)
	}
	return domain.Status(val), true, nil
}

func (s *redisStore) Online(ctx context.Context, roomID string) ([]string, error) {
	prefix := keyPrefix + roomID + ":"

	var keys []string
	iter := s.client.Scan(ctx, 0, escapeGlob(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan presence: %w", err)
	}
	if len(keys) == 0 {
		return []string{}, nil
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read presence: %w", err)
	}

	users := make([]string, 0, len(keys))
	for i, v := range vals {
		if str, ok := v.(string); ok && domain.Status(str) == domain.StatusOnline {
			users = append(users, strings.TrimPrefix(keys[i], prefix))
		}
	}
	sort.Strings(users)
	return users, nil
}

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
