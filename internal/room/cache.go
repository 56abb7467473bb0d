package room

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
)

// Redis key patterns:
// chat_room:{room_id}   HASH   - last message summary
//   - lastMessage: body
//   - lastMessageTime: unix millis
//   - lastSender: user_id
func summaryKey(roomID string) string {
	return "chat_room:" + roomID
}

// casSummaryScript writes the summary only when the incoming time is newer
// than the stored one. Returns 1 if written, 0 otherwise.
var casSummaryScript = redis.NewScript(`
local key = KEYS[1]
local incoming = tonumber(ARGV[2])
local current = tonumber(redis.call("HGET", key, "lastMessageTime"))
if current and current >= incoming then
  return 0
end
redis.call("HSET", key, "lastMessage", ARGV[1], "lastMessageTime", ARGV[2], "lastSender", ARGV[3])
return 1
`)

// SummaryCache holds the room's latest message summary in Redis.
type SummaryCache struct {
	client redis.Cmdable
}

func NewSummaryCache(client redis.Cmdable) *SummaryCache {
	return &SummaryCache{client: client}
}

// Apply stores u unless the cached summary is already as new. It reports
// whether the summary changed.
func (c *SummaryCache) Apply(ctx context.Context, u *domain.RoomUpdate) (bool, error) {
	n, err := casSummaryScript.Run(ctx, c.client, []string{summaryKey(u.RoomID)},
		u.LastMessage, u.LastMessageTime.UnixMilli(), u.LastSender).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("redis apply room summary: %w", err)
	}
	return n == 1, nil
}

// Get returns the cached summary; ok is false on a miss.
func (c *SummaryCache) Get(ctx context.Context, roomID string) (u *domain.RoomUpdate, ok bool, err error) {
	fields, err := c.client.HGetAll(ctx, summaryKey(roomID)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis get room summary: %w", err)
	}
	if len(fields) == 0 {
		return nil, false, nil
	}

	ms, err := strconv.ParseInt(fields["lastMessageTime"], 10, 64)
	if err != nil {
		return nil, false, fmt.Errorf("invalid cached lastMessageTime %q: %w", fields["lastMessageTime"], err)
	}
	return &domain.RoomUpdate{
		RoomID:          roomID,
		LastMessage:     fields["lastMessage"],
		LastMessageTime: time.UnixMilli(ms).UTC(),
		LastSender:      fields["lastSender"],
	}, true, nil
}
