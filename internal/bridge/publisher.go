package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
	"github.com/weiawesome/wes-chat-realtime/internal/metrics"
)

// Publisher sends signals on the bridge channels.
type Publisher struct {
	client redis.Cmdable
}

func NewPublisher(client redis.Cmdable) *Publisher {
	return &Publisher{client: client}
}

// PublishPresence announces a status transition.
func (p *Publisher) PublishPresence(ctx context.Context, roomID, userID string, status domain.Status) error {
	return p.publish(ctx, ChannelPresence, domain.NewStatusBroadcast(roomID, userID, status))
}

// PublishRead announces that userID's read progress in roomID moved.
func (p *Publisher) PublishRead(ctx context.Context, roomID, userID string) error {
	return p.publish(ctx, ChannelRead, &ReadSignal{RoomID: roomID, UserID: userID})
}

func (p *Publisher) publish(ctx context.Context, channel string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s signal: %w", channel, err)
	}
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s signal: %w", channel, err)
	}
	metrics.BridgeSignals.WithLabelValues(channel, "out").Inc()
	return nil
}
