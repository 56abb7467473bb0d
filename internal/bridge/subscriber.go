package bridge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
	"github.com/weiawesome/wes-chat-realtime/internal/metrics"
	"github.com/weiawesome/wes-chat-realtime/pkg/log"
)

const reconnectDelay = 2 * time.Second

// PubSubClient opens subscriptions. *redis.Client implements it.
type PubSubClient interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// Emitter delivers a payload to the local sessions of a room.
type Emitter interface {
	EmitToRoom(roomID string, payload []byte) int
}

// ReadLister resolves the current read list of a room.
type ReadLister interface {
	ReadList(ctx context.Context, roomID string) ([]domain.ReadEntry, error)
}

// Subscriber turns bridge signals into status-hub broadcasts on this
// instance, including signals this instance published itself.
type Subscriber struct {
	client PubSubClient
	hub    Emitter
	reads  ReadLister
	doneCh chan struct{}
	ready  chan struct{}
}

func NewSubscriber(client PubSubClient, h Emitter, reads ReadLister) *Subscriber {
	return &Subscriber{
		client: client,
		hub:    h,
		reads:  reads,
		doneCh: make(chan struct{}),
		ready:  make(chan struct{}, 1),
	}
}

// Done returns a channel that is closed when Run() exits.
func (s *Subscriber) Done() <-chan struct{} { return s.doneCh }

// Ready receives a value each time a subscription becomes active.
func (s *Subscriber) Ready() <-chan struct{} { return s.ready }

// Run subscribes to both channels and rebroadcasts until ctx is done.
// Reconnects on receive errors.
func (s *Subscriber) Run(ctx context.Context) {
	defer close(s.doneCh)
	l := log.Ctx(ctx)

	for {
		err := s.runSubscription(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			l.Warn().Err(err).Msg("bridge subscription error, reconnecting in 2s")
		} else {
			l.Warn().Msg("bridge subscription closed, reconnecting in 2s")
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (s *Subscriber) runSubscription(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, ChannelPresence, ChannelRead)
	defer pubsub.Close()

	// Wait for subscription to be active
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	select {
	case s.ready <- struct{}{}:
	default:
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handleMessage(ctx, msg.Channel, msg.Payload)
		}
	}
}

func (s *Subscriber) handleMessage(ctx context.Context, channel, payload string) {
	metrics.BridgeSignals.WithLabelValues(channel, "in").Inc()

	switch channel {
	case ChannelPresence:
		s.handlePresence(ctx, payload)
	case ChannelRead:
		s.handleRead(ctx, payload)
	}
}

func (s *Subscriber) handlePresence(ctx context.Context, payload string) {
	l := log.Ctx(ctx)

	var sig PresenceSignal
	if err := json.Unmarshal([]byte(payload), &sig); err != nil {
		l.Warn().Err(err).Str(log.FieldChannel, ChannelPresence).Msg("bridge: invalid payload")
		return
	}
	if sig.RoomID == "" || sig.UserID == "" {
		return
	}
	sig.Type = domain.MsgTypeStatus

	s.emit(ctx, sig.RoomID, &sig)
}

func (s *Subscriber) handleRead(ctx context.Context, payload string) {
	l := log.Ctx(ctx)

	var sig ReadSignal
	if err := json.Unmarshal([]byte(payload), &sig); err != nil {
		l.Warn().Err(err).Str(log.FieldChannel, ChannelRead).Msg("bridge: invalid payload")
		return
	}
	if sig.RoomID == "" {
		return
	}

	list, err := s.reads.ReadList(ctx, sig.RoomID)
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, sig.RoomID).Msg("bridge: read list lookup failed")
		return
	}

	s.emit(ctx, sig.RoomID, &domain.ReadListBroadcast{
		Type:     domain.MsgTypeReadList,
		RoomID:   sig.RoomID,
		UserID:   sig.UserID,
		ReadList: list,
	})
}

func (s *Subscriber) emit(ctx context.Context, roomID string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldRoomID, roomID).Msg("bridge: marshal failed")
		return
	}
	s.hub.EmitToRoom(roomID, data)
}
