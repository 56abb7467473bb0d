package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
	"github.com/weiawesome/wes-chat-realtime/pkg/log"
)

// Emitter delivers a payload to the local sessions of a room.
type Emitter interface {
	EmitToRoom(roomID string, payload []byte) int
}

// RoomApplier folds a room update into local room state.
type RoomApplier interface {
	ApplyUpdate(ctx context.Context, u *domain.RoomUpdate) error
}

// Router dispatches consumed records by topic.
type Router struct {
	topics     map[string]string
	chat       Emitter
	rooms      RoomApplier
	instanceID string
}

func NewRouter(messagesTopic, roomUpdatesTopic, instanceID string, chat Emitter, rooms RoomApplier) *Router {
	return &Router{
		topics: map[string]string{
			messagesTopic:    TypeMessage,
			roomUpdatesTopic: TypeRoomUpdate,
		},
		chat:       chat,
		rooms:      rooms,
		instanceID: instanceID,
	}
}

// Handle applies rec. Chat messages appended by this instance were already
// delivered locally and are skipped.
func (r *Router) Handle(ctx context.Context, rec Record) error {
	switch r.topics[rec.Topic] {
	case TypeMessage:
		if rec.Origin != "" && rec.Origin == r.instanceID {
			return nil
		}
		return r.relayMessage(ctx, rec)
	case TypeRoomUpdate:
		return r.applyRoomUpdate(ctx, rec)
	default:
		l := log.Ctx(ctx)
		l.Debug().Str(log.FieldTopic, rec.Topic).Msg("record on unrouted topic ignored")
		return nil
	}
}

func (r *Router) relayMessage(ctx context.Context, rec Record) error {
	var msg domain.ChatMessage
	if err := json.Unmarshal(rec.Value, &msg); err != nil {
		return fmt.Errorf("invalid chat message: %w", err)
	}
	if msg.RoomID == "" {
		return fmt.Errorf("chat message %q has no room", msg.MsgID)
	}

	payload, err := json.Marshal(&msg)
	if err != nil {
		return fmt.Errorf("failed to marshal chat message: %w", err)
	}
	n := r.chat.EmitToRoom(msg.RoomID, payload)

	l := log.Ctx(ctx)
	l.Debug().
		Str(log.FieldRoomID, msg.RoomID).
		Str(log.FieldMsgID, msg.MsgID).
		Str("origin", rec.Origin).
		Int("delivered", n).
		Msg("relayed chat message")
	return nil
}

func (r *Router) applyRoomUpdate(ctx context.Context, rec Record) error {
	var u domain.RoomUpdate
	if err := json.Unmarshal(rec.Value, &u); err != nil {
		return fmt.Errorf("invalid room update: %w", err)
	}
	if u.RoomID == "" {
		return fmt.Errorf("room update has no room")
	}
	return r.rooms.ApplyUpdate(ctx, &u)
}
