package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
	"github.com/weiawesome/wes-chat-realtime/internal/hub"
	"github.com/weiawesome/wes-chat-realtime/pkg/log"
)

// ChatHandler serves chat/{roomId}: live messages plus inline read receipts.
type ChatHandler struct {
	Hub      *hub.Hub
	History  MessageHistory
	Rooms    RoomStore
	Pipeline MessageAppender
	Reads    ReadTracker
	Presence PresenceTracker
	Detach   *Detacher
	Clock    clock.Clock

	ReplayLimit int
	Timeout     time.Duration

	// Heartbeat is how often an open session refreshes its presence marker.
	// Zero disables it.
	Heartbeat time.Duration
}

func (h *ChatHandler) Endpoint() string { return "chat" }

func (h *ChatHandler) clk() clock.Clock {
	if h.Clock == nil {
		return clock.New()
	}
	return h.Clock
}

func (h *ChatHandler) now() time.Time { return h.clk().Now() }

func (h *ChatHandler) Handle(c *Conn) error {
	if _, err := c.Open(h.Hub, h.replay(c.RoomID())); err != nil {
		return err
	}

	roomID, userID := c.RoomID(), c.UserID()
	c.Effects().Go("presence_online", func(ctx context.Context) error {
		return h.Presence.SetStatus(ctx, roomID, userID, domain.StatusOnline)
	})

	stop, stopped := make(chan struct{}), make(chan struct{})
	go h.heartbeat(c, stop, stopped)

	c.ReadLoop(func(ctx context.Context, data []byte) {
		h.onFrame(ctx, c, data)
	})

	// No refresh may land on the lane after the offline write.
	close(stop)
	<-stopped

	c.Effects().Must("read_reconcile", func(ctx context.Context) error {
		_, err := h.Reads.Reconcile(ctx, roomID)
		return err
	})
	c.Effects().Must("presence_offline", func(ctx context.Context) error {
		return h.Presence.SetStatus(ctx, roomID, userID, domain.StatusOffline)
	})
	return nil
}

// heartbeat queues a presence refresh on every tick until stop is closed.
func (h *ChatHandler) heartbeat(c *Conn, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	if h.Heartbeat <= 0 {
		return
	}

	roomID, userID := c.RoomID(), c.UserID()
	ticker := h.clk().Ticker(h.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Effects().Go("presence_refresh", func(ctx context.Context) error {
				return h.Presence.Refresh(ctx, roomID, userID)
			})
		}
	}
}

// replay loads recent history oldest first, encoded as delivery frames.
func (h *ChatHandler) replay(roomID string) ReplayFunc {
	return func(ctx context.Context) ([][]byte, error) {
		ctx, cancel := withTimeout(ctx, h.Timeout)
		defer cancel()

		msgs, err := h.History.Recent(ctx, roomID, 0, h.ReplayLimit)
		if err != nil {
			return nil, err
		}
		out := make([][]byte, 0, len(msgs))
		for i := range msgs {
			data, err := json.Marshal(&msgs[i])
			if err != nil {
				return out, err
			}
			out = append(out, data)
		}
		return out, nil
	}
}

func (h *ChatHandler) onFrame(ctx context.Context, c *Conn, data []byte) {
	f, ok := parse(ctx, data)
	if !ok {
		return
	}

	switch kind := f.Kind(); kind {
	case domain.FrameChat:
		h.onChat(ctx, c, f)
	case domain.FrameRead:
		recordRead(ctx, h.Reads, h.Timeout, c, f)
	default:
		drop(ctx, kind, domain.ErrMalformedFrame)
	}
}

// onChat accepts a chat-send frame. Local delivery does not wait for the
// store.
func (h *ChatHandler) onChat(ctx context.Context, c *Conn, f *domain.InboundFrame) {
	body, err := f.Body()
	if err != nil {
		drop(ctx, domain.FrameChat, err)
		return
	}

	msg := domain.NewChatMessage(f.MsgID, c.RoomID(), c.UserID(), body, h.now())
	payload, err := json.Marshal(msg)
	if err != nil {
		drop(ctx, domain.FrameChat, err)
		return
	}

	newRoom := bool(f.IsNewRoomMsg)
	participants := f.Recipients()
	h.Detach.Go(ctx, "message_persist", func(ctx context.Context) error {
		var errs error
		if newRoom {
			if err := h.Rooms.EnsureRoom(ctx, msg.RoomID, msg.Sender, participants); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
		errs = multierr.Append(errs, h.History.Save(ctx, msg))
		errs = multierr.Append(errs, h.Rooms.RecordMessage(ctx, msg))
		return errs
	})

	n := h.Hub.EmitToRoom(msg.RoomID, payload)
	accepted(domain.FrameChat)

	l := log.Ctx(ctx)
	// Append order must match submission order within the room. The producer
	// only queues.
	if err := h.Pipeline.AppendMessage(ctx, msg); err != nil {
		l.Error().Err(err).Str(log.FieldMsgID, msg.MsgID).Msg("failed to append message to pipeline")
	}
	l.Debug().Str(log.FieldMsgID, msg.MsgID).Int("delivered", n).Msg("chat message accepted")
}
