package session

import (
	"context"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
	"github.com/weiawesome/wes-chat-realtime/internal/hub"
)

// PresenceHandler serves presence/{roomId}: status frames in, status
// broadcasts out through the status hub.
type PresenceHandler struct {
	Hub      *hub.Hub
	Presence PresenceTracker
}

func (h *PresenceHandler) Endpoint() string { return "presence" }

func (h *PresenceHandler) Handle(c *Conn) error {
	if _, err := c.Open(h.Hub, nil); err != nil {
		return err
	}

	announced := false
	c.ReadLoop(func(ctx context.Context, data []byte) {
		f, ok := parse(ctx, data)
		if !ok {
			return
		}
		if f.Kind() != domain.FrameStatus {
			drop(ctx, f.Kind(), domain.ErrMalformedFrame)
			return
		}
		if setStatus(ctx, c, h.Presence, f) {
			announced = true
		}
	})

	if announced {
		roomID, userID := c.RoomID(), c.UserID()
		c.Effects().Must("presence_offline", func(ctx context.Context) error {
			return h.Presence.SetStatus(ctx, roomID, userID, domain.StatusOffline)
		})
	}
	return nil
}

// setStatus queues a presence transition from a status frame on the
// session's lane and reports whether the frame was valid.
func setStatus(ctx context.Context, c *Conn, p PresenceTracker, f *domain.InboundFrame) bool {
	status, err := domain.ParseStatus(f.Status)
	if err != nil {
		drop(ctx, domain.FrameStatus, err)
		return false
	}
	roomID, userID := c.RoomID(), c.UserID()
	c.Effects().Go("presence_"+string(status), func(ctx context.Context) error {
		return p.SetStatus(ctx, roomID, userID, status)
	})
	accepted(domain.FrameStatus)
	return true
}
