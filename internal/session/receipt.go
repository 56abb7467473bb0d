package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
	"github.com/weiawesome/wes-chat-realtime/internal/hub"
)

// ReceiptHandler serves rs/{roomId}: read receipts and status frames, with
// read-list and status broadcasts delivered through the status hub.
type ReceiptHandler struct {
	Hub      *hub.Hub
	Reads    ReadTracker
	Presence PresenceTracker
	Timeout  time.Duration
}

func (h *ReceiptHandler) Endpoint() string { return "rs" }

func (h *ReceiptHandler) Handle(c *Conn) error {
	if _, err := c.Open(h.Hub, h.replay(c.RoomID(), c.UserID())); err != nil {
		return err
	}

	c.ReadLoop(func(ctx context.Context, data []byte) {
		h.onFrame(ctx, c, data)
	})

	roomID := c.RoomID()
	c.Effects().Must("read_reconcile", func(ctx context.Context) error {
		_, err := h.Reads.Reconcile(ctx, roomID)
		return err
	})
	return nil
}

// replay sends the room's current read list so the client starts from known
// state.
func (h *ReceiptHandler) replay(roomID, userID string) ReplayFunc {
	return func(ctx context.Context) ([][]byte, error) {
		ctx, cancel := withTimeout(ctx, h.Timeout)
		defer cancel()

		list, err := h.Reads.ReadList(ctx, roomID)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(&domain.ReadListBroadcast{
			Type:     domain.MsgTypeReadList,
			RoomID:   roomID,
			UserID:   userID,
			ReadList: list,
		})
		if err != nil {
			return nil, err
		}
		return [][]byte{data}, nil
	}
}

// onFrame acts on every part the frame carries: a msgId records read
// progress and a status changes presence.
func (h *ReceiptHandler) onFrame(ctx context.Context, c *Conn, data []byte) {
	f, ok := parse(ctx, data)
	if !ok {
		return
	}

	handled := false
	if strings.TrimSpace(f.MsgID) != "" {
		recordRead(ctx, h.Reads, h.Timeout, c, f)
		handled = true
	}
	if strings.TrimSpace(f.Status) != "" {
		setStatus(ctx, c, h.Presence, f)
		handled = true
	}
	if !handled {
		drop(ctx, f.Kind(), domain.ErrMalformedFrame)
	}
}
