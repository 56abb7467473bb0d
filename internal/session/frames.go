package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
	"github.com/weiawesome/wes-chat-realtime/internal/metrics"
	"github.com/weiawesome/wes-chat-realtime/pkg/log"
)

var errMissingMsgID = fmt.Errorf("%w: msgId is required", domain.ErrMalformedFrame)

// parse decodes data, logging and counting frames that cannot be decoded.
func parse(ctx context.Context, data []byte) (*domain.InboundFrame, bool) {
	f, err := domain.ParseFrame(data)
	if err != nil {
		drop(ctx, domain.FrameUnknown, err)
		return nil, false
	}
	return f, true
}

func drop(ctx context.Context, kind domain.FrameKind, err error) {
	metrics.SessionFrames.WithLabelValues(kind.String(), metrics.ResultDropped).Inc()
	l := log.Ctx(ctx)
	l.Warn().Err(err).Str("kind", kind.String()).Msg("frame dropped")
}

func accepted(kind domain.FrameKind) {
	metrics.SessionFrames.WithLabelValues(kind.String(), metrics.ResultOK).Inc()
}

// receiptFrom builds a receipt for the session's own user and room; identity
// in the frame is ignored.
func receiptFrom(c *Conn, f *domain.InboundFrame) (*domain.ReadReceipt, error) {
	if strings.TrimSpace(f.MsgID) == "" {
		return nil, errMissingMsgID
	}
	return &domain.ReadReceipt{
		RoomID:       c.RoomID(),
		UserID:       c.UserID(),
		MsgID:        strings.TrimSpace(f.MsgID),
		Participants: f.Recipients(),
		Timestamp:    f.Timestamp,
	}, nil
}

// recordRead writes a receipt through to the cache tier before the next frame
// is read, bounded by timeout.
func recordRead(ctx context.Context, reads ReadTracker, timeout time.Duration, c *Conn, f *domain.InboundFrame) {
	r, err := receiptFrom(c, f)
	if err != nil {
		drop(ctx, domain.FrameRead, err)
		return
	}
	rctx, cancel := withTimeout(ctx, timeout)
	defer cancel()
	if err := reads.Record(rctx, r); err != nil {
		metrics.SessionFrames.WithLabelValues(domain.FrameRead.String(), metrics.ResultError).Inc()
		l := log.Ctx(ctx)
		l.Error().Err(err).Str(log.FieldMsgID, r.MsgID).Msg("read receipt not recorded")
		return
	}
	accepted(domain.FrameRead)
}

const defaultTimeout = 5 * time.Second

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = defaultTimeout
	}
	return context.WithTimeout(ctx, d)
}
