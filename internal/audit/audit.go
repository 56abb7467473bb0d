package audit

import (
	"context"

	"github.com/weiawesome/wes-chat-realtime/pkg/log"
)

// Audit actions for the realtime core.
const (
	ActionSessionOpen     = "chat.session_open"
	ActionSessionRejected = "chat.session_rejected"
	ActionSessionClose    = "chat.session_close"
	ActionRoomCreated     = "chat.room_created"
	ActionPresence        = "chat.presence_changed"
)

// Field constants for audit entries.
const (
	FieldAction = "action"
	FieldDetail = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action string, userID string, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogRoom emits an audit entry scoped to a room. detail may be empty.
func LogRoom(ctx context.Context, action, roomID, userID, detail, msg string) {
	l := log.Ctx(ctx)
	e := l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldRoomID, roomID).
		Str(log.FieldUserID, userID)
	if detail != "" {
		e = e.Str(FieldDetail, detail)
	}
	e.Msg(msg)
}
