package session

import (
	"context"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
)

// MessageHistory persists messages and serves replay.
type MessageHistory interface {
	Save(ctx context.Context, msg *domain.ChatMessage) error
	Recent(ctx context.Context, roomID string, offset, limit int) ([]domain.ChatMessage, error)
}

// RoomStore creates rooms and tracks their last message.
type RoomStore interface {
	EnsureRoom(ctx context.Context, roomID, creator string, participants []string) error
	RecordMessage(ctx context.Context, msg *domain.ChatMessage) error
}

// MessageAppender appends accepted messages to the distribution pipeline.
type MessageAppender interface {
	AppendMessage(ctx context.Context, msg *domain.ChatMessage) error
}

// ReadTracker records and reconciles read progress.
type ReadTracker interface {
	Record(ctx context.Context, r *domain.ReadReceipt) error
	ReadList(ctx context.Context, roomID string) ([]domain.ReadEntry, error)
	Reconcile(ctx context.Context, roomID string) (int, error)
}

// PresenceTracker writes presence transitions and keeps live markers fresh.
type PresenceTracker interface {
	SetStatus(ctx context.Context, roomID, userID string, status domain.Status) error
	Refresh(ctx context.Context, roomID, userID string) error
}
