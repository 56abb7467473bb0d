package cassandra

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
)

const messagesTableCQL = `
CREATE TABLE IF NOT EXISTS messages_by_room (
	room_id text,
	created_at timestamp,
	msg_id text,
	sender text,
	body text,
	PRIMARY KEY ((room_id), created_at, msg_id)
) WITH CLUSTERING ORDER BY (created_at DESC, msg_id ASC)`

// MessageRepository reads and writes the messages_by_room table.
type MessageRepository struct {
	session *gocql.Session
}

func NewMessageRepository(client *Client) *MessageRepository {
	return &MessageRepository{session: client.Session()}
}

// Save persists an accepted chat message. Saving the same message twice
// overwrites the row.
func (r *MessageRepository) Save(ctx context.Context, msg *domain.ChatMessage) error {
	query := `
		INSERT INTO messages_by_room (
			room_id, created_at, msg_id, sender, body
		) VALUES (?, ?, ?, ?, ?)`

	err := r.session.Query(query,
		msg.RoomID,
		msg.Timestamp,
		msg.MsgID,
		msg.Sender,
		msg.Body,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}
	return nil
}

// ListRecent returns up to limit messages of roomID, newest first, after
// skipping the offset newest ones.
func (r *MessageRepository) ListRecent(ctx context.Context, roomID string, offset, limit int) ([]domain.ChatMessage, error) {
	// Cassandra has no OFFSET; read past it and discard.
	query := `SELECT msg_id, room_id, sender, body, created_at
			  FROM messages_by_room
			  WHERE room_id = ?
			  LIMIT ?`

	iter := r.session.Query(query, roomID, offset+limit).WithContext(ctx).Iter()

	var (
		messages  []domain.ChatMessage
		msg       domain.ChatMessage
		createdAt time.Time
		row       int
	)
	for iter.Scan(&msg.MsgID, &msg.RoomID, &msg.Sender, &msg.Body, &createdAt) {
		if row >= offset {
			msg.Timestamp = createdAt.UTC()
			messages = append(messages, msg)
		}
		row++
		msg = domain.ChatMessage{}
	}

	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}
