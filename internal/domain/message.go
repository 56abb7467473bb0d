package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ChatMessage is an accepted chat message. Its JSON form is the outbound
// delivery frame as well as the pipeline payload.
type ChatMessage struct {
	MsgID     string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Sender    string    `json:"sender"`
	Body      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChatMessage stamps a chat-send frame with room, sender and time. A blank
// msgID is replaced by a fresh UUID.
func NewChatMessage(msgID, roomID, sender, body string, now time.Time) *ChatMessage {
	msgID = strings.TrimSpace(msgID)
	if msgID == "" {
		msgID = uuid.NewString()
	}
	return &ChatMessage{
		MsgID:     msgID,
		RoomID:    roomID,
		Sender:    sender,
		Body:      body,
		Timestamp: now.UTC(),
	}
}
