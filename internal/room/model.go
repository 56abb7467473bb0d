package room

import (
	"time"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
	"github.com/weiawesome/wes-chat-realtime/pkg/database"
)

// ChatRoomModel is the GORM model for room metadata.
type ChatRoomModel struct {
	RoomID          string               `gorm:"primaryKey;size:191"`
	Participants    database.StringArray `gorm:"type:text"`
	LastMessage     string               `gorm:"type:text"`
	LastMessageTime *time.Time
	LastSender      string `gorm:"size:191"`
	RoomType        string `gorm:"size:16"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (ChatRoomModel) TableName() string {
	return "chat_rooms"
}

// ToDomain converts the model to a domain room.
func (m *ChatRoomModel) ToDomain() *domain.ChatRoom {
	r := &domain.ChatRoom{
		RoomID:       m.RoomID,
		Participants: []string(m.Participants),
		LastMessage:  m.LastMessage,
		LastSender:   m.LastSender,
		RoomType:     m.RoomType,
	}
	if r.Participants == nil {
		r.Participants = []string{}
	}
	if m.LastMessageTime != nil {
		r.LastMessageTime = m.LastMessageTime.UTC()
	}
	return r
}
