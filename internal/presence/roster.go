package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-chat-realtime/pkg/database"
)

// ChatRoomOnlineModel is the legacy per-room online-user document.
type ChatRoomOnlineModel struct {
	RoomID      string               `gorm:"primaryKey;size:191"`
	OnlineUsers database.StringArray `gorm:"type:text"`
	UpdatedAt   time.Time
}

func (ChatRoomOnlineModel) TableName() string {
	return "chat_room_online"
}

// Roster maintains the legacy online-user list alongside the TTL markers.
type Roster struct {
	db *gorm.DB
}

func NewRoster(db *gorm.DB) *Roster {
	return &Roster{db: db}
}

func (r *Roster) Migrate() error {
	return r.db.AutoMigrate(&ChatRoomOnlineModel{})
}

// Add puts userID on the room's list if missing.
func (r *Roster) Add(ctx context.Context, roomID, userID string) error {
	return r.update(ctx, roomID, func(users database.StringArray) (database.StringArray, bool) {
		if users.Contains(userID) {
			return users, false
		}
		return append(users, userID), true
	})
}

// Remove takes userID off the room's list.
func (r *Roster) Remove(ctx context.Context, roomID, userID string) error {
	return r.update(ctx, roomID, func(users database.StringArray) (database.StringArray, bool) {
		out := users[:0:0]
		for _, u := range users {
			if u != userID {
				out = append(out, u)
			}
		}
		return out, len(out) != len(users)
	})
}

// Get returns the stored list, empty when the room has no document.
func (r *Roster) Get(ctx context.Context, roomID string) ([]string, error) {
	var m ChatRoomOnlineModel
	err := r.db.WithContext(ctx).First(&m, "room_id = ?", roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load online roster: %w", err)
	}
	if m.OnlineUsers == nil {
		return []string{}, nil
	}
	return m.OnlineUsers, nil
}

func (r *Roster) update(ctx context.Context, roomID string, fn func(database.StringArray) (database.StringArray, bool)) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m ChatRoomOnlineModel
		err := database.ForUpdate(tx).First(&m, "room_id = ?", roomID).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			m = ChatRoomOnlineModel{RoomID: roomID}
		case err != nil:
			return err
		}

		users, changed := fn(m.OnlineUsers)
		if !changed {
			return nil
		}
		m.OnlineUsers = users
		m.UpdatedAt = time.Now().UTC()
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "room_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"online_users", "updated_at"}),
		}).Create(&m).Error
	})
	if err != nil {
		return fmt.Errorf("failed to update online roster: %w", err)
	}
	return nil
}
