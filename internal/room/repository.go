package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
	"github.com/weiawesome/wes-chat-realtime/pkg/database"
	"github.com/weiawesome/wes-chat-realtime/pkg/log"
)

var ErrRoomNotFound = errors.New("room not found")

// Repository stores room metadata with GORM.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(&ChatRoomModel{})
}

// Create inserts the room unless one with the same id exists. created reports
// whether this call inserted it.
func (r *Repository) Create(ctx context.Context, room *domain.ChatRoom) (created bool, err error) {
	model := &ChatRoomModel{
		RoomID:       room.RoomID,
		Participants: database.StringArray(room.Participants),
		RoomType:     room.RoomType,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "room_id"}}, DoNothing: true}).
		Create(model)
	if result.Error != nil {
		l := log.Ctx(ctx)
		l.Error().Err(result.Error).Str(log.FieldRoomID, room.RoomID).Msg("failed to create room in db")
		return false, fmt.Errorf("failed to create room: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetByID retrieves a room by ID.
func (r *Repository) GetByID(ctx context.Context, roomID string) (*domain.ChatRoom, error) {
	var model ChatRoomModel
	result := r.db.WithContext(ctx).First(&model, "room_id = ?", roomID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", result.Error)
	}
	return model.ToDomain(), nil
}

// UpdateLastMessage writes the room's last message when msg is newer than
// the stored one. It reports whether a row changed.
func (r *Repository) UpdateLastMessage(ctx context.Context, msg *domain.ChatMessage) (bool, error) {
	ts := msg.Timestamp.UTC()
	result := r.db.WithContext(ctx).
		Model(&ChatRoomModel{}).
		Where("room_id = ? AND (last_message_time IS NULL OR last_message_time < ?)", msg.RoomID, ts).
		Updates(map[string]any{
			"last_message":      msg.Body,
			"last_message_time": ts,
			"last_sender":       msg.Sender,
			"updated_at":        time.Now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update last message: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
