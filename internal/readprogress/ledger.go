package readprogress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/weiawesome/wes-chat-realtime/pkg/database"
)

const mergeAttempts = 5

// ErrMergeConflict is returned when the row kept changing under Merge.
var ErrMergeConflict = errors.New("last read ledger kept changing during merge")

// LastReadModel is the durable ChatRoomLastRead document: one row per room
// holding the whole userID -> value map.
type LastReadModel struct {
	RoomID      string             `gorm:"primaryKey;size:191"`
	LastReadMap database.StringMap `gorm:"type:text"`
	Version     int64              `gorm:"not null;default:0"`
	UpdatedAt   time.Time
}

func (LastReadModel) TableName() string {
	return "chat_room_last_read"
}

// Ledger is the durable tier of read progress.
type Ledger struct {
	db *gorm.DB
}

// NewLedger creates a ledger over db.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Migrate creates the ledger table.
func (l *Ledger) Migrate() error {
	return l.db.AutoMigrate(&LastReadModel{})
}

// Get returns the stored map for roomID, empty when the room has none.
func (l *Ledger) Get(ctx context.Context, roomID string) (map[string]string, error) {
	var m LastReadModel
	err := l.db.WithContext(ctx).First(&m, "room_id = ?", roomID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last read ledger: %w", err)
	}
	if m.LastReadMap == nil {
		return map[string]string{}, nil
	}
	return m.LastReadMap, nil
}

// Merge writes the entries of snapshot that differ from the stored map and
// returns how many changed. Entries absent from snapshot are kept. Merging the
// same snapshot twice changes nothing the second time.
//
// The row is written with a version compare-and-set, so a concurrent merge of
// other users' entries is re-read and folded in rather than overwritten.
func (l *Ledger) Merge(ctx context.Context, roomID string, snapshot map[string]string) (int, error) {
	if len(snapshot) == 0 {
		return 0, nil
	}

	for attempt := 0; attempt < mergeAttempts; attempt++ {
		changed, ok, err := l.tryMerge(ctx, roomID, snapshot)
		if err != nil {
			return 0, fmt.Errorf("failed to merge last read ledger: %w", err)
		}
		if ok {
			return changed, nil
		}
	}
	return 0, fmt.Errorf("failed to merge last read ledger: %w", ErrMergeConflict)
}

// tryMerge applies snapshot to the row as read. ok is false when another
// writer changed the row in between.
func (l *Ledger) tryMerge(ctx context.Context, roomID string, snapshot map[string]string) (int, bool, error) {
	db := l.db.WithContext(ctx)

	var m LastReadModel
	exists := true
	err := db.First(&m, "room_id = ?", roomID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		exists = false
	case err != nil:
		return 0, false, err
	}

	merged := make(database.StringMap, len(m.LastReadMap)+len(snapshot))
	for userID, value := range m.LastReadMap {
		merged[userID] = value
	}
	changed := 0
	for userID, value := range snapshot {
		if cur, ok := merged[userID]; ok && cur == value {
			continue
		}
		merged[userID] = value
		changed++
	}
	if changed == 0 {
		return 0, true, nil
	}

	now := time.Now().UTC()
	if !exists {
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&LastReadModel{
			RoomID:      roomID,
			LastReadMap: merged,
			Version:     1,
			UpdatedAt:   now,
		})
		if res.Error != nil {
			return 0, false, res.Error
		}
		return changed, res.RowsAffected == 1, nil
	}

	res := db.Model(&LastReadModel{}).
		Where("room_id = ? AND version = ?", roomID, m.Version).
		Updates(map[string]interface{}{
			"last_read_map": merged,
			"version":       m.Version + 1,
			"updated_at":    now,
		})
	if res.Error != nil {
		return 0, false, res.Error
	}
	return changed, res.RowsAffected == 1, nil
}
