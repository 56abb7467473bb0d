// Package history serves recent room messages for replay and the history
// query.
package history

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
)

const (
	DefaultLimit = 30
	MaxLimit     = 100
	MaxOffset    = 10000
)

var (
	ErrInvalidRoom   = errors.New("roomId is required")
	ErrInvalidOffset = fmt.Errorf("offset must be between 0 and %d", MaxOffset)
)

// Store is the durable message store.
type Store interface {
	Save(ctx context.Context, msg *domain.ChatMessage) error
	ListRecent(ctx context.Context, roomID string, offset, limit int) ([]domain.ChatMessage, error)
}

type Service struct {
	store Store
	sf    singleflight.Group
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Save appends msg to the durable store.
func (s *Service) Save(ctx context.Context, msg *domain.ChatMessage) error {
	return s.store.Save(ctx, msg)
}

// Recent returns up to limit messages of roomID after skipping the offset
// newest, ordered oldest first. Concurrent identical queries share one store
// read.
func (s *Service) Recent(ctx context.Context, roomID string, offset, limit int) ([]domain.ChatMessage, error) {
	if strings.TrimSpace(roomID) == "" {
		return nil, ErrInvalidRoom
	}
	if offset < 0 {
		offset = 0
	}
	if offset > MaxOffset {
		return nil, ErrInvalidOffset
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	key := fmt.Sprintf("%s:%d:%d", roomID, offset, limit)
	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		msgs, err := s.store.ListRecent(ctx, roomID, offset, limit)
		if err != nil {
			return nil, fmt.Errorf("failed to get messages from store: %w", err)
		}
		sorted := make([]domain.ChatMessage, len(msgs))
		copy(sorted, msgs)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})
		return sorted, nil
	})
	if err != nil {
		return nil, err
	}

	shared := result.([]domain.ChatMessage)
	out := make([]domain.ChatMessage, len(shared))
	copy(out, shared)
	return out, nil
}
