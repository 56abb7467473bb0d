// Package room owns the room metadata the realtime core touches: creation on
// a new-room message and the last-message summary.
package room

import (
	"context"
	"errors"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"

	"github.com/weiawesome/wes-chat-realtime/internal/audit"
	"github.com/weiawesome/wes-chat-realtime/internal/domain"
	"github.com/weiawesome/wes-chat-realtime/pkg/log"
)

const defaultKnownRooms = 4096

// UpdateAppender appends room updates to the pipeline.
type UpdateAppender interface {
	AppendRoomUpdate(ctx context.Context, u *domain.RoomUpdate) error
}

type Service struct {
	repo     *Repository
	cache    *SummaryCache
	appender UpdateAppender
	known    *lru.Cache[string, struct{}]
}

// NewService wires the room store. knownRooms bounds the set of room ids
// remembered as existing; zero picks a default.
func NewService(repo *Repository, cache *SummaryCache, appender UpdateAppender, knownRooms int) (*Service, error) {
	if knownRooms <= 0 {
		knownRooms = defaultKnownRooms
	}
	known, err := lru.New[string, struct{}](knownRooms)
	if err != nil {
		return nil, err
	}
	return &Service{repo: repo, cache: cache, appender: appender, known: known}, nil
}

// EnsureRoom creates the room if it does not exist yet. Repeating it for an
// existing room changes nothing.
func (s *Service) EnsureRoom(ctx context.Context, roomID, creator string, participants []string) error {
	if strings.TrimSpace(roomID) == "" {
		return ErrRoomNotFound
	}
	if s.known.Contains(roomID) {
		return nil
	}

	members := participants
	if creator != "" && !contains(members, creator) {
		members = append([]string{creator}, members...)
	}

	created, err := s.repo.Create(ctx, &domain.ChatRoom{
		RoomID:       roomID,
		Participants: members,
		RoomType:     domain.RoomTypeGroup,
	})
	if err != nil {
		return err
	}
	s.known.Add(roomID, struct{}{})

	if created {
		audit.LogRoom(ctx, audit.ActionRoomCreated, roomID, creator, strings.Join(members, ","), "room created")
	}
	return nil
}

// RecordMessage moves the room's last message forward and appends the update
// to the pipeline. Both steps run; their failures are returned together.
func (s *Service) RecordMessage(ctx context.Context, msg *domain.ChatMessage) error {
	var errs error
	if _, err := s.repo.UpdateLastMessage(ctx, msg); err != nil {
		errs = multierr.Append(errs, err)
	}
	if s.appender != nil {
		errs = multierr.Append(errs, s.appender.AppendRoomUpdate(ctx, domain.RoomUpdateFrom(msg)))
	}
	return errs
}

// ApplyUpdate folds a consumed room update into the summary cache.
func (s *Service) ApplyUpdate(ctx context.Context, u *domain.RoomUpdate) error {
	changed, err := s.cache.Apply(ctx, u)
	if err != nil {
		return err
	}
	if changed {
		l := log.Ctx(ctx)
		l.Debug().Str(log.FieldRoomID, u.RoomID).Msg("room summary updated")
	}
	return nil
}

// Summary returns the room with the freshest known last message.
func (s *Service) Summary(ctx context.Context, roomID string) (*domain.ChatRoom, error) {
	room, err := s.repo.GetByID(ctx, roomID)
	if err != nil {
		return nil, err
	}

	u, ok, err := s.cache.Get(ctx, roomID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("room summary cache unavailable")
		return room, nil
	}
	if ok && u.LastMessageTime.After(room.LastMessageTime) {
		room.LastMessage = u.LastMessage
		room.LastMessageTime = u.LastMessageTime
		room.LastSender = u.LastSender
	}
	return room, nil
}

// IsNotFound reports whether err means the room does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRoomNotFound)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
