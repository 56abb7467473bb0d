// Package presence tracks who is online in a room. The TTL markers in Redis
// are authoritative; the legacy roster document is kept in step when enabled.
package presence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/weiawesome/wes-chat-realtime/internal/audit"
	"github.com/weiawesome/wes-chat-realtime/internal/domain"
)

var ErrInvalidIdentity = errors.New("roomId and userId are required")

// Signaler announces presence transitions to every instance.
type Signaler interface {
	PublishPresence(ctx context.Context, roomID, userID string, status domain.Status) error
}

type Service struct {
	store  Store
	roster *Roster
	signal Signaler
}

// NewService wires the presence store. roster may be nil to disable the
// legacy list document.
func NewService(store Store, roster *Roster, signal Signaler) *Service {
	return &Service{store: store, roster: roster, signal: signal}
}

// SetStatus writes the marker, updates the roster and publishes the
// transition. Each step runs even when an earlier one fails; the failures are
// returned together.
func (s *Service) SetStatus(ctx context.Context, roomID, userID string, status domain.Status) error {
	if strings.TrimSpace(roomID) == "" || strings.TrimSpace(userID) == "" {
		return ErrInvalidIdentity
	}

	var errs error
	errs = multierr.Append(errs, s.store.Set(ctx, roomID, userID, status))

	if s.roster != nil {
		if status == domain.StatusOnline {
			errs = multierr.Append(errs, s.roster.Add(ctx, roomID, userID))
		} else {
			errs = multierr.Append(errs, s.roster.Remove(ctx, roomID, userID))
		}
	}

	if s.signal != nil {
		if err := s.signal.PublishPresence(ctx, roomID, userID, status); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("failed to signal presence: %w", err))
		}
	}

	audit.LogRoom(ctx, audit.ActionPresence, roomID, userID, string(status), "presence changed")
	return errs
}

// Refresh extends the marker of a live connection. It is not a transition:
// nothing is published or audited.
func (s *Service) Refresh(ctx context.Context, roomID, userID string) error {
	if strings.TrimSpace(roomID) == "" || strings.TrimSpace(userID) == "" {
		return ErrInvalidIdentity
	}
	return s.store.Refresh(ctx, roomID, userID)
}

// Status reports the user's marker; an absent marker reads offline.
func (s *Service) Status(ctx context.Context, roomID, userID string) (domain.Status, error) {
	status, ok, err := s.store.Get(ctx, roomID, userID)
	if err != nil {
		return "", err
	}
	if !ok {
		return domain.StatusOffline, nil
	}
	return status, nil
}

// Online lists users with a live online marker.
func (s *Service) Online(ctx context.Context, roomID string) ([]string, error) {
	return s.store.Online(ctx, roomID)
}

// Roster returns the legacy list document, or nil when it is disabled.
func (s *Service) Roster(ctx context.Context, roomID string) ([]string, error) {
	if s.roster == nil {
		return nil, nil
	}
	return s.roster.Get(ctx, roomID)
}
