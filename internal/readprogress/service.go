// Package readprogress keeps per-room read positions in two tiers: a Redis
// cache written on every receipt and a durable ledger merged from it.
package readprogress

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
	"github.com/weiawesome/wes-chat-realtime/internal/metrics"
	"github.com/weiawesome/wes-chat-realtime/pkg/log"
)

var ErrInvalidReceipt = errors.New("invalid read receipt")

// Signaler announces read-progress changes to every instance.
type Signaler interface {
	PublishRead(ctx context.Context, roomID, userID string) error
}

// ReceiptAppender forwards receipts to downstream consumers.
type ReceiptAppender interface {
	AppendReadReceipt(ctx context.Context, r *domain.ReadReceipt) error
}

type Service struct {
	cache    *Cache
	ledger   *Ledger
	signal   Signaler
	appender ReceiptAppender
	clock    clock.Clock
}

type Option func(*Service)

// WithClock overrides the clock used to stamp receipts.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithAppender forwards every recorded receipt to a.
func WithAppender(a ReceiptAppender) Option {
	return func(s *Service) { s.appender = a }
}

func NewService(cache *Cache, ledger *Ledger, signal Signaler, opts ...Option) *Service {
	s := &Service{cache: cache, ledger: ledger, signal: signal, clock: clock.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record writes the receipt into the cache tier, then signals the change. A
// blank timestamp is stamped with the current time. Signal and append failures
// are returned together after the cache write has succeeded.
func (s *Service) Record(ctx context.Context, r *domain.ReadReceipt) error {
	if r == nil || strings.TrimSpace(r.MsgID) == "" {
		return ErrInvalidReceipt
	}
	if r.Timestamp == "" {
		r.Timestamp = domain.FormatReadTimestamp(s.clock.Now())
	}
	if err := s.write(ctx, r.RoomID, r.UserID, r.Value()); err != nil {
		return err
	}
	errs := s.publish(ctx, r.RoomID, r.UserID)
	if s.appender != nil {
		errs = multierr.Append(errs, s.appender.AppendReadReceipt(ctx, r))
	}
	return errs
}

// RecordValue stores an already formatted `{msgId}_{timestamp}` value.
func (s *Service) RecordValue(ctx context.Context, roomID, userID, value string) error {
	if err := s.write(ctx, roomID, userID, value); err != nil {
		return err
	}
	return s.publish(ctx, roomID, userID)
}

func (s *Service) write(ctx context.Context, roomID, userID, value string) error {
	if strings.TrimSpace(roomID) == "" || strings.TrimSpace(userID) == "" || value == "" {
		return ErrInvalidReceipt
	}
	return s.cache.Set(ctx, roomID, userID, value)
}

func (s *Service) publish(ctx context.Context, roomID, userID string) error {
	if s.signal == nil {
		return nil
	}
	if err := s.signal.PublishRead(ctx, roomID, userID); err != nil {
		return fmt.Errorf("failed to signal read progress: %w", err)
	}
	return nil
}

// Snapshot returns the cache tier for roomID.
func (s *Service) Snapshot(ctx context.Context, roomID string) (map[string]string, error) {
	return s.cache.Snapshot(ctx, roomID)
}

// ReadList returns the room's cached positions sorted by user id.
func (s *Service) ReadList(ctx context.Context, roomID string) ([]domain.ReadEntry, error) {
	snap, err := s.cache.Snapshot(ctx, roomID)
	if err != nil {
		return nil, err
	}
	list := make([]domain.ReadEntry, 0, len(snap))
	for userID, value := range snap {
		list = append(list, domain.ParseReadValue(userID, value))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UserID < list[j].UserID })
	return list, nil
}

// LastRead returns the cached map backfilled from the ledger for users whose
// cache entry has expired. Cached values win.
func (s *Service) LastRead(ctx context.Context, roomID string) (map[string]string, error) {
	snap, err := s.cache.Snapshot(ctx, roomID)
	if err != nil {
		return nil, err
	}
	stored, err := s.ledger.Get(ctx, roomID)
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("ledger backfill skipped")
		return snap, nil
	}
	for userID, value := range stored {
		if _, ok := snap[userID]; !ok {
			snap[userID] = value
		}
	}
	return snap, nil
}

// Reconcile merges the room's cache tier into the ledger and returns the
// number of entries written.
func (s *Service) Reconcile(ctx context.Context, roomID string) (int, error) {
	snap, err := s.cache.Snapshot(ctx, roomID)
	if err != nil {
		return 0, err
	}
	n, err := s.ledger.Merge(ctx, roomID, snap)
	if err != nil {
		return 0, err
	}
	metrics.LedgerWrites.Add(float64(n))
	return n, nil
}

// ReconcileDirty reconciles up to batch rooms touched since the last pass.
// Rooms that fail are put back on the dirty set.
func (s *Service) ReconcileDirty(ctx context.Context, batch int) (int, error) {
	rooms, err := s.cache.PopDirty(ctx, batch)
	if err != nil {
		return 0, err
	}

	var (
		errs   error
		failed []string
	)
	for _, roomID := range rooms {
		if _, err := s.Reconcile(ctx, roomID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("room %s: %w", roomID, err))
			failed = append(failed, roomID)
		}
	}
	if len(failed) > 0 {
		errs = multierr.Append(errs, s.cache.MarkDirty(ctx, failed...))
	}
	return len(rooms) - len(failed), errs
}
