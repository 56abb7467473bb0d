package history

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
)

// memStore keeps messages newest first, like the clustering order.
type memStore struct {
	mu    sync.Mutex
	msgs  map[string][]domain.ChatMessage
	calls atomic.Int32
	gate  chan struct{}
	err   error
}

func newMemStore() *memStore {
	return &memStore{msgs: map[string][]domain.ChatMessage{}}
}

func (m *memStore) Save(_ context.Context, msg *domain.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs[msg.RoomID] = append([]domain.ChatMessage{*msg}, m.msgs[msg.RoomID]...)
	return nil
}

func (m *memStore) ListRecent(_ context.Context, roomID string, offset, limit int) ([]domain.ChatMessage, error) {
	m.calls.Add(1)
	if m.gate != nil {
		<-m.gate
	}
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.msgs[roomID]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return append([]domain.ChatMessage(nil), all[offset:end]...), nil
}

func seed(t *testing.T, svc *Service, roomID string, n int) []domain.ChatMessage {
	t.Helper()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.ChatMessage, n)
	for i := 0; i < n; i++ {
		msg := domain.NewChatMessage("", roomID, "userA", "hello", t0.Add(time.Duration(i)*time.Second))
		require.NoError(t, svc.Save(context.Background(), msg))
		out[i] = *msg
	}
	return out
}

func TestRecent_AscendingWithDefaultLimit(t *testing.T) {
	svc := NewService(newMemStore())
	all := seed(t, svc, "r1", 40)

	got, err := svc.Recent(context.Background(), "r1", 0, 0)
	require.NoError(t, err)
	require.Len(t, got, DefaultLimit)
	assert.Equal(t, all[10:], got)
}

func TestRecent_OffsetAndCap(t *testing.T) {
	svc := NewService(newMemStore())
	all := seed(t, svc, "r1", 150)

	got, err := svc.Recent(context.Background(), "r1", 5, 2)
	require.NoError(t, err)
	assert.Equal(t, all[143:145], got)

	got, err = svc.Recent(context.Background(), "r1", 0, 1000)
	require.NoError(t, err)
	assert.Len(t, got, MaxLimit)
}

func TestRecent_RequiresRoom(t *testing.T) {
	svc := NewService(newMemStore())
	_, err := svc.Recent(context.Background(), "  ", 0, 10)
	assert.ErrorIs(t, err, ErrInvalidRoom)
}

func TestRecent_RejectsOffsetPastMax(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)

	_, err := svc.Recent(context.Background(), "r1", MaxOffset+1, 10)
	assert.ErrorIs(t, err, ErrInvalidOffset)
	assert.Zero(t, store.calls.Load())

	_, err = svc.Recent(context.Background(), "r1", MaxOffset, 10)
	assert.NoError(t, err)
}

func TestRecent_StoreError(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("cassandra down")
	svc := NewService(store)

	_, err := svc.Recent(context.Background(), "r1", 0, 10)
	assert.ErrorIs(t, err, store.err)
}

func TestRecent_SharesConcurrentReads(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)
	seed(t, svc, "r1", 3)
	store.gate = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := svc.Recent(context.Background(), "r1", 0, 10)
			assert.NoError(t, err)
			assert.Len(t, got, 3)
		}()
	}

	require.Eventually(t, func() bool { return store.calls.Load() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(store.gate)
	wg.Wait()

	assert.Less(t, store.calls.Load(), int32(5))
}
