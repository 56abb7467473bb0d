package session

import (
	"context"
	"sort"
	"sync"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
)

type fakeHistory struct {
	mu    sync.Mutex
	saved []domain.ChatMessage
}

func (f *fakeHistory) Save(_ context.Context, msg *domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, *msg)
	return nil
}

func (f *fakeHistory) Recent(_ context.Context, _ string, _, limit int) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]domain.ChatMessage(nil), f.saved...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeHistory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type ensured struct {
	roomID, creator string
	participants    []string
}

type fakeRooms struct {
	mu       sync.Mutex
	ensured  []ensured
	recorded []string
}

func (f *fakeRooms) EnsureRoom(_ context.Context, roomID, creator string, participants []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, ensured{roomID, creator, participants})
	return nil
}

func (f *fakeRooms) RecordMessage(_ context.Context, msg *domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, msg.MsgID)
	return nil
}

func (f *fakeRooms) snapshot() []ensured {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ensured(nil), f.ensured...)
}

type fakePipeline struct {
	mu   sync.Mutex
	msgs []domain.ChatMessage
}

func (f *fakePipeline) AppendMessage(_ context.Context, msg *domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, *msg)
	return nil
}

func (f *fakePipeline) snapshot() []domain.ChatMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ChatMessage(nil), f.msgs...)
}

type fakeReads struct {
	mu         sync.Mutex
	receipts   []domain.ReadReceipt
	list       []domain.ReadEntry
	reconciled map[string]int
}

func newFakeReads() *fakeReads {
	return &fakeReads{reconciled: map[string]int{}}
}

func (f *fakeReads) Record(_ context.Context, r *domain.ReadReceipt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts = append(f.receipts, *r)
	return nil
}

func (f *fakeReads) ReadList(context.Context, string) ([]domain.ReadEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ReadEntry{}, f.list...), nil
}

func (f *fakeReads) Reconcile(_ context.Context, roomID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconciled[roomID]++
	return 0, nil
}

func (f *fakeReads) snapshot() []domain.ReadReceipt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ReadReceipt(nil), f.receipts...)
}

func (f *fakeReads) reconciles(roomID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reconciled[roomID]
}

type statusChange struct {
	roomID, userID string
	status         domain.Status
}

type fakePresence struct {
	mu        sync.Mutex
	gate      chan struct{}
	changes   []statusChange
	refreshes int
}

// hold makes every SetStatus wait until the returned func is called.
func (f *fakePresence) hold() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()
	return func() { close(gate) }
}

func (f *fakePresence) SetStatus(_ context.Context, roomID, userID string, status domain.Status) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, statusChange{roomID, userID, status})
	return nil
}

func (f *fakePresence) Refresh(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return nil
}

func (f *fakePresence) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakePresence) snapshot() []statusChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]statusChange(nil), f.changes...)
}
