package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-chat-realtime/internal/domain"
	"github.com/weiawesome/wes-chat-realtime/internal/hub"
)

type stubReads struct {
	list []domain.ReadEntry
	err  error
}

func (s *stubReads) ReadList(context.Context, string) ([]domain.ReadEntry, error) {
	return s.list, s.err
}

type harness struct {
	mr   *miniredis.Miniredis
	rdb  *redis.Client
	hub  *hub.Hub
	pub  *Publisher
	sub  *Subscriber
	stop context.CancelFunc
}

func startHarness(t *testing.T, reads ReadLister) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := hub.New("status", 8)
	sub := NewSubscriber(rdb, h, reads)
	ctx, cancel := context.WithCancel(context.Background())
	go sub.Run(ctx)

	select {
	case <-sub.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription never became active")
	}

	t.Cleanup(func() {
		cancel()
		<-sub.Done()
	})
	return &harness{mr: mr, rdb: rdb, hub: h, pub: NewPublisher(rdb), sub: sub, stop: cancel}
}

func receive(t *testing.T, s *hub.Sink) []byte {
	t.Helper()
	select {
	case p := <-s.C():
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no payload delivered")
		return nil
	}
}

func TestPresenceSignal_RebroadcastToRoom(t *testing.T) {
	h := startHarness(t, &stubReads{})
	inRoom := h.hub.Register("r1", "userB")
	elsewhere := h.hub.Register("r2", "userC")

	require.NoError(t, h.pub.PublishPresence(context.Background(), "r1", "userA", domain.StatusOnline))

	var got domain.StatusBroadcast
	require.NoError(t, json.Unmarshal(receive(t, inRoom), &got))
	assert.Equal(t, domain.StatusBroadcast{Type: "status", UserID: "userA", Status: domain.StatusOnline, RoomID: "r1"}, got)

	assert.Empty(t, elsewhere.C())
}

func TestReadSignal_ResolvesReadList(t *testing.T) {
	reads := &stubReads{list: []domain.ReadEntry{{UserID: "userA", MsgID: "m42", Timestamp: "2024-01-01T00:00:00.000"}}}
	h := startHarness(t, reads)
	s := h.hub.Register("r1", "userB")

	require.NoError(t, h.pub.PublishRead(context.Background(), "r1", "userA"))

	var got domain.ReadListBroadcast
	require.NoError(t, json.Unmarshal(receive(t, s), &got))
	assert.Equal(t, "readList", got.Type)
	assert.Equal(t, "r1", got.RoomID)
	assert.Equal(t, "userA", got.UserID)
	assert.Equal(t, reads.list, got.ReadList)
}

func TestReadSignal_LookupFailureDropsSignal(t *testing.T) {
	h := startHarness(t, &stubReads{err: errors.New("redis down")})
	s := h.hub.Register("r1", "userB")

	require.NoError(t, h.pub.PublishRead(context.Background(), "r1", "userA"))
	require.NoError(t, h.pub.PublishPresence(context.Background(), "r1", "userA", domain.StatusOffline))

	// only the presence signal is delivered
	var got domain.StatusBroadcast
	require.NoError(t, json.Unmarshal(receive(t, s), &got))
	assert.Equal(t, domain.StatusOffline, got.Status)
	assert.Empty(t, s.C())
}

func TestSubscriber_IgnoresMalformedPayload(t *testing.T) {
	h := startHarness(t, &stubReads{})
	s := h.hub.Register("r1", "userB")

	h.mr.Publish(ChannelPresence, "{not json")
	h.mr.Publish(ChannelPresence, `{"roomId":"r1"}`)
	require.NoError(t, h.pub.PublishPresence(context.Background(), "r1", "userA", domain.StatusOnline))

	var got domain.StatusBroadcast
	require.NoError(t, json.Unmarshal(receive(t, s), &got))
	assert.Equal(t, "userA", got.UserID)
}

func TestSubscriber_StopsOnCancel(t *testing.T) {
	h := startHarness(t, &stubReads{})
	h.stop()

	select {
	case <-h.sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}
