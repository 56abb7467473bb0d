// Package hub is the in-process broadcast hub: it maps room and user keys to
// their live sinks and fans payloads out to them without ever blocking on a
// subscriber.
package hub

import (
	"sync"
	"sync/atomic"

	"github.com/weiawesome/wes-chat-realtime/internal/metrics"
	"github.com/weiawesome/wes-chat-realtime/pkg/log"
)

// DefaultBuffer is the per-sink buffer used when none is configured.
const DefaultBuffer = 256

// Hub is safe for concurrent use. Construct one per delivery channel (chat,
// status) at process start.
type Hub struct {
	name   string
	buffer int

	rooms sync.Map // roomID -> *sinkSet
	users sync.Map // userID -> *sinkSet

	nextID atomic.Uint64
	live   atomic.Int64
}

// New creates a hub. name labels logs and metrics.
func New(name string, buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{name: name, buffer: buffer}
}

// Name returns the hub label.
func (h *Hub) Name() string { return h.name }

// Register creates a new sink for one connection of userID in roomID.
func (h *Hub) Register(roomID, userID string) *Sink {
	s := newSink(h.nextID.Add(1), roomID, userID, h.buffer)
	add(&h.rooms, roomID, s)
	add(&h.users, userID, s)

	h.live.Add(1)
	metrics.HubSinks.WithLabelValues(h.name).Inc()

	l := log.L()
	l.Debug().
		Str(log.FieldHub, h.name).
		Str(log.FieldRoomID, roomID).
		Str(log.FieldUserID, userID).
		Uint64(log.FieldSinkID, s.id).
		Msg("sink registered")
	return s
}

// Unregister removes exactly this sink. Calling it again is a no-op.
func (h *Hub) Unregister(s *Sink) {
	if s == nil || !s.close() {
		return
	}
	remove(&h.rooms, s.roomID, s)
	remove(&h.users, s.userID, s)

	h.live.Add(-1)
	metrics.HubSinks.WithLabelValues(h.name).Dec()

	l := log.L()
	l.Debug().
		Str(log.FieldHub, h.name).
		Str(log.FieldRoomID, s.roomID).
		Str(log.FieldUserID, s.userID).
		Uint64(log.FieldSinkID, s.id).
		Msg("sink unregistered")
}

// EmitToRoom offers payload to every sink registered for roomID at call time
// and returns how many accepted it.
func (h *Hub) EmitToRoom(roomID string, payload []byte) int {
	return h.emit(&h.rooms, roomID, payload)
}

// EmitToUser offers payload to every sink of userID, across rooms.
func (h *Hub) EmitToUser(userID string, payload []byte) int {
	return h.emit(&h.users, userID, payload)
}

// IsConnected reports whether userID has at least one live sink.
func (h *Hub) IsConnected(userID string) bool {
	v, ok := h.users.Load(userID)
	if !ok {
		return false
	}
	set := v.(*sinkSet)
	set.mu.RLock()
	defer set.mu.RUnlock()
	return len(set.sinks) > 0
}

// Participants returns the distinct users with a live sink in roomID.
func (h *Hub) Participants(roomID string) []string {
	v, ok := h.rooms.Load(roomID)
	if !ok {
		return nil
	}
	set := v.(*sinkSet)
	set.mu.RLock()
	defer set.mu.RUnlock()

	seen := make(map[string]struct{}, len(set.sinks))
	out := make([]string, 0, len(set.sinks))
	for s := range set.sinks {
		if _, dup := seen[s.userID]; dup {
			continue
		}
		seen[s.userID] = struct{}{}
		out = append(out, s.userID)
	}
	return out
}

// ParticipantCount is len(Participants(roomID)).
func (h *Hub) ParticipantCount(roomID string) int {
	return len(h.Participants(roomID))
}

// Sinks returns the number of live sinks.
func (h *Hub) Sinks() int { return int(h.live.Load()) }

// Rooms returns the number of room keys currently tracked.
func (h *Hub) Rooms() int { return count(&h.rooms) }

// Users returns the number of user keys currently tracked.
func (h *Hub) Users() int { return count(&h.users) }

// Close unregisters every sink, which ends every session's outbound loop.
func (h *Hub) Close() {
	h.rooms.Range(func(_, v any) bool {
		for _, s := range v.(*sinkSet).snapshot() {
			h.Unregister(s)
		}
		return true
	})
}

func (h *Hub) emit(m *sync.Map, key string, payload []byte) int {
	v, ok := m.Load(key)
	if !ok {
		return 0
	}
	delivered := 0
	for _, s := range v.(*sinkSet).snapshot() {
		if s.Offer(payload) {
			delivered++
			continue
		}
		metrics.HubDeliveries.WithLabelValues(h.name, metrics.ResultDropped).Inc()
		l := log.L()
		l.Warn().
			Str(log.FieldHub, h.name).
			Str(log.FieldRoomID, s.roomID).
			Str(log.FieldUserID, s.userID).
			Uint64(log.FieldSinkID, s.id).
			Msg("sink full or closed, payload dropped")
	}
	if delivered > 0 {
		metrics.HubDeliveries.WithLabelValues(h.name, metrics.ResultOK).Add(float64(delivered))
	}
	return delivered
}

func add(m *sync.Map, key string, s *Sink) {
	for {
		v, ok := m.Load(key)
		if !ok {
			v, _ = m.LoadOrStore(key, newSinkSet())
		}
		set := v.(*sinkSet)
		set.mu.Lock()
		if set.dead {
			set.mu.Unlock()
			continue
		}
		set.sinks[s] = struct{}{}
		set.mu.Unlock()
		return
	}
}

func remove(m *sync.Map, key string, s *Sink) {
	v, ok := m.Load(key)
	if !ok {
		return
	}
	set := v.(*sinkSet)
	set.mu.Lock()
	defer set.mu.Unlock()
	delete(set.sinks, s)
	if len(set.sinks) == 0 && !set.dead {
		set.dead = true
		m.CompareAndDelete(key, set)
	}
}

func count(m *sync.Map) int {
	n := 0
	m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
