package hub

import "sync"

// Sink is one live outbound stream to one connection. The session that
// registered it drains C() until Done() is closed.
type Sink struct {
	id     uint64
	roomID string
	userID string
	ch     chan []byte
	done   chan struct{}
	once   sync.Once
}

func newSink(id uint64, roomID, userID string, buffer int) *Sink {
	return &Sink{
		id:     id,
		roomID: roomID,
		userID: userID,
		ch:     make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

func (s *Sink) ID() uint64       { return s.id }
func (s *Sink) RoomID() string   { return s.roomID }
func (s *Sink) UserID() string   { return s.userID }
func (s *Sink) C() <-chan []byte { return s.ch }

// Done is closed once the sink has been unregistered.
func (s *Sink) Done() <-chan struct{} { return s.done }

// Offer queues payload without blocking. It returns false when the sink was
// unregistered or its buffer is full.
func (s *Sink) Offer(payload []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.ch <- payload:
		return true
	default:
		return false
	}
}

func (s *Sink) close() bool {
	closed := false
	s.once.Do(func() {
		close(s.done)
		closed = true
	})
	return closed
}

// sinkSet is the set of sinks under one key. A set that became empty is marked
// dead and removed from its map; writers that still hold it retry with a fresh
// set, so a concurrent Register never lands in a detached set.
type sinkSet struct {
	mu    sync.RWMutex
	sinks map[*Sink]struct{}
	dead  bool
}

func newSinkSet() *sinkSet {
	return &sinkSet{sinks: make(map[*Sink]struct{})}
}

func (s *sinkSet) snapshot() []*Sink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Sink, 0, len(s.sinks))
	for k := range s.sinks {
		out = append(out, k)
	}
	return out
}
