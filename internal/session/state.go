package session

import "sync/atomic"

// State is a connection's lifecycle stage.
type State int32

const (
	StateHandshaking State = iota
	StateActive
	StateDraining
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateHandshaking:
		return "handshaking"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type stateMachine struct {
	v atomic.Int32
}

func (m *stateMachine) Load() State {
	return State(m.v.Load())
}

// advance moves from one of froms to to. It fails when the current state is
// not listed.
func (m *stateMachine) advance(to State, froms ...State) bool {
	for _, from := range froms {
		if m.v.CompareAndSwap(int32(from), int32(to)) {
			return true
		}
	}
	return false
}
