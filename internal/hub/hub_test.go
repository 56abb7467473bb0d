package hub

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(s *Sink) [][]byte {
	var out [][]byte
	for {
		select {
		case p := <-s.C():
			out = append(out, p)
		default:
			return out
		}
	}
}

func TestRegister_NewSinkPerCall(t *testing.T) {
	h := New("chat", 4)

	a1 := h.Register("r1", "userA")
	a2 := h.Register("r1", "userA")
	require.NotSame(t, a1, a2)
	assert.NotEqual(t, a1.ID(), a2.ID())

	assert.Equal(t, 1, h.ParticipantCount("r1"))
	assert.Equal(t, 2, h.EmitToRoom("r1", []byte("x")))
	assert.True(t, h.IsConnected("userA"))
}

func TestUnregister_RemovesEmptyKeys(t *testing.T) {
	h := New("chat", 4)

	a := h.Register("r1", "userA")
	b := h.Register("r1", "userB")
	assert.Equal(t, 2, h.ParticipantCount("r1"))

	h.Unregister(a)
	assert.Equal(t, 1, h.ParticipantCount("r1"))
	assert.False(t, h.IsConnected("userA"))

	h.Unregister(b)
	h.Unregister(b) // second call is a no-op
	assert.Equal(t, 0, h.ParticipantCount("r1"))
	assert.Equal(t, 0, h.Rooms())
	assert.Equal(t, 0, h.Users())
	assert.Equal(t, 0, h.Sinks())

	select {
	case <-b.Done():
	default:
		t.Fatal("unregistered sink should be done")
	}
}

func TestEmitToRoom_OnlyRegisteredSinks(t *testing.T) {
	h := New("chat", 4)

	a := h.Register("r1", "userA")
	other := h.Register("r2", "userA")

	require.Equal(t, 1, h.EmitToRoom("r1", []byte("first")))

	late := h.Register("r1", "userB")

	assert.Equal(t, [][]byte{[]byte("first")}, drain(a))
	assert.Empty(t, drain(other), "a user's sink in another room must not receive r1 traffic")
	assert.Empty(t, drain(late), "no retroactive delivery")

	assert.Equal(t, 2, h.EmitToUser("userA", []byte("dm")))
	assert.Len(t, drain(a), 1)
	assert.Len(t, drain(other), 1)
	assert.Equal(t, 0, h.EmitToRoom("nobody-here", []byte("x")))
}

func TestEmit_DropsWhenFull(t *testing.T) {
	h := New("chat", 2)
	slow := h.Register("r1", "slow")
	fast := h.Register("r1", "fast")

	for i := 0; i < 5; i++ {
		h.EmitToRoom("r1", []byte(fmt.Sprintf("m%d", i)))
		drain(fast)
	}

	got := drain(slow)
	require.Len(t, got, 2)
	assert.Equal(t, "m0", string(got[0]))
	assert.Equal(t, "m1", string(got[1]))
}

func TestEmit_PreservesOrderPerSink(t *testing.T) {
	h := New("chat", 64)
	s := h.Register("r1", "userA")
	for i := 0; i < 50; i++ {
		h.EmitToRoom("r1", []byte(fmt.Sprintf("%02d", i)))
	}
	got := drain(s)
	require.Len(t, got, 50)
	for i, p := range got {
		assert.Equal(t, fmt.Sprintf("%02d", i), string(p))
	}
}

func TestOffer_AfterUnregister(t *testing.T) {
	h := New("chat", 2)
	s := h.Register("r1", "userA")
	h.Unregister(s)
	assert.False(t, s.Offer([]byte("late")))
}

// Random register/unregister sequences must leave the participant set equal to
// the users that still hold a live sink.
func TestParticipants_MatchLiveSinks(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	h := New("chat", 1)
	users := []string{"a", "b", "c", "d"}
	var live []*Sink

	for step := 0; step < 500; step++ {
		if len(live) == 0 || rng.Intn(2) == 0 {
			live = append(live, h.Register("r1", users[rng.Intn(len(users))]))
		} else {
			i := rng.Intn(len(live))
			h.Unregister(live[i])
			live = append(live[:i], live[i+1:]...)
		}

		want := map[string]struct{}{}
		for _, s := range live {
			want[s.UserID()] = struct{}{}
		}
		wantList := make([]string, 0, len(want))
		for u := range want {
			wantList = append(wantList, u)
		}
		got := h.Participants("r1")
		sort.Strings(wantList)
		sort.Strings(got)
		if len(wantList) == 0 {
			require.Empty(t, got, "step %d", step)
			require.Equal(t, 0, h.Rooms(), "step %d", step)
			continue
		}
		require.Equal(t, wantList, got, "step %d", step)
	}
}

func TestConcurrentRegisterUnregister(t *testing.T) {
	h := New("chat", 8)
	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s := h.Register("r1", fmt.Sprintf("u%d", w))
				h.EmitToRoom("r1", []byte("x"))
				h.Unregister(s)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 0, h.ParticipantCount("r1"))
	assert.Equal(t, 0, h.Rooms())
	assert.Equal(t, 0, h.Users())
	assert.Equal(t, 0, h.Sinks())
}

func TestClose_UnregistersAll(t *testing.T) {
	h := New("status", 2)
	a := h.Register("r1", "a")
	b := h.Register("r2", "b")
	h.Close()

	for _, s := range []*Sink{a, b} {
		select {
		case <-s.Done():
		default:
			t.Fatalf("sink %d still open", s.ID())
		}
	}
	assert.Equal(t, 0, h.Rooms())
}
