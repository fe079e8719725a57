package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

// recordSink collects sent lines for assertions.
type recordSink struct {
	mu    sync.Mutex
	lines []string
	fail  bool
}

func (r *recordSink) Send(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return fmt.Errorf("sink closed")
	}
	r.lines = append(r.lines, line)
	return nil
}

func (r *recordSink) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}

func newTestSession(id, nick string) (*Session, *recordSink) {
	sink := &recordSink{}
	s := NewSession(id, sink)
	s.SetNick(nick)
	return s, sink
}

func TestRoom_AddParticipant_Capacity(t *testing.T) {
	room := NewRoom("lobby", 2, false, "", "owner")

	a, _ := newTestSession("1", "alice")
	b, _ := newTestSession("2", "bob")
	c, _ := newTestSession("3", "carol")

	assert.True(t, room.AddParticipant(a))
	assert.True(t, room.AddParticipant(b))
	assert.False(t, room.AddParticipant(c), "third join must be rejected at capacity 2")
	assert.Equal(t, 2, room.ParticipantCount())
	assert.ElementsMatch(t, []string{"alice", "bob"}, room.ParticipantNames())
}

func TestRoom_AddParticipant_Duplicate(t *testing.T) {
	room := NewRoom("lobby", 5, false, "", "owner")
	a, _ := newTestSession("1", "alice")

	assert.True(t, room.AddParticipant(a))
	assert.False(t, room.AddParticipant(a))
	assert.Equal(t, 1, room.ParticipantCount())
}

func TestRoom_RemoveParticipant_Idempotent(t *testing.T) {
	room := NewRoom("lobby", 2, false, "", "owner")
	a, _ := newTestSession("1", "alice")

	require.True(t, room.AddParticipant(a))
	room.RemoveParticipant(a)
	room.RemoveParticipant(a)
	assert.Equal(t, 0, room.ParticipantCount())
}

func TestRoom_CapacityNeverExceeded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 8).Draw(t, "capacity")
		attempts := rapid.IntRange(0, 20).Draw(t, "attempts")

		room := NewRoom("r", capacity, false, "", "owner")
		admitted := 0
		for i := 0; i < attempts; i++ {
			s, _ := newTestSession(fmt.Sprintf("s%d", i), fmt.Sprintf("nick%d", i))
			if room.AddParticipant(s) {
				admitted++
			}
		}

		if admitted > capacity {
			t.Fatalf("admitted %d sessions into capacity %d", admitted, capacity)
		}
		if room.ParticipantCount() > capacity {
			t.Fatalf("membership %d exceeds capacity %d", room.ParticipantCount(), capacity)
		}
	})
}

func TestRoom_MatchPassword(t *testing.T) {
	open := NewRoom("open", 5, false, "", "owner")
	assert.True(t, open.MatchPassword(""))
	assert.True(t, open.MatchPassword("anything"))

	locked := NewRoom("locked", 5, true, "hunter2", "owner")
	assert.True(t, locked.MatchPassword("hunter2"))
	assert.False(t, locked.MatchPassword(""))
	assert.False(t, locked.MatchPassword("wrong"))

	// A locked room with no stored password admits nobody.
	broken := NewRoom("broken", 5, true, "", "owner")
	assert.False(t, broken.MatchPassword(""))
	assert.False(t, broken.MatchPassword("guess"))
}

func TestRoom_Broadcast_SkipsDeadSinks(t *testing.T) {
	room := NewRoom("lobby", 5, false, "", "owner")
	a, sinkA := newTestSession("1", "alice")
	b, sinkB := newTestSession("2", "bob")
	sinkB.fail = true

	require.True(t, room.AddParticipant(a))
	require.True(t, room.AddParticipant(b))

	room.Broadcast("hello")

	assert.Equal(t, []string{"hello"}, sinkA.Lines())
	assert.Empty(t, sinkB.Lines())
	// The dead sink stays a member until its own teardown removes it.
	assert.Equal(t, 2, room.ParticipantCount())
}

func TestRoom_SecretLifecycle(t *testing.T) {
	room := NewRoom("lobby", 5, false, "", "owner")

	_, active := room.ActiveSecret()
	assert.False(t, active)

	require.True(t, room.StartSecret("sid-1"))
	assert.False(t, room.StartSecret("sid-2"), "one active sid at a time")

	sid, ok := room.StopSecret()
	require.True(t, ok)
	assert.Equal(t, "sid-1", sid)

	_, ok = room.StopSecret()
	assert.False(t, ok, "stopping twice must report inactive")
}

func TestRoomManager_CreateAndGet(t *testing.T) {
	m := NewRoomManager(zap.NewNop())

	room, err := m.Create("lobby", 10, false, "", "alice")
	require.NoError(t, err)
	assert.Equal(t, "lobby", room.Name())

	_, err = m.Create("lobby", 5, false, "", "bob")
	assert.ErrorIs(t, err, ErrRoomExists)

	got, ok := m.Get("lobby")
	require.True(t, ok)
	assert.Same(t, room, got)
}

func TestRoomManager_CreateRejectsBadCapacity(t *testing.T) {
	m := NewRoomManager(zap.NewNop())
	_, err := m.Create("lobby", 0, false, "", "alice")
	assert.Error(t, err)
}

func TestRoomManager_Delete(t *testing.T) {
	m := NewRoomManager(zap.NewNop())
	_, err := m.Create("lobby", 10, false, "", "alice")
	require.NoError(t, err)

	_, err = m.Delete("lobby")
	require.NoError(t, err)

	_, err = m.Delete("lobby")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestRoomManager_ListSnapshot(t *testing.T) {
	m := NewRoomManager(zap.NewNop())
	room, err := m.Create("lobby", 2, true, "pw", "alice")
	require.NoError(t, err)

	a, _ := newTestSession("1", "alice")
	require.True(t, room.AddParticipant(a))

	infos := m.List()
	require.Len(t, infos, 1)
	assert.Equal(t, RoomInfo{
		Name:         "lobby",
		Participants: 1,
		Capacity:     2,
		Active:       true,
		Locked:       true,
	}, infos[0])

	// The snapshot is detached from later mutations.
	room.RemoveParticipant(a)
	assert.Equal(t, 1, infos[0].Participants)
}

func TestRoom_EmptiedRoomMarkedInactive(t *testing.T) {
	m := NewRoomManager(zap.NewNop())
	room, err := m.Create("lobby", 2, false, "", "alice")
	require.NoError(t, err)

	a, _ := newTestSession("1", "alice")
	require.True(t, room.AddParticipant(a))
	room.RemoveParticipant(a)

	infos := m.List()
	require.Len(t, infos, 1)
	assert.False(t, infos[0].Active, "emptied room stays listed but inactive")
}
