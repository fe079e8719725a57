package br31

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

// recordSink collects sent lines for assertions.
type recordSink struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordSink) Send(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	return nil
}

func (r *recordSink) Contains(substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if l == substr {
			return true
		}
	}
	return false
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(10*time.Minute, zap.NewNop())
}

// startGame opens a 3-player party in room r1 with x as host, then fills
// it with y and z.
func startGame(t *testing.T, m *Manager) (xSink, ySink, zSink *recordSink) {
	t.Helper()
	xSink, ySink, zSink = &recordSink{}, &recordSink{}, &recordSink{}

	result, err := m.HandlePlayerJoin("r1", "x", xSink)
	require.NoError(t, err)
	require.Equal(t, JoinHostWaiting, result)

	require.NoError(t, m.HandleHostSetup("x", 3))

	result, err = m.HandlePlayerJoin("r1", "y", ySink)
	require.NoError(t, err)
	require.Equal(t, JoinWaiting, result)

	result, err = m.HandlePlayerJoin("r1", "z", zSink)
	require.NoError(t, err)
	require.Equal(t, JoinStarted, result)
	return xSink, ySink, zSink
}

func TestManager_JoinScenario(t *testing.T) {
	m := newManager(t)
	xSink, ySink, zSink := startGame(t, m)

	assert.True(t, xSink.Contains("@game:waiting br31 host"))
	for _, sink := range []*recordSink{xSink, ySink, zSink} {
		assert.True(t, sink.Contains("@game:start br31 order=x,y,z"))
		assert.True(t, sink.Contains("@game:turn x"))
	}
	assert.Equal(t, 1, m.SessionCount())
}

func TestManager_GuestBeforeSizeSet(t *testing.T) {
	m := newManager(t)
	_, err := m.HandlePlayerJoin("r1", "x", &recordSink{})
	require.NoError(t, err)

	_, err = m.HandlePlayerJoin("r1", "y", &recordSink{})
	assert.ErrorIs(t, err, ErrSizeNotSet)
}

func TestManager_HostSetupValidation(t *testing.T) {
	m := newManager(t)
	_, err := m.HandlePlayerJoin("r1", "x", &recordSink{})
	require.NoError(t, err)

	assert.ErrorIs(t, m.HandleHostSetup("x", 2), ErrBadPartySize)
	assert.ErrorIs(t, m.HandleHostSetup("x", 6), ErrBadPartySize)
	assert.ErrorIs(t, m.HandleHostSetup("ghost", 3), ErrNoSession)

	require.NoError(t, m.HandleHostSetup("x", 3))

	_, err = m.HandlePlayerJoin("r1", "y", &recordSink{})
	require.NoError(t, err)
	assert.ErrorIs(t, m.HandleHostSetup("y", 3), ErrNotHost)
}

func TestManager_JoinRunningGame(t *testing.T) {
	m := newManager(t)
	startGame(t, m)

	_, err := m.HandlePlayerJoin("r1", "late", &recordSink{})
	assert.ErrorIs(t, err, ErrGameInProgress)
}

func TestManager_OnePartyPerPlayer(t *testing.T) {
	m := newManager(t)
	_, err := m.HandlePlayerJoin("r1", "x", &recordSink{})
	require.NoError(t, err)

	_, err = m.HandlePlayerJoin("r2", "x", &recordSink{})
	assert.ErrorIs(t, err, ErrAlreadyInGame)
}

func TestManager_MoveScenario(t *testing.T) {
	m := newManager(t)
	xSink, ySink, _ := startGame(t, m)

	require.NoError(t, m.HandlePlayerMove("x", []int{1, 2, 3}))
	assert.True(t, xSink.Contains("@game:update 3 x 1 2 3"))
	assert.True(t, ySink.Contains("@game:turn y"))

	require.NoError(t, m.HandlePlayerMove("y", []int{4}))
	require.NoError(t, m.HandlePlayerMove("z", []int{5, 6}))
	require.NoError(t, m.HandlePlayerMove("x", []int{7, 8, 9}))
}

func TestManager_MoveValidation(t *testing.T) {
	m := newManager(t)
	startGame(t, m)

	assert.ErrorIs(t, m.HandlePlayerMove("ghost", []int{1}), ErrNoSession)
	assert.ErrorIs(t, m.HandlePlayerMove("y", []int{1}), ErrNotYourTurn)
	assert.ErrorIs(t, m.HandlePlayerMove("x", nil), ErrBadNumbers)
	assert.ErrorIs(t, m.HandlePlayerMove("x", []int{1, 2, 3, 4}), ErrBadNumbers)
	assert.ErrorIs(t, m.HandlePlayerMove("x", []int{2}), ErrBadNumbers)
	assert.ErrorIs(t, m.HandlePlayerMove("x", []int{1, 3}), ErrBadNumbers)

	// Rejected moves leave count and turn unchanged.
	require.NoError(t, m.HandlePlayerMove("x", []int{1}))
}

func TestManager_MoveLegalityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := NewManager(10*time.Minute, zap.NewNop())
		sinks := []*recordSink{{}, {}, {}}
		if _, err := m.HandlePlayerJoin("r1", "x", sinks[0]); err != nil {
			t.Fatalf("host join: %v", err)
		}
		if err := m.HandleHostSetup("x", 3); err != nil {
			t.Fatalf("setup: %v", err)
		}
		if _, err := m.HandlePlayerJoin("r1", "y", sinks[1]); err != nil {
			t.Fatalf("guest join: %v", err)
		}
		if _, err := m.HandlePlayerJoin("r1", "z", sinks[2]); err != nil {
			t.Fatalf("guest join: %v", err)
		}

		players := []string{"x", "y", "z"}
		count := 0
		turn := 0

		steps := rapid.IntRange(1, 40).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			mover := players[rapid.IntRange(0, 2).Draw(t, "mover")]
			n := rapid.IntRange(0, 4).Draw(t, "n")
			offset := rapid.IntRange(0, 2).Draw(t, "offset")

			numbers := make([]int, n)
			for j := range numbers {
				numbers[j] = count + offset + j + 1
			}

			legal := mover == players[turn] && n >= 1 && n <= 3 && offset == 0
			err := m.HandlePlayerMove(mover, numbers)

			if !m.HasPlayer("x") {
				// Game over: the move that reached 31 must have been legal.
				if !legal || count+n < LosingCount {
					t.Fatalf("game ended on illegal state: count=%d move=%v", count, numbers)
				}
				return
			}

			if legal {
				if err != nil {
					t.Fatalf("legal move rejected: count=%d move=%v err=%v", count, numbers, err)
				}
				count += n
				turn = (turn + 1) % 3
			} else if err == nil {
				t.Fatalf("illegal move accepted: count=%d move=%v", count, numbers)
			}
		}
	})
}

func TestManager_ReachingThirtyOneLoses(t *testing.T) {
	m := newManager(t)
	xSink, ySink, zSink := startGame(t, m)

	// x, y, z alternate 3-number moves: count goes 3, 6, ..., 30; then x
	// is forced to say 31.
	moves := 0
	players := []string{"x", "y", "z"}
	count := 0
	for count < 30 {
		mover := players[moves%3]
		require.NoError(t, m.HandlePlayerMove(mover, []int{count + 1, count + 2, count + 3}))
		count += 3
		moves++
	}

	require.NoError(t, m.HandlePlayerMove("y", []int{31}))

	for _, sink := range []*recordSink{xSink, ySink, zSink} {
		assert.True(t, sink.Contains("@game:update 31 y 31"))
		assert.True(t, sink.Contains("@game:end br31 loser=y"))
	}
	assert.Equal(t, 0, m.SessionCount())

	// No further moves are accepted.
	assert.ErrorIs(t, m.HandlePlayerMove("z", []int{32}), ErrNoSession)
}

func TestManager_DisconnectHostWhileWaiting(t *testing.T) {
	m := newManager(t)
	_, err := m.HandlePlayerJoin("r1", "x", &recordSink{})
	require.NoError(t, err)
	require.NoError(t, m.HandleHostSetup("x", 3))
	ySink := &recordSink{}
	_, err = m.HandlePlayerJoin("r1", "y", ySink)
	require.NoError(t, err)

	require.NoError(t, m.HandleDisconnect("x"))

	assert.True(t, ySink.Contains("@game:end br31 cancelled by=host"))
	assert.False(t, m.HasPlayer("y"))
	assert.Equal(t, 0, m.SessionCount())
}

func TestManager_DisconnectGuestWhileWaiting(t *testing.T) {
	m := newManager(t)
	xSink := &recordSink{}
	_, err := m.HandlePlayerJoin("r1", "x", xSink)
	require.NoError(t, err)
	require.NoError(t, m.HandleHostSetup("x", 3))
	_, err = m.HandlePlayerJoin("r1", "y", &recordSink{})
	require.NoError(t, err)

	require.NoError(t, m.HandleDisconnect("y"))

	assert.True(t, xSink.Contains("@game:waiting br31 1/3"))
	assert.True(t, m.HasPlayer("x"))
	assert.False(t, m.HasPlayer("y"))

	// The freed slot can be refilled.
	_, err = m.HandlePlayerJoin("r1", "w", &recordSink{})
	require.NoError(t, err)
}

func TestManager_DisconnectDuringGame(t *testing.T) {
	m := newManager(t)
	_, ySink, zSink := startGame(t, m)

	require.NoError(t, m.HandleDisconnect("x"))

	assert.True(t, ySink.Contains("@game:end br31 abandoned by=x"))
	assert.True(t, zSink.Contains("@game:end br31 abandoned by=x"))
	assert.Equal(t, 0, m.SessionCount())
}

func TestManager_SweepReapsOldWaitingParties(t *testing.T) {
	m := NewManager(time.Millisecond, zap.NewNop())
	xSink := &recordSink{}
	_, err := m.HandlePlayerJoin("r1", "x", xSink)
	require.NoError(t, err)

	m.sweep(time.Now().Add(time.Second))

	assert.True(t, xSink.Contains("@game:end br31 timeout"))
	assert.Equal(t, 0, m.SessionCount())
}

func TestManager_SweepSparesPlayingGames(t *testing.T) {
	m := NewManager(time.Millisecond, zap.NewNop())
	startGame(t, m)

	m.sweep(time.Now().Add(time.Second))
	assert.Equal(t, 1, m.SessionCount(), "playing sessions are not wait-reaped")
}
