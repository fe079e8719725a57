package omok

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sink is the outbound line channel for one player, satisfied by the chat
// session. Sends are best-effort.
type Sink interface {
	Send(line string) error
}

// State is the lifecycle state of an Omok session.
type State int

// Session lifecycle states.
const (
	StateWaiting State = iota
	StatePlaying
	StateFinished
	StateAbandoned
)

// JoinResult reports what a join call did.
type JoinResult int

// Join outcomes.
const (
	// JoinWaiting means the caller is now the sole waiting player.
	JoinWaiting JoinResult = iota
	// JoinStarted means the caller was matched and the game began.
	JoinStarted
)

// Sentinel errors for join and move validation.
var (
	ErrAlreadyInGame = errors.New("already in a game")
	ErrNoSession     = errors.New("no active game session")
	ErrNotPlaying    = errors.New("game is not in progress")
	ErrNotYourTurn   = errors.New("not your turn")
	ErrOutOfBounds   = errors.New("move out of board bounds")
	ErrCellOccupied  = errors.New("cell already occupied")
)

// Session is one Omok game: a waiting host or a live 1v1 match.
// Matchmaking is global; chat rooms play no part in pairing.
type Session struct {
	Host     string
	Opponent string
	State    State

	board     *Board
	turn      Stone
	sinks     map[string]Sink
	createdAt time.Time
}

// color returns the stone color assigned to the given player.
// The waiting (first-in) player is always black.
func (s *Session) color(nick string) Stone {
	switch nick {
	case s.Host:
		return Black
	case s.Opponent:
		return White
	default:
		return Empty
	}
}

func (s *Session) broadcast(line string) {
	for _, sink := range s.sinks {
		_ = sink.Send(line)
	}
}

// Manager is the Omok matchmaking and turn state machine. One mutex guards
// every externally visible transition (join, move, quit, disconnect, sweep)
// so concurrent commands cannot interleave into an inconsistent session.
type Manager struct {
	mu       sync.Mutex
	waiting  *Session
	byPlayer map[string]*Session

	timeout time.Duration
	logger  *zap.Logger
	done    chan struct{}
	once    sync.Once
}

// NewManager creates an Omok Manager.
//
// Precondition: timeout must be positive; logger must be non-nil.
func NewManager(timeout time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		byPlayer: make(map[string]*Session),
		timeout:  timeout,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// HandlePlayerJoin queues the player or matches them against the waiting
// player. With nobody waiting the caller becomes the sole waiting player;
// otherwise a session starts with the waiting player as black.
//
// Precondition: nick must be non-empty; sink must be non-nil.
// Postcondition: Exactly one of two concurrent first joins becomes
// waiting; the other starts the match.
func (m *Manager) HandlePlayerJoin(nick string, sink Sink) (JoinResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, inGame := m.byPlayer[nick]; inGame {
		return 0, ErrAlreadyInGame
	}

	if m.waiting == nil {
		sess := &Session{
			Host:      nick,
			State:     StateWaiting,
			board:     NewBoard(),
			turn:      Black,
			sinks:     map[string]Sink{nick: sink},
			createdAt: time.Now(),
		}
		m.waiting = sess
		m.byPlayer[nick] = sess

		_ = sink.Send("@game:waiting omok")
		m.logger.Info("omok player waiting", zap.String("player", nick))
		return JoinWaiting, nil
	}

	sess := m.waiting
	m.waiting = nil
	sess.Opponent = nick
	sess.State = StatePlaying
	sess.sinks[nick] = sink
	m.byPlayer[nick] = sess

	sess.broadcast(fmt.Sprintf("@game:start omok black=%s white=%s", sess.Host, sess.Opponent))
	sess.broadcast(fmt.Sprintf("@game:turn %s", sess.Host))
	m.logger.Info("omok game started",
		zap.String("black", sess.Host),
		zap.String("white", sess.Opponent),
	)
	return JoinStarted, nil
}

// RecordMoveWithValidation validates and applies one stone placement.
// On success the move is broadcast to both players and the turn flips;
// a winning move finishes the session and removes both players.
//
// Postcondition: On any validation error the board and turn are unchanged.
func (m *Manager) RecordMoveWithValidation(nick string, row, col int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.byPlayer[nick]
	if !ok {
		return ErrNoSession
	}
	if sess.State != StatePlaying {
		return ErrNotPlaying
	}
	color := sess.color(nick)
	if color == Empty {
		return ErrNoSession
	}
	if color != sess.turn {
		return ErrNotYourTurn
	}
	if !sess.board.InBounds(row, col) {
		return ErrOutOfBounds
	}
	if sess.board.At(row, col) != Empty {
		return ErrCellOccupied
	}

	sess.board.Place(row, col, color)
	sess.broadcast(fmt.Sprintf("@game:move %d %d %s", row, col, color))

	if sess.board.Wins(row, col) {
		sess.State = StateFinished
		sess.broadcast(fmt.Sprintf("@game:end omok winner=%s", nick))
		m.removeSessionLocked(sess)
		m.logger.Info("omok game won",
			zap.String("winner", nick),
			zap.Int("row", row),
			zap.Int("col", col),
		)
		return nil
	}

	sess.turn = color.Opposite()
	next := sess.Host
	if sess.turn == White {
		next = sess.Opponent
	}
	sess.broadcast(fmt.Sprintf("@game:turn %s", next))
	return nil
}

// HandlePlayerQuit removes the player voluntarily: a waiting player leaves
// the queue, an active player abandons the match.
//
// Postcondition: Returns ErrNoSession if the player is not in a game.
func (m *Manager) HandlePlayerQuit(nick string) error {
	return m.HandleDisconnect(nick)
}

// HandleDisconnect removes the departing player. A queued player is simply
// dropped; an active session is marked abandoned and the remaining player
// is notified.
//
// Postcondition: Returns ErrNoSession if the player is not in a game.
func (m *Manager) HandleDisconnect(nick string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.byPlayer[nick]
	if !ok {
		return ErrNoSession
	}

	if sess.State == StateWaiting {
		m.waiting = nil
		delete(m.byPlayer, nick)
		m.logger.Info("omok waiting player left", zap.String("player", nick))
		return nil
	}

	sess.State = StateAbandoned
	for player, sink := range sess.sinks {
		if player != nick {
			_ = sink.Send(fmt.Sprintf("@game:end omok abandoned by=%s", nick))
		}
	}
	m.removeSessionLocked(sess)
	m.logger.Info("omok game abandoned", zap.String("player", nick))
	return nil
}

// HasPlayer reports whether the player is in a game or queued.
func (m *Manager) HasPlayer(nick string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byPlayer[nick]
	return ok
}

// SessionCount returns the number of live sessions (waiting or playing).
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[*Session]bool)
	for _, sess := range m.byPlayer {
		seen[sess] = true
	}
	return len(seen)
}

// removeSessionLocked unmaps both participants. Caller holds m.mu.
func (m *Manager) removeSessionLocked(sess *Session) {
	if m.waiting == sess {
		m.waiting = nil
	}
	delete(m.byPlayer, sess.Host)
	if sess.Opponent != "" {
		delete(m.byPlayer, sess.Opponent)
	}
}

// StartSweeper launches the background reaper that removes sessions older
// than the configured timeout regardless of state, checking every interval.
//
// Precondition: interval must be positive.
func (m *Manager) StartSweeper(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.sweep(time.Now())
			case <-m.done:
				return
			}
		}
	}()
}

// StopSweeper stops the background reaper. Safe to call multiple times.
func (m *Manager) StopSweeper() {
	m.once.Do(func() { close(m.done) })
}

// sweep reaps sessions whose age exceeds the timeout.
func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[*Session]bool)
	for _, sess := range m.byPlayer {
		if seen[sess] {
			continue
		}
		seen[sess] = true
		if now.Sub(sess.createdAt) < m.timeout {
			continue
		}
		sess.State = StateAbandoned
		sess.broadcast("@game:end omok timeout")
		m.removeSessionLocked(sess)
		m.logger.Info("omok session reaped",
			zap.String("host", sess.Host),
			zap.String("opponent", sess.Opponent),
		)
	}
}
