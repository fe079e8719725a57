// Package br31 implements the 3-5 player elimination counting game:
// room-scoped parties counting up to 31, where the player forced to say
// 31 loses.
package br31

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LosingCount is the number that eliminates the player who reaches it.
const LosingCount = 31

// Party size bounds set by the host.
const (
	MinPlayers = 3
	MaxPlayers = 5
)

// Numbers per move.
const (
	MinNumbers = 1
	MaxNumbers = 3
)

// Sink is the outbound line channel for one player, satisfied by the chat
// session. Sends are best-effort.
type Sink interface {
	Send(line string) error
}

// State is the lifecycle state of a BR31 session.
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
	// JoinHostWaiting means the caller opened the party and must set its size.
	JoinHostWaiting JoinResult = iota
	// JoinWaiting means the caller was admitted and the party is still filling.
	JoinWaiting
	// JoinStarted means the caller filled the roster and the game began.
	JoinStarted
)

// Sentinel errors for join, setup, and move validation.
var (
	ErrAlreadyInGame  = errors.New("already in a game")
	ErrNoSession      = errors.New("no active game session")
	ErrNotHost        = errors.New("only the host can set the party size")
	ErrNotWaiting     = errors.New("party is not waiting for players")
	ErrSizeNotSet     = errors.New("host has not set the party size")
	ErrBadPartySize   = errors.New("party size must be between 3 and 5")
	ErrGameInProgress = errors.New("a game is already running in this room")
	ErrNotPlaying     = errors.New("game is not in progress")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrBadNumbers     = errors.New("numbers must be the next 1-3 consecutive integers")
)

// Session is one BR31 party, keyed by the room it was opened in. Players
// take turns in join order.
type Session struct {
	RoomID     string
	Host       string
	Players    []string
	MaxPlayers int
	Count      int
	TurnIdx    int
	State      State

	sinks     map[string]Sink
	createdAt time.Time
}

func (s *Session) broadcast(line string) {
	for _, sink := range s.sinks {
		_ = sink.Send(line)
	}
}

// CurrentPlayer returns the nickname whose turn it is.
//
// Precondition: the session must be playing.
func (s *Session) CurrentPlayer() string {
	return s.Players[s.TurnIdx]
}

// Manager is the BR31 matchmaking and turn state machine. One mutex guards
// every externally visible transition so concurrent joins or moves cannot
// interleave into an inconsistent roster or turn index.
type Manager struct {
	mu       sync.Mutex
	byRoom   map[string]*Session
	byPlayer map[string]*Session

	waitTimeout time.Duration
	logger      *zap.Logger
	done        chan struct{}
	once        sync.Once
}

// NewManager creates a BR31 Manager.
//
// Precondition: waitTimeout must be positive; logger must be non-nil.
func NewManager(waitTimeout time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		byRoom:      make(map[string]*Session),
		byPlayer:    make(map[string]*Session),
		waitTimeout: waitTimeout,
		logger:      logger,
		done:        make(chan struct{}),
	}
}

// HandlePlayerJoin opens a party in the room or admits the caller to the
// waiting one. The first joiner becomes host and must set the party size
// before guests are admitted; the guest who fills the roster starts the
// game with turns rotating in join order.
//
// Precondition: roomID and nick must be non-empty; sink must be non-nil.
func (m *Manager) HandlePlayerJoin(roomID, nick string, sink Sink) (JoinResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, inGame := m.byPlayer[nick]; inGame {
		return 0, ErrAlreadyInGame
	}

	sess, exists := m.byRoom[roomID]
	if !exists {
		sess = &Session{
			RoomID:    roomID,
			Host:      nick,
			Players:   []string{nick},
			State:     StateWaiting,
			sinks:     map[string]Sink{nick: sink},
			createdAt: time.Now(),
		}
		m.byRoom[roomID] = sess
		m.byPlayer[nick] = sess

		_ = sink.Send("@game:waiting br31 host")
		m.logger.Info("br31 party opened",
			zap.String("room", roomID),
			zap.String("host", nick),
		)
		return JoinHostWaiting, nil
	}

	if sess.State != StateWaiting {
		return 0, ErrGameInProgress
	}
	if sess.MaxPlayers == 0 {
		return 0, ErrSizeNotSet
	}

	sess.Players = append(sess.Players, nick)
	sess.sinks[nick] = sink
	m.byPlayer[nick] = sess

	if len(sess.Players) < sess.MaxPlayers {
		sess.broadcast(fmt.Sprintf("@game:waiting br31 %d/%d", len(sess.Players), sess.MaxPlayers))
		return JoinWaiting, nil
	}

	sess.State = StatePlaying
	sess.broadcast(fmt.Sprintf("@game:start br31 order=%s", strings.Join(sess.Players, ",")))
	sess.broadcast(fmt.Sprintf("@game:turn %s", sess.CurrentPlayer()))
	m.logger.Info("br31 game started",
		zap.String("room", roomID),
		zap.Strings("players", sess.Players),
	)
	return JoinStarted, nil
}

// HandleHostSetup fixes the party size. Only the host may call it, only
// while the party is waiting, and the size must admit the players already
// present.
//
// Postcondition: Guests can be admitted up to size players.
func (m *Manager) HandleHostSetup(nick string, size int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.byPlayer[nick]
	if !ok {
		return ErrNoSession
	}
	if sess.Host != nick {
		return ErrNotHost
	}
	if sess.State != StateWaiting {
		return ErrNotWaiting
	}
	if size < MinPlayers || size > MaxPlayers || size < len(sess.Players) {
		return ErrBadPartySize
	}

	sess.MaxPlayers = size
	sess.broadcast(fmt.Sprintf("@game:waiting br31 %d/%d", len(sess.Players), size))
	m.logger.Info("br31 party size set",
		zap.String("room", sess.RoomID),
		zap.Int("size", size),
	)
	return nil
}

// HandlePlayerMove validates and applies one counting move. The supplied
// numbers must be exactly the next 1-3 consecutive integers after the
// running count. The mover who reaches 31 loses and the session finishes.
//
// Postcondition: On any validation error the count and turn are unchanged.
func (m *Manager) HandlePlayerMove(nick string, numbers []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.byPlayer[nick]
	if !ok {
		return ErrNoSession
	}
	if sess.State != StatePlaying {
		return ErrNotPlaying
	}
	if sess.CurrentPlayer() != nick {
		return ErrNotYourTurn
	}
	if len(numbers) < MinNumbers || len(numbers) > MaxNumbers {
		return ErrBadNumbers
	}
	for i, n := range numbers {
		if n != sess.Count+i+1 {
			return ErrBadNumbers
		}
	}

	sess.Count += len(numbers)
	sess.broadcast(fmt.Sprintf("@game:update %d %s %s", sess.Count, nick, joinInts(numbers)))

	if sess.Count >= LosingCount {
		sess.State = StateFinished
		sess.broadcast(fmt.Sprintf("@game:end br31 loser=%s", nick))
		m.removeSessionLocked(sess)
		m.logger.Info("br31 game finished",
			zap.String("room", sess.RoomID),
			zap.String("loser", nick),
		)
		return nil
	}

	sess.TurnIdx = (sess.TurnIdx + 1) % len(sess.Players)
	sess.broadcast(fmt.Sprintf("@game:turn %s", sess.CurrentPlayer()))
	return nil
}

// HandlePlayerQuit removes the player voluntarily, with the same semantics
// as a disconnect.
func (m *Manager) HandlePlayerQuit(nick string) error {
	return m.HandleDisconnect(nick)
}

// HandleDisconnect removes the departing player. A host leaving a waiting
// party tears the whole party down; a guest leaving a waiting party shrinks
// it; a player leaving a live game abandons it for everyone.
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
		if sess.Host == nick {
			sess.State = StateAbandoned
			for player, sink := range sess.sinks {
				if player != nick {
					_ = sink.Send("@game:end br31 cancelled by=host")
				}
			}
			m.removeSessionLocked(sess)
			m.logger.Info("br31 party cancelled",
				zap.String("room", sess.RoomID),
				zap.String("host", nick),
			)
			return nil
		}

		m.removePlayerLocked(sess, nick)
		if sess.MaxPlayers > 0 {
			sess.broadcast(fmt.Sprintf("@game:waiting br31 %d/%d", len(sess.Players), sess.MaxPlayers))
		}
		m.logger.Info("br31 waiting guest left",
			zap.String("room", sess.RoomID),
			zap.String("player", nick),
		)
		return nil
	}

	sess.State = StateAbandoned
	for player, sink := range sess.sinks {
		if player != nick {
			_ = sink.Send(fmt.Sprintf("@game:end br31 abandoned by=%s", nick))
		}
	}
	m.removeSessionLocked(sess)
	m.logger.Info("br31 game abandoned",
		zap.String("room", sess.RoomID),
		zap.String("player", nick),
	)
	return nil
}

// HasPlayer reports whether the player is in a party or game.
func (m *Manager) HasPlayer(nick string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byPlayer[nick]
	return ok
}

// SessionCount returns the number of live parties.
func (m *Manager) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byRoom)
}

// removePlayerLocked drops one guest from a waiting party. Caller holds m.mu.
func (m *Manager) removePlayerLocked(sess *Session, nick string) {
	for i, p := range sess.Players {
		if p == nick {
			sess.Players = append(sess.Players[:i], sess.Players[i+1:]...)
			break
		}
	}
	delete(sess.sinks, nick)
	delete(m.byPlayer, nick)
}

// removeSessionLocked unmaps the party and all its players. Caller holds m.mu.
func (m *Manager) removeSessionLocked(sess *Session) {
	for _, p := range sess.Players {
		delete(m.byPlayer, p)
	}
	delete(m.byRoom, sess.RoomID)
}

// StartSweeper launches the background reaper that tears down waiting
// parties older than the configured timeout, checking every interval.
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

// sweep reaps waiting parties whose age exceeds the wait timeout.
func (m *Manager) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sess := range m.byRoom {
		if sess.State != StateWaiting {
			continue
		}
		if now.Sub(sess.createdAt) < m.waitTimeout {
			continue
		}
		sess.State = StateAbandoned
		sess.broadcast("@game:end br31 timeout")
		m.removeSessionLocked(sess)
		m.logger.Info("br31 waiting party reaped",
			zap.String("room", sess.RoomID),
			zap.String("host", sess.Host),
		)
	}
}

// joinInts renders numbers space-separated for the @game:update event.
func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, " ")
}
