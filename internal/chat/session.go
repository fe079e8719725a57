// Package chat provides the server-side session model: connected sessions,
// the process-wide broadcast hub, the nickname directory, and named rooms.
package chat

import (
	"sync"
)

// Sink is a destination for outbound protocol lines. A failed send is
// reported to the caller but never removes the sink from any collection;
// removal is tied to the owning session's teardown only.
type Sink interface {
	Send(line string) error
}

// Session is one client's live connection state. It is owned by the
// connection's goroutine; other goroutines (broadcasters, game managers)
// read it through the accessors below.
type Session struct {
	id   string
	sink Sink

	mu     sync.Mutex
	nick   string
	room   *Room
	typing bool
}

// NewSession creates a Session with the given unique id and output sink.
//
// Precondition: id must be non-empty; sink must be non-nil.
func NewSession(id string, sink Sink) *Session {
	return &Session{id: id, sink: sink}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Send writes a protocol line to the client, best-effort.
func (s *Session) Send(line string) error {
	return s.sink.Send(line)
}

// Nick returns the session's nickname.
func (s *Session) Nick() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nick
}

// SetNick sets the session's nickname.
func (s *Session) SetNick(nick string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nick = nick
}

// Room returns the room the session currently occupies, or nil.
func (s *Session) Room() *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// SetRoom records the session's current room. A session occupies at most
// one room at a time; callers move the membership in Room itself.
func (s *Session) SetRoom(r *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = r
}

// Typing returns the session's typing indicator flag.
func (s *Session) Typing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typing
}

// SetTyping sets the session's typing indicator flag.
func (s *Session) SetTyping(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing = v
}
