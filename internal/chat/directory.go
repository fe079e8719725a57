package chat

import (
	"fmt"
	"sync"
)

// UserDirectory maps nicknames to live sessions for point-to-point
// features (whisper, mention). All methods are safe for concurrent use.
type UserDirectory struct {
	mu     sync.RWMutex
	byNick map[string]*Session
}

// NewUserDirectory creates an empty UserDirectory.
func NewUserDirectory() *UserDirectory {
	return &UserDirectory{byNick: make(map[string]*Session)}
}

// Register binds a nickname to a session.
//
// Precondition: nick must be non-empty.
// Postcondition: The nickname resolves to s, or an error if already taken.
func (d *UserDirectory) Register(nick string, s *Session) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byNick[nick]; exists {
		return fmt.Errorf("nickname %q already in use", nick)
	}
	d.byNick[nick] = s
	return nil
}

// Unregister removes a nickname binding. Idempotent; removing a nickname
// that is bound to a different session is a no-op.
func (d *UserDirectory) Unregister(nick string, s *Session) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cur, ok := d.byNick[nick]; ok && cur == s {
		delete(d.byNick, nick)
	}
}

// Lookup returns the session for the given nickname.
//
// Postcondition: Returns (session, true) if found, or (nil, false) otherwise.
func (d *UserDirectory) Lookup(nick string) (*Session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.byNick[nick]
	return s, ok
}

// Count returns the number of registered nicknames.
func (d *UserDirectory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byNick)
}
