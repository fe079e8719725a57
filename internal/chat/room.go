package chat

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrRoomExists is returned when creating a room whose name is taken.
var ErrRoomExists = errors.New("room already exists")

// ErrRoomNotFound is returned when a room lookup yields no result.
var ErrRoomNotFound = errors.New("room not found")

// Room is a named, capacity-bounded chat group. Membership mutations and
// broadcast all run under the room's own mutex.
type Room struct {
	name     string
	capacity int
	locked   bool
	password string
	owner    string

	mu           sync.Mutex
	participants []*Session
	active       bool
	secretSID    string
}

// NewRoom creates a room.
//
// Precondition: name must be non-empty; capacity must be > 0.
func NewRoom(name string, capacity int, locked bool, password, owner string) *Room {
	return &Room{
		name:     name,
		capacity: capacity,
		locked:   locked,
		password: password,
		owner:    owner,
	}
}

// Name returns the room's unique name.
func (r *Room) Name() string { return r.name }

// Capacity returns the room's participant limit.
func (r *Room) Capacity() int { return r.capacity }

// Locked reports whether joining requires a password.
func (r *Room) Locked() bool { return r.locked }

// Owner returns the nickname of the room's creator.
func (r *Room) Owner() string { return r.owner }

// MatchPassword reports whether the supplied password admits a joiner.
// Unlocked rooms admit unconditionally. A locked room with an empty
// stored password admits nobody.
func (r *Room) MatchPassword(input string) bool {
	if !r.locked {
		return true
	}
	if r.password == "" {
		return false
	}
	return r.password == input
}

// AddParticipant appends the session to the room's membership.
//
// Postcondition: Returns false, with membership unchanged, if the room is
// at capacity or the session is already a member.
func (r *Room) AddParticipant(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.participants) >= r.capacity {
		return false
	}
	for _, p := range r.participants {
		if p == s {
			return false
		}
	}
	r.participants = append(r.participants, s)
	r.active = true
	return true
}

// RemoveParticipant removes the session from the room. Idempotent.
// An emptied room stays in the catalogue but is marked inactive.
func (r *Room) RemoveParticipant(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, p := range r.participants {
		if p == s {
			r.participants = append(r.participants[:i], r.participants[i+1:]...)
			break
		}
	}
	if len(r.participants) == 0 {
		r.active = false
	}
}

// Broadcast delivers the line to every current participant, skipping
// silently over dead sinks.
func (r *Room) Broadcast(line string) {
	r.mu.Lock()
	members := make([]*Session, len(r.participants))
	copy(members, r.participants)
	r.mu.Unlock()

	for _, p := range members {
		_ = p.Send(line)
	}
}

// Contains reports whether the session is a member of the room.
func (r *Room) Contains(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		if p == s {
			return true
		}
	}
	return false
}

// ContainsNick reports whether any member has the given nickname.
func (r *Room) ContainsNick(nick string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.participants {
		if p.Nick() == nick {
			return true
		}
	}
	return false
}

// ParticipantNames returns the nicknames of current members.
func (r *Room) ParticipantNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.participants))
	for _, p := range r.participants {
		names = append(names, p.Nick())
	}
	return names
}

// ParticipantCount returns the current membership size.
func (r *Room) ParticipantCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

// StartSecret activates secret mode with the given server-minted sid.
//
// Postcondition: Returns false if a secret span is already active;
// a room has at most one active sid at a time.
func (r *Room) StartSecret(sid string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.secretSID != "" {
		return false
	}
	r.secretSID = sid
	return true
}

// StopSecret deactivates secret mode.
//
// Postcondition: Returns the sid that was active and true, or ("", false)
// if the room was not in secret mode.
func (r *Room) StopSecret() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.secretSID == "" {
		return "", false
	}
	sid := r.secretSID
	r.secretSID = ""
	return sid, true
}

// ActiveSecret returns the active sid, if any.
func (r *Room) ActiveSecret() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.secretSID, r.secretSID != ""
}

// RoomInfo is an immutable catalogue snapshot entry, serialized as the
// @rooms payload.
type RoomInfo struct {
	Name         string `json:"name"`
	Participants int    `json:"participants"`
	Capacity     int    `json:"capacity"`
	Active       bool   `json:"active"`
	Locked       bool   `json:"locked"`
}

// RoomManager is the name→Room catalogue. All methods are safe for
// concurrent use.
type RoomManager struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	logger *zap.Logger
}

// NewRoomManager creates an empty RoomManager.
//
// Precondition: logger must be non-nil.
func NewRoomManager(logger *zap.Logger) *RoomManager {
	return &RoomManager{
		rooms:  make(map[string]*Room),
		logger: logger,
	}
}

// Create adds a new room to the catalogue.
//
// Precondition: capacity must be > 0.
// Postcondition: Returns the room, or ErrRoomExists if the name is taken.
func (m *RoomManager) Create(name string, capacity int, locked bool, password, owner string) (*Room, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("room capacity must be positive, got %d", capacity)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rooms[name]; exists {
		return nil, ErrRoomExists
	}
	room := NewRoom(name, capacity, locked, password, owner)
	m.rooms[name] = room

	m.logger.Info("room created",
		zap.String("room", name),
		zap.Int("capacity", capacity),
		zap.Bool("locked", locked),
		zap.String("owner", owner),
	)
	return room, nil
}

// Ensure adds the room if absent and returns whether it was created.
// Used when overlaying the YAML seed onto persisted rooms.
func (m *RoomManager) Ensure(name string, capacity int, locked bool, password, owner string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rooms[name]; exists {
		return false
	}
	m.rooms[name] = NewRoom(name, capacity, locked, password, owner)
	return true
}

// Get returns the room with the given name.
func (m *RoomManager) Get(name string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[name]
	return r, ok
}

// Delete removes the room from the catalogue.
//
// Postcondition: Returns the removed room, or ErrRoomNotFound.
func (m *RoomManager) Delete(name string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[name]
	if !ok {
		return nil, ErrRoomNotFound
	}
	delete(m.rooms, name)
	m.logger.Info("room deleted", zap.String("room", name))
	return r, nil
}

// List returns an immutable snapshot of the catalogue. Callers iterate the
// snapshot freely; it shares no state with the live rooms.
func (m *RoomManager) List() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]RoomInfo, 0, len(m.rooms))
	for _, r := range m.rooms {
		r.mu.Lock()
		infos = append(infos, RoomInfo{
			Name:         r.name,
			Participants: len(r.participants),
			Capacity:     r.capacity,
			Active:       r.active,
			Locked:       r.locked,
		})
		r.mu.Unlock()
	}
	return infos
}
