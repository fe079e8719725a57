package chat

import (
	"sync"

	"go.uber.org/zap"
)

// Hub is the process-wide fan-out of raw lines to every connected session.
// The registration set is a sync.Map: adds and removes are frequent and
// broadcasts iterate concurrently, so readers must never be locked out.
type Hub struct {
	sessions sync.Map // session id → *Session
	logger   *zap.Logger
}

// NewHub creates an empty Hub.
//
// Precondition: logger must be non-nil.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{logger: logger}
}

// Join registers a session's output sink with the hub.
func (h *Hub) Join(s *Session) {
	h.sessions.Store(s.ID(), s)
}

// Leave removes a session from the hub. Idempotent; only the owning
// session's teardown calls this, never a broadcaster on write failure.
func (h *Hub) Leave(s *Session) {
	h.sessions.Delete(s.ID())
}

// Broadcast writes the line to every registered session, best-effort.
// A failed write to one sink does not abort delivery to the others.
func (h *Hub) Broadcast(line string) {
	h.sessions.Range(func(_, v any) bool {
		sess := v.(*Session)
		if err := sess.Send(line); err != nil {
			h.logger.Debug("dropping line to dead sink",
				zap.String("nick", sess.Nick()),
				zap.Error(err),
			)
		}
		return true
	})
}

// Count returns the number of registered sessions.
func (h *Hub) Count() int {
	n := 0
	h.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// CloseAll announces shutdown to every session and clears the registry.
// Called once at server shutdown.
func (h *Hub) CloseAll() {
	h.Broadcast("[System] server shutting down")
	h.sessions.Range(func(k, _ any) bool {
		h.sessions.Delete(k)
		return true
	})
}
