// Package chatserver wires the transport layer to the chat core: one
// ClientHandler services every accepted connection's session loop.
package chatserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/chat"
	"github.com/parlorchat/parlor/internal/command"
	"github.com/parlorchat/parlor/internal/game/br31"
	"github.com/parlorchat/parlor/internal/game/omok"
	"github.com/parlorchat/parlor/internal/transport"
)

// Handler runs the session lifecycle for each accepted connection:
// greeting, nickname registration, the blocking read loop, and teardown.
type Handler struct {
	hub    *chat.Hub
	users  *chat.UserDirectory
	router *command.Router
	omok   *omok.Manager
	br31   *br31.Manager
	logger *zap.Logger
}

// NewHandler creates a Handler with the given collaborators.
//
// Precondition: All collaborators and logger must be non-nil.
func NewHandler(
	hub *chat.Hub,
	users *chat.UserDirectory,
	router *command.Router,
	omokMgr *omok.Manager,
	br31Mgr *br31.Manager,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		hub:    hub,
		users:  users,
		router: router,
		omok:   omokMgr,
		br31:   br31Mgr,
		logger: logger,
	}
}

// HandleSession services one connection until the client quits, the stream
// closes, or the server shuts down. Any read error is treated as a
// disconnect, never propagated as a failure.
//
// Postcondition: The session is unregistered from the directory, hub, its
// room, and both game managers.
func (h *Handler) HandleSession(ctx context.Context, conn *transport.Conn) error {
	// The read loop has no deadline; closing the conn is what unblocks it
	// on server shutdown.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	_ = conn.WriteLine("[System] welcome to parlor")
	_ = conn.WriteLine("[System] enter a nickname:")

	nick, err := h.readNick(conn)
	if err != nil {
		return err
	}

	sess := chat.NewSession(uuid.NewString(), connSink{conn})
	sess.SetNick(nick)

	// Nickname collisions get a generated suffix rather than a rejection.
	if err := h.users.Register(nick, sess); err != nil {
		nick = fmt.Sprintf("%s-%s", nick, uuid.NewString()[:4])
		sess.SetNick(nick)
		if err := h.users.Register(nick, sess); err != nil {
			return fmt.Errorf("registering nickname: %w", err)
		}
		_ = conn.WriteLine(fmt.Sprintf("[System] nickname taken, you are %s", nick))
	}

	h.hub.Join(sess)
	h.hub.Broadcast(fmt.Sprintf("[System] %s connected", nick))
	h.logger.Info("session registered", zap.String("nick", nick))

	defer h.teardown(sess)

	for {
		line, err := conn.ReadLine()
		if err != nil {
			h.logger.Debug("read loop ended",
				zap.String("nick", sess.Nick()),
				zap.Error(err),
			)
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "/quit" {
			_ = conn.WriteLine("[System] bye")
			return nil
		}
		h.router.Dispatch(sess, line)
	}
}

// readNick reads the first input line as the nickname, generating a guest
// name when it is blank.
func (h *Handler) readNick(conn *transport.Conn) (string, error) {
	line, err := conn.ReadLine()
	if err != nil {
		return "", fmt.Errorf("reading nickname: %w", err)
	}
	nick := strings.TrimSpace(line)
	if nick == "" {
		nick = "guest-" + uuid.NewString()[:8]
	}
	return nick, nil
}

// teardown unwinds every registration the session holds. Runs exactly once
// per session on the session's own goroutine.
func (h *Handler) teardown(sess *chat.Session) {
	nick := sess.Nick()

	if room := sess.Room(); room != nil {
		room.RemoveParticipant(sess)
		sess.SetRoom(nil)
		room.Broadcast(fmt.Sprintf("[System] %s disconnected", nick))
	}

	// Disconnect handlers are no-ops when the player is not in a game.
	_ = h.omok.HandleDisconnect(nick)
	_ = h.br31.HandleDisconnect(nick)

	h.users.Unregister(nick, sess)
	h.hub.Leave(sess)
	h.logger.Info("session unregistered", zap.String("nick", nick))
}

// connSink adapts a transport.Conn to the chat.Sink interface.
type connSink struct {
	conn *transport.Conn
}

// Send writes one line, best-effort.
func (c connSink) Send(line string) error {
	return c.conn.WriteLine(line)
}
