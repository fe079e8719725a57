package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parlorchat/parlor/internal/chat"
	"github.com/parlorchat/parlor/internal/game/br31"
	"github.com/parlorchat/parlor/internal/game/omok"
	"github.com/parlorchat/parlor/internal/storage"
)

// persistTimeout bounds the fire-and-forget store calls.
const persistTimeout = 5 * time.Second

// Router dispatches one trimmed input line from a session to room, user,
// and game operations. Protocol errors become [System] notices on the
// offending session only; nothing here closes a connection.
type Router struct {
	rooms       *chat.RoomManager
	users       *chat.UserDirectory
	hub         *chat.Hub
	omok        *omok.Manager
	br31        *br31.Manager
	store       storage.Store
	recentLimit int
	logger      *zap.Logger
}

// NewRouter creates a Router with the given collaborators.
//
// Precondition: All collaborators and logger must be non-nil;
// recentLimit must be >= 0.
func NewRouter(
	rooms *chat.RoomManager,
	users *chat.UserDirectory,
	hub *chat.Hub,
	omokMgr *omok.Manager,
	br31Mgr *br31.Manager,
	store storage.Store,
	recentLimit int,
	logger *zap.Logger,
) *Router {
	return &Router{
		rooms:       rooms,
		users:       users,
		hub:         hub,
		omok:        omokMgr,
		br31:        br31Mgr,
		store:       store,
		recentLimit: recentLimit,
		logger:      logger,
	}
}

// notice sends a human-readable [System] line to one session.
func notice(s *chat.Session, format string, args ...any) {
	_ = s.Send("[System] " + fmt.Sprintf(format, args...))
}

// Dispatch handles one input line from the session. Plain text is chat;
// slash-prefixed lines are commands. Unknown commands produce a notice,
// never a protocol error to the peer.
func (r *Router) Dispatch(s *chat.Session, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	if !strings.HasPrefix(line, "/") {
		r.handleChat(s, line)
		return
	}

	// Mention carries its target inside the command token.
	if strings.HasPrefix(line, "/@") {
		r.handleMention(s, line)
		return
	}

	parsed := Parse(line)
	switch parsed.Command {
	case "/help":
		r.handleHelp(s)
	case "/who":
		r.handleWho(s)
	case "/rooms":
		r.handleRooms(s)
	case "/room.create":
		r.handleRoomCreate(s, parsed.Args)
	case "/room.delete":
		r.handleRoomDelete(s, parsed.Args)
	case "/join":
		r.handleJoin(s, parsed.Args)
	case "/to":
		r.handleWhisper(s, parsed.Args, parsed.RawArgs)
	case "/secret":
		r.handleSecret(s, parsed.Args)
	case "/silent":
		r.handleSilent(s, parsed.RawArgs)
	case "/bomb":
		r.handleBomb(s, parsed.Args, parsed.RawArgs)
	case "/typing":
		r.handleTyping(s, parsed.Args)
	case "/game.join":
		r.handleGameJoin(s, parsed.Args)
	case "/game.move":
		r.handleGameMove(s, parsed.Args)
	case "/game.quit":
		r.handleGameQuit(s)
	default:
		notice(s, "unknown command %s (try /help)", parsed.Command)
	}
}

// handleChat broadcasts a plain chat line. In a room the line is persisted
// best-effort unless a secret span is active; outside any room it fans out
// through the hub.
func (r *Router) handleChat(s *chat.Session, text string) {
	room := s.Room()
	if room == nil {
		r.hub.Broadcast(fmt.Sprintf("%s: %s", s.Nick(), text))
		return
	}

	if sid, ok := room.ActiveSecret(); ok {
		room.Broadcast(fmt.Sprintf("@secret:msg %s %s: %s", sid, s.Nick(), text))
		return
	}

	room.Broadcast(fmt.Sprintf("%s: %s", s.Nick(), text))
	r.persistMessage(room.Name(), s.Nick(), text)
}

func (r *Router) handleHelp(s *chat.Session) {
	for _, line := range helpLines {
		_ = s.Send(line)
	}
}

func (r *Router) handleWho(s *chat.Session) {
	room := s.Room()
	if room == nil {
		notice(s, "join a room first (%d users online)", r.users.Count())
		return
	}
	notice(s, "in %s: %s", room.Name(), strings.Join(room.ParticipantNames(), ", "))
}

// handleRooms sends the @rooms catalogue snapshot as a JSON array.
func (r *Router) handleRooms(s *chat.Session) {
	infos := r.rooms.List()
	payload, err := json.Marshal(infos)
	if err != nil {
		r.logger.Error("marshaling room catalogue", zap.Error(err))
		notice(s, "room list unavailable")
		return
	}
	_ = s.Send("@rooms " + string(payload))
}

func (r *Router) handleRoomCreate(s *chat.Session, args []string) {
	if len(args) < 3 {
		notice(s, "usage: /room.create <name> <capacity> lock|open [password]")
		return
	}

	name := args[0]
	capacity, err := strconv.Atoi(args[1])
	if err != nil || capacity < 1 {
		notice(s, "capacity must be a positive number")
		return
	}

	var locked bool
	switch args[2] {
	case "lock":
		locked = true
	case "open":
		locked = false
	default:
		notice(s, "mode must be lock or open")
		return
	}

	password := ""
	if len(args) > 3 {
		password = args[3]
	}
	if locked && password == "" {
		notice(s, "a locked room needs a password")
		return
	}

	if _, err := r.rooms.Create(name, capacity, locked, password, s.Nick()); err != nil {
		if errors.Is(err, chat.ErrRoomExists) {
			notice(s, "room %s already exists", name)
		} else {
			notice(s, "cannot create room: %v", err)
		}
		return
	}

	r.persistRoom(storage.RoomRecord{
		Name:     name,
		Capacity: capacity,
		Locked:   locked,
		Password: password,
		Owner:    s.Nick(),
	})
	notice(s, "room %s created (capacity %d)", name, capacity)
}

func (r *Router) handleRoomDelete(s *chat.Session, args []string) {
	if len(args) != 1 {
		notice(s, "usage: /room.delete <name>")
		return
	}
	name := args[0]

	room, ok := r.rooms.Get(name)
	if !ok {
		notice(s, "no such room %s", name)
		return
	}
	if room.Owner() != s.Nick() {
		notice(s, "only the owner can delete %s", name)
		return
	}

	if _, err := r.rooms.Delete(name); err != nil {
		notice(s, "cannot delete room: %v", err)
		return
	}

	room.Broadcast(fmt.Sprintf("[System] room %s was deleted by its owner", name))
	for _, nick := range room.ParticipantNames() {
		if member, found := r.users.Lookup(nick); found && member.Room() == room {
			room.RemoveParticipant(member)
			member.SetRoom(nil)
		}
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := r.store.DeleteRoom(ctx, name); err != nil {
			r.logger.Warn("deleting room from store", zap.String("room", name), zap.Error(err))
		}
	}()
	notice(s, "room %s deleted", name)
}

func (r *Router) handleJoin(s *chat.Session, args []string) {
	if len(args) < 1 {
		notice(s, "usage: /join <room> [password]")
		return
	}
	name := args[0]
	password := ""
	if len(args) > 1 {
		password = args[1]
	}

	room, ok := r.rooms.Get(name)
	if !ok {
		notice(s, "no such room %s", name)
		return
	}
	if !room.MatchPassword(password) {
		notice(s, "wrong password for %s", name)
		return
	}
	if cur := s.Room(); cur == room {
		notice(s, "already in %s", name)
		return
	}

	if !room.AddParticipant(s) {
		notice(s, "room %s is full", name)
		return
	}

	if cur := s.Room(); cur != nil {
		cur.RemoveParticipant(s)
		cur.Broadcast(fmt.Sprintf("[System] %s left the room", s.Nick()))
	}
	s.SetRoom(room)
	room.Broadcast(fmt.Sprintf("[System] %s joined %s", s.Nick(), name))

	r.replayHistory(s, name)
}

// replayHistory sends recent room history to the joiner, best-effort.
func (r *Router) replayHistory(s *chat.Session, roomName string) {
	if r.recentLimit == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	msgs, err := r.store.RecentMessages(ctx, roomName, r.recentLimit)
	if err != nil {
		r.logger.Warn("loading room history",
			zap.String("room", roomName),
			zap.Error(err),
		)
		return
	}
	for _, m := range msgs {
		_ = s.Send(fmt.Sprintf("[History] %s: %s", m.Sender, m.Body))
	}
}

// handleWhisper delivers a private message. Both sessions must be in the
// same room; cross-room whispers are rejected with a notice.
func (r *Router) handleWhisper(s *chat.Session, args []string, raw string) {
	if len(args) < 2 {
		notice(s, "usage: /to <nick> <msg>")
		return
	}
	targetNick := args[0]
	body := strings.TrimSpace(strings.TrimPrefix(raw, targetNick))

	target, ok := r.users.Lookup(targetNick)
	if !ok {
		notice(s, "no user named %s", targetNick)
		return
	}

	room := s.Room()
	if room == nil || target.Room() != room {
		notice(s, "%s is not in your room", targetNick)
		return
	}

	if err := target.Send(fmt.Sprintf("[Whisper] %s: %s", s.Nick(), body)); err != nil {
		r.logger.Debug("whisper dropped", zap.String("to", targetNick), zap.Error(err))
	}
	_ = s.Send(fmt.Sprintf("[Whisper] to %s: %s", targetNick, body))
}

// handleMention broadcasts to the whole room and warns the sender when the
// mentioned user is absent from it.
func (r *Router) handleMention(s *chat.Session, line string) {
	room := s.Room()
	if room == nil {
		notice(s, "join a room first")
		return
	}

	rest := strings.TrimPrefix(line, "/@")
	spaceIdx := strings.IndexByte(rest, ' ')
	if spaceIdx <= 0 {
		notice(s, "usage: /@<nick> <msg>")
		return
	}
	targetNick := rest[:spaceIdx]
	body := strings.TrimSpace(rest[spaceIdx+1:])
	if body == "" {
		notice(s, "usage: /@<nick> <msg>")
		return
	}

	room.Broadcast(fmt.Sprintf("%s: @%s %s", s.Nick(), targetNick, body))
	if !room.ContainsNick(targetNick) {
		notice(s, "%s is not in this room", targetNick)
	}
}

// handleSecret toggles the room's secret span. The router mints the sid on
// ON and owns its lifecycle; OFF triggers the room-wide clear broadcast.
func (r *Router) handleSecret(s *chat.Session, args []string) {
	room := s.Room()
	if room == nil {
		notice(s, "join a room first")
		return
	}
	if len(args) != 1 {
		notice(s, "usage: /secret on|off")
		return
	}

	switch args[0] {
	case "on":
		sid := uuid.NewString()
		if !room.StartSecret(sid) {
			notice(s, "secret mode is already on")
			return
		}
		room.Broadcast(fmt.Sprintf("@secret:on %s", sid))
	case "off":
		sid, ok := room.StopSecret()
		if !ok {
			notice(s, "secret mode is not on")
			return
		}
		room.Broadcast(fmt.Sprintf("@secret:off %s", sid))
		room.Broadcast(fmt.Sprintf("@secret:clear %s", sid))
	default:
		notice(s, "usage: /secret on|off")
	}
}

// handleSilent is room chat that never reaches the history store.
func (r *Router) handleSilent(s *chat.Session, body string) {
	room := s.Room()
	if room == nil {
		notice(s, "join a room first")
		return
	}
	if body == "" {
		notice(s, "usage: /silent <msg>")
		return
	}
	room.Broadcast(fmt.Sprintf("%s: %s", s.Nick(), body))
}

func (r *Router) handleBomb(s *chat.Session, args []string, raw string) {
	room := s.Room()
	if room == nil {
		notice(s, "join a room first")
		return
	}
	if len(args) < 2 {
		notice(s, "usage: /bomb <seconds> <msg>")
		return
	}
	seconds, err := strconv.Atoi(args[0])
	if err != nil || seconds < 1 || seconds > 60 {
		notice(s, "seconds must be 1-60")
		return
	}
	body := strings.TrimSpace(strings.TrimPrefix(raw, args[0]))
	room.Broadcast(fmt.Sprintf("@bomb %d %s: %s", seconds, s.Nick(), body))
}

func (r *Router) handleTyping(s *chat.Session, args []string) {
	room := s.Room()
	if room == nil {
		return
	}
	if len(args) != 1 || (args[0] != "start" && args[0] != "stop") {
		notice(s, "usage: /typing start|stop")
		return
	}
	s.SetTyping(args[0] == "start")
	room.Broadcast(fmt.Sprintf("@typing %s %s", args[0], s.Nick()))
}

func (r *Router) handleGameJoin(s *chat.Session, args []string) {
	if len(args) < 1 {
		notice(s, "usage: /game.join omok|br31 [party-size]")
		return
	}

	switch args[0] {
	case "omok":
		if _, err := r.omok.HandlePlayerJoin(s.Nick(), s); err != nil {
			notice(s, "cannot join omok: %v", err)
		}
	case "br31":
		room := s.Room()
		if room == nil {
			notice(s, "join a room before starting br31")
			return
		}
		result, err := r.br31.HandlePlayerJoin(room.Name(), s.Nick(), s)
		if err != nil {
			notice(s, "cannot join br31: %v", err)
			return
		}
		if len(args) > 1 {
			size, convErr := strconv.Atoi(args[1])
			if convErr != nil {
				notice(s, "party size must be a number")
				return
			}
			if result != br31.JoinHostWaiting {
				notice(s, "only the host sets the party size")
				return
			}
			if err := r.br31.HandleHostSetup(s.Nick(), size); err != nil {
				notice(s, "cannot set party size: %v", err)
			}
		}
	default:
		notice(s, "unknown game %s", args[0])
	}
}

// handleGameMove routes the move to whichever game currently owns the
// player. Omok moves are "<row> <col>"; BR31 moves are 1-3 numbers.
func (r *Router) handleGameMove(s *chat.Session, args []string) {
	nick := s.Nick()

	switch {
	case r.omok.HasPlayer(nick):
		if len(args) != 2 {
			notice(s, "usage: /game.move <row> <col>")
			return
		}
		row, errRow := strconv.Atoi(args[0])
		col, errCol := strconv.Atoi(args[1])
		if errRow != nil || errCol != nil {
			notice(s, "usage: /game.move <row> <col>")
			return
		}
		if err := r.omok.RecordMoveWithValidation(nick, row, col); err != nil {
			notice(s, "move rejected: %v", err)
		}
	case r.br31.HasPlayer(nick):
		if len(args) == 0 {
			notice(s, "usage: /game.move <n> [n+1 [n+2]]")
			return
		}
		numbers := make([]int, 0, len(args))
		for _, a := range args {
			n, err := strconv.Atoi(a)
			if err != nil {
				notice(s, "numbers only")
				return
			}
			numbers = append(numbers, n)
		}
		if err := r.br31.HandlePlayerMove(nick, numbers); err != nil {
			notice(s, "move rejected: %v", err)
		}
	default:
		notice(s, "you are not in a game")
	}
}

func (r *Router) handleGameQuit(s *chat.Session) {
	nick := s.Nick()
	switch {
	case r.omok.HasPlayer(nick):
		_ = r.omok.HandlePlayerQuit(nick)
		notice(s, "left omok")
	case r.br31.HasPlayer(nick):
		_ = r.br31.HandlePlayerQuit(nick)
		notice(s, "left br31")
	default:
		notice(s, "you are not in a game")
	}
}

// persistMessage saves one chat line, fire-and-forget.
func (r *Router) persistMessage(room, sender, body string) {
	msg := storage.Message{Room: room, Sender: sender, Body: body, SentAt: time.Now()}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := r.store.SaveMessage(ctx, msg); err != nil {
			r.logger.Warn("saving message", zap.String("room", room), zap.Error(err))
		}
	}()
}

// persistRoom saves one room record, fire-and-forget.
func (r *Router) persistRoom(rec storage.RoomRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := r.store.UpsertRoom(ctx, rec); err != nil {
			r.logger.Warn("upserting room", zap.String("room", rec.Name), zap.Error(err))
		}
	}()
}

// helpLines is the /help output.
var helpLines = []string{
	"[System] commands:",
	"[System]   /rooms                                    list rooms",
	"[System]   /room.create <name> <cap> lock|open [pw]  create a room",
	"[System]   /room.delete <name>                       delete your room",
	"[System]   /join <room> [password]                   join a room",
	"[System]   /who                                      list room members",
	"[System]   /to <nick> <msg>                          whisper (same room)",
	"[System]   /@<nick> <msg>                            mention",
	"[System]   /secret on|off                            erasable message span",
	"[System]   /silent <msg>                             off-the-record message",
	"[System]   /bomb <seconds> <msg>                     self-erasing message",
	"[System]   /typing start|stop                        typing indicator",
	"[System]   /game.join omok|br31 [party-size]         join a mini-game",
	"[System]   /game.move ...                            play a move",
	"[System]   /game.quit                                leave your game",
	"[System]   /quit                                     disconnect",
}
