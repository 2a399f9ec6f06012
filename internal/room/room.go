package room

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/DoyleJ11/dice-arena-backend/internal/engine"
	"github.com/DoyleJ11/dice-arena-backend/internal/identity"
	"github.com/DoyleJ11/dice-arena-backend/internal/metrics"
	"github.com/DoyleJ11/dice-arena-backend/internal/protocol"
)

var ErrRoomClosed = errors.New("room closed")
var ErrAlreadyStarted = errors.New("game already started")
var ErrRoomFull = errors.New("room is full")
var ErrPrivateRoom = errors.New("room is password protected")
var ErrInvalidPassword = errors.New("invalid password")
var ErrUsernameTaken = errors.New("username already in room")
var ErrNotAMember = errors.New("not a member of this room")
var ErrNotEnoughPlayers = errors.New("not enough players")
var ErrPlayersNotReady = errors.New("not all players are ready")
var ErrNotStarted = errors.New("game not started")
var ErrSessionNotFound = errors.New("no session to rejoin")
var ErrAlreadySeated = errors.New("connection already holds a seat")

// Conn is a client connection as seen by a room: an id and where to write.
type Conn struct {
	ID     string
	Outbox chan<- protocol.ServerMessage
}

type member struct {
	conn      Conn
	username  string
	ready     bool
	connected bool
}

type Options struct {
	ID           string
	MaxPlayers   int
	PasswordHash []byte // nil for an open room
	Registry     *identity.Registry
	Logger       *zap.Logger
	// Grace is how long a room may sit without connected players before it
	// closes itself.
	Grace time.Duration
	// OnClose runs on its own goroutine once the room has shut itself down.
	OnClose func(*Room)
}

// Room owns one lobby and, once started, its match. All state is confined to
// the loop goroutine; callers talk to it through Inbox or Ask.
type Room struct {
	id           string
	maxPlayers   int
	passwordHash []byte
	players      []*member
	started      bool
	game         *engine.GameState
	createdAt    time.Time

	registry *identity.Registry
	logger   *zap.Logger
	onClose  func(*Room)

	grace      time.Duration
	graceGen   int
	graceTimer *time.Timer
	closing    bool

	inbox  chan Msg
	ctx    context.Context
	cancel context.CancelFunc
}

// HashPassword prepares a room password for Options.PasswordHash. An empty
// password yields nil, meaning the room is open.
func HashPassword(password string, cost int) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash room password: %w", err)
	}
	return hash, nil
}

// New starts an empty room. The grace timer only arms once the room has had
// players and lost them; a room whose first join fails must be shut down by
// its creator.
func New(parent context.Context, opts Options) *Room {
	ctx, cancel := context.WithCancel(parent)
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Room{
		id:           opts.ID,
		maxPlayers:   opts.MaxPlayers,
		passwordHash: opts.PasswordHash,
		createdAt:    time.Now(),
		registry:     opts.Registry,
		logger:       logger.With(zap.String("room_id", opts.ID)),
		onClose:      opts.OnClose,
		grace:        opts.Grace,
		inbox:        make(chan Msg, 64),
		ctx:          ctx,
		cancel:       cancel,
	}
	if r.registry == nil {
		r.registry = identity.NewRegistry()
	}

	go r.loop()
	return r
}

func (r *Room) ID() string { return r.id }

// Done is closed once the room has stopped processing messages.
func (r *Room) Done() <-chan struct{} { return r.ctx.Done() }

// Expose the inbox so the hub and gateway can send messages.
func (r *Room) Inbox() chan<- Msg { return r.inbox }

// Ask sends the message built around a fresh reply channel and waits for the
// answer. It fails with ErrRoomClosed if the room stops first.
func Ask[T any](ctx context.Context, r *Room, build func(reply chan T) Msg) (T, error) {
	var zero T
	reply := make(chan T, 1)

	select {
	case r.inbox <- build(reply):
	case <-r.ctx.Done():
		return zero, ErrRoomClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case v := <-reply:
		return v, nil
	case <-r.ctx.Done():
		// The loop replies before it exits, so a late answer is already buffered.
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrRoomClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (r *Room) loop() {
	defer r.stopGrace()

	for {
		select {
		case <-r.ctx.Done():
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Join:
				msg.Reply <- r.join(msg)

			case Rejoin:
				msg.Reply <- r.rejoin(msg)

			case ToggleReady:
				msg.Reply <- r.toggleReady(msg.ConnID)

			case Start:
				msg.Reply <- r.start(msg.ConnID)

			case Action:
				msg.Reply <- r.act(msg.ConnID, msg.Cmd)

			case Emote:
				msg.Reply <- r.emote(msg.ConnID, msg.Emote)

			case Leave:
				msg.Reply <- r.leave(msg.ConnID)

			case Disconnect:
				msg.Reply <- r.disconnect(msg.ConnID)

			case Holds:
				msg.Reply <- r.memberByConn(msg.ConnID) != nil

			case GetState:
				msg.Reply <- View{Room: r.view(), Connected: r.connectedCount(), Closing: r.closing}

			case graceExpired:
				if msg.gen != r.graceGen || r.connectedCount() > 0 {
					break // stale timer, or someone came back
				}
				r.close("empty")
				return

			case Shutdown:
				r.cancel()
				return
			}
		}
	}
}

func (r *Room) close(reason string) {
	r.closing = true
	r.logger.Info("room closed", zap.String("reason", reason))
	r.cancel()
	if r.onClose != nil {
		go r.onClose(r)
	}
}

func (r *Room) join(msg Join) Result {
	switch {
	case r.closing:
		return Result{Err: ErrRoomClosed}
	case r.memberByConn(msg.Conn.ID) != nil:
		return Result{Err: ErrAlreadySeated}
	case r.started:
		return Result{Err: ErrAlreadyStarted}
	case len(r.players) >= r.maxPlayers:
		return Result{Err: ErrRoomFull}
	case msg.Quick && r.passwordHash != nil:
		return Result{Err: ErrPrivateRoom}
	case !msg.Creator && r.passwordHash != nil &&
		bcrypt.CompareHashAndPassword(r.passwordHash, []byte(msg.Password)) != nil:
		return Result{Err: ErrInvalidPassword}
	case r.indexOf(msg.Username) >= 0:
		return Result{Err: ErrUsernameTaken}
	}

	greet := msg.Quick || len(r.players) == 0
	r.players = append(r.players, &member{conn: msg.Conn, username: msg.Username, connected: true})
	r.registry.Register(msg.Username, msg.Conn.ID, r.id)
	r.stopGrace()

	view := r.view()
	if greet {
		r.send(msg.Conn, protocol.ServerMessage{Type: protocol.TypeRoomCreated, Room: &view})
		r.broadcast(protocol.ServerMessage{Type: protocol.TypePlayerJoined, Room: &view}, msg.Conn.ID)
	} else {
		r.broadcast(protocol.ServerMessage{Type: protocol.TypePlayerJoined, Room: &view}, "")
	}

	r.logger.Info("player joined",
		zap.String("username", msg.Username),
		zap.String("conn_id", msg.Conn.ID),
		zap.Int("players", len(r.players)),
		zap.Bool("quick", msg.Quick))
	return Result{View: view}
}

// rejoin reattaches a returning player. Started rooms keep every seat, so the
// entry is updated in place; a dropped lobby seat is recreated if there is
// still room for it.
func (r *Room) rejoin(msg Rejoin) Result {
	if r.closing {
		return Result{Err: ErrRoomClosed}
	}
	if held := r.memberByConn(msg.Conn.ID); held != nil && held.username != msg.Username {
		return Result{Err: ErrAlreadySeated}
	}

	m := r.memberByName(msg.Username)
	if m == nil {
		if r.started {
			return Result{Err: ErrSessionNotFound}
		}
		if len(r.players) >= r.maxPlayers {
			return Result{Err: ErrRoomFull}
		}
		m = &member{username: msg.Username}
		r.players = append(r.players, m)
	}

	m.conn = msg.Conn
	m.connected = true
	if !r.registry.Rebind(msg.Username, msg.Conn.ID) {
		r.registry.Register(msg.Username, msg.Conn.ID, r.id)
	}
	r.stopGrace()

	view := r.view()
	r.send(msg.Conn, protocol.ServerMessage{Type: protocol.TypeRejoinSuccess, Room: &view})
	r.broadcast(protocol.ServerMessage{Type: protocol.TypePlayerRejoined, Username: msg.Username}, msg.Conn.ID)

	r.logger.Info("player rejoined", zap.String("username", msg.Username), zap.String("conn_id", msg.Conn.ID))
	return Result{View: view}
}

// toggleReady ignores connections that are not members.
func (r *Room) toggleReady(connID string) error {
	m := r.memberByConn(connID)
	if m == nil || r.started {
		return nil
	}

	m.ready = !m.ready
	view := r.view()
	r.broadcast(protocol.ServerMessage{Type: protocol.TypeRoomUpdated, Room: &view}, "")
	return nil
}

func (r *Room) start(connID string) error {
	switch {
	case r.memberByConn(connID) == nil:
		return ErrNotAMember
	case r.started:
		return ErrAlreadyStarted
	case len(r.players) < 2:
		return ErrNotEnoughPlayers
	case slices.ContainsFunc(r.players, func(m *member) bool { return !m.ready }):
		return ErrPlayersNotReady
	}

	names := make([]string, len(r.players))
	for i, m := range r.players {
		names[i] = m.username
	}
	gs := engine.Initialize(names)
	r.game = &gs
	r.started = true
	metrics.MatchesStarted.Inc()

	r.broadcast(protocol.ServerMessage{Type: protocol.TypeGameStarted, GameState: r.game}, "")
	r.logger.Info("game started", zap.Strings("players", names))
	return nil
}

func (r *Room) act(connID string, cmd engine.Command) error {
	m := r.memberByConn(connID)
	if m == nil {
		return ErrNotAMember
	}
	if !r.started {
		return ErrNotStarted
	}

	cmd.Player = m.username
	return r.apply(cmd)
}

// apply runs cmd through the engine and publishes the outcome. A rejected
// command leaves the match untouched and broadcasts nothing.
func (r *Room) apply(cmd engine.Command) error {
	events, next, err := engine.Apply(*r.game, cmd)
	if err != nil {
		r.logger.Debug("command rejected",
			zap.String("player", cmd.Player),
			zap.String("command", string(cmd.Type)),
			zap.Error(err))
		return err
	}
	if events == nil {
		return nil
	}

	r.game = &next
	r.broadcast(protocol.ServerMessage{Type: protocol.TypeGameStateUpdated, GameState: r.game}, "")

	if engine.ContainsEvent(events, engine.EvtGameEnded) {
		summary := engine.Summarize(next)
		r.broadcast(protocol.ServerMessage{Type: protocol.TypeGameEnded, History: &summary}, "")
		metrics.MatchesFinished.Inc()
		r.logger.Info("game ended",
			zap.String("winner", summary.Winner),
			zap.Int("eliminations", len(summary.Eliminations)))
	}
	return nil
}

func (r *Room) emote(connID, emote string) error {
	m := r.memberByConn(connID)
	if m == nil {
		return ErrNotAMember
	}
	r.broadcast(protocol.ServerMessage{Type: protocol.TypeEmote, Username: m.username, Emote: emote}, connID)
	return nil
}

// leave is an explicit departure: the session is dropped and, mid-match, the
// player forfeits.
func (r *Room) leave(connID string) error {
	m := r.memberByConn(connID)
	if m == nil {
		return ErrNotAMember
	}

	r.registry.Remove(m.username, r.id)
	r.depart(m)

	// a finished match has nothing left to forfeit
	if r.started && !r.game.Over() {
		if err := r.apply(engine.Command{Type: engine.CmdForfeit, Player: m.username}); err != nil {
			r.logger.Warn("forfeit failed", zap.String("username", m.username), zap.Error(err))
		}
	}
	return nil
}

func (r *Room) disconnect(connID string) bool {
	m := r.memberByConn(connID)
	if m == nil {
		return false
	}
	r.depart(m)
	return true
}

// depart takes m out of the room. Lobby seats are freed; match seats stay so
// the game keeps its turn order, and are only marked disconnected.
func (r *Room) depart(m *member) {
	if r.started {
		m.connected = false
		m.conn = Conn{}
	} else {
		r.players = slices.DeleteFunc(r.players, func(p *member) bool { return p == m })
	}

	view := r.view()
	r.broadcast(protocol.ServerMessage{Type: protocol.TypePlayerLeft, Room: &view, Username: m.username}, "")
	r.logger.Info("player left", zap.String("username", m.username), zap.Int("connected", r.connectedCount()))

	if r.connectedCount() == 0 {
		r.armGrace()
	}
}

func (r *Room) armGrace() {
	r.stopGrace()
	gen := r.graceGen
	r.graceTimer = time.AfterFunc(r.grace, func() {
		select {
		case r.inbox <- graceExpired{gen: gen}:
		case <-r.ctx.Done():
		}
	})
}

func (r *Room) stopGrace() {
	r.graceGen++
	if r.graceTimer != nil {
		r.graceTimer.Stop()
		r.graceTimer = nil
	}
}

func (r *Room) view() protocol.Room {
	players := make([]protocol.Player, len(r.players))
	for i, m := range r.players {
		players[i] = protocol.Player{
			ID:        m.conn.ID,
			Username:  m.username,
			Ready:     m.ready,
			Connected: m.connected,
		}
	}
	return protocol.Room{
		ID:          r.id,
		MaxPlayers:  r.maxPlayers,
		HasPassword: r.passwordHash != nil,
		Players:     players,
		Started:     r.started,
		GameState:   r.game,
		CreatedAt:   r.createdAt,
	}
}

func (r *Room) send(c Conn, msg protocol.ServerMessage) {
	if c.Outbox == nil {
		return
	}
	select {
	case c.Outbox <- msg:
	default:
		// Client is slow/full - drop the message, the next snapshot catches it up.
		metrics.DroppedMessages.Inc()
		r.logger.Warn("outbox full, dropping message", zap.String("conn_id", c.ID), zap.String("type", msg.Type))
	}
}

func (r *Room) broadcast(msg protocol.ServerMessage, except string) {
	for _, m := range r.players {
		if m.connected && m.conn.ID != except {
			r.send(m.conn, msg)
		}
	}
}

func (r *Room) memberByConn(connID string) *member {
	if connID == "" {
		return nil
	}
	for _, m := range r.players {
		if m.connected && m.conn.ID == connID {
			return m
		}
	}
	return nil
}

func (r *Room) memberByName(name string) *member {
	if i := r.indexOf(name); i >= 0 {
		return r.players[i]
	}
	return nil
}

func (r *Room) indexOf(name string) int {
	return slices.IndexFunc(r.players, func(m *member) bool { return m.username == name })
}

func (r *Room) connectedCount() int {
	n := 0
	for _, m := range r.players {
		if m.connected {
			n++
		}
	}
	return n
}
