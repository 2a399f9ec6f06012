package hub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dice-arena-backend/internal/identity"
	"github.com/DoyleJ11/dice-arena-backend/internal/metrics"
	"github.com/DoyleJ11/dice-arena-backend/internal/protocol"
	"github.com/DoyleJ11/dice-arena-backend/internal/room"
)

var ErrHubClosed = errors.New("hub closed")
var ErrRoomNotFound = errors.New("room not found")
var ErrInvalidMaxPlayers = errors.New("invalid max players")
var ErrCodeSpace = errors.New("could not allocate a free room code")

// QuickMatchMaxPlayers is the size of rooms opened by quick match.
const QuickMatchMaxPlayers = 4

const maxCodeAttempts = 32

type HubMsg interface{ isHubMsg() }

// Created answers CreateRoom and QuickMatch.
type Created struct {
	Room *room.Room
	View protocol.Room
	Err  error
}

// CreateRoom opens a room with the requester as its first player. The
// password is hashed by the caller so the hub never runs bcrypt.
type CreateRoom struct {
	MaxPlayers   int // 0 picks the default
	PasswordHash []byte
	Username     string
	Conn         room.Conn
	Reply        chan Created
}

type QuickMatch struct {
	Username string
	Conn     room.Conn
	Reply    chan Created
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room // nil if not found
}

// Disconnect finds the first room, in creation order, holding ConnID and
// detaches the connection from it. The reply is that room's code, or "".
type Disconnect struct {
	ConnID string
	Reply  chan string
}

// Locate finds the first room, in creation order, where ConnID holds a
// connected seat. The reply is nil if there is none.
type Locate struct {
	ConnID string
	Reply  chan *room.Room
}

// ListRooms replies with the live rooms in creation order.
type ListRooms struct {
	Reply chan []*room.Room
}

// RemoveRoom is posted by a room once it has closed itself.
type RemoveRoom struct {
	Code string
	Room *room.Room
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (QuickMatch) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (Disconnect) isHubMsg()  {}
func (Locate) isHubMsg()      {}
func (ListRooms) isHubMsg()   {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Config struct {
	Grace             time.Duration
	DefaultMaxPlayers int
	MaxPlayersLimit   int
}

type Hub struct {
	inbox    chan HubMsg
	rooms    map[string]*room.Room
	order    []string // codes in creation order
	registry *identity.Registry
	logger   *zap.Logger
	cfg      Config
	newCode  func() (string, error)
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, registry *identity.Registry, logger *zap.Logger, cfg Config) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = identity.NewRegistry()
	}
	if cfg.DefaultMaxPlayers == 0 {
		cfg.DefaultMaxPlayers = QuickMatchMaxPlayers
	}
	if cfg.MaxPlayersLimit == 0 {
		cfg.MaxPlayersLimit = 8
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan HubMsg, 64),
		rooms:    make(map[string]*room.Room),
		registry: registry,
		logger:   logger,
		cfg:      cfg,
		newCode:  GenerateCode,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

// Close shuts down every room and then the hub itself.
func (h *Hub) Close() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
}

// Ask sends a request to the hub and waits for its reply.
func Ask[T any](ctx context.Context, h *Hub, build func(reply chan T) HubMsg) (T, error) {
	var zero T
	reply := make(chan T, 1)

	select {
	case h.inbox <- build(reply):
	case <-h.ctx.Done():
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case v := <-reply:
		return v, nil
	case <-h.ctx.Done():
		return zero, ErrHubClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				maxPlayers := msg.MaxPlayers
				if maxPlayers == 0 {
					maxPlayers = h.cfg.DefaultMaxPlayers
				}
				if maxPlayers < 2 || maxPlayers > h.cfg.MaxPlayersLimit {
					msg.Reply <- Created{Err: fmt.Errorf("%w: %d (want 2..%d)", ErrInvalidMaxPlayers, maxPlayers, h.cfg.MaxPlayersLimit)}
					break
				}
				msg.Reply <- h.create(maxPlayers, msg.PasswordHash, msg.Username, msg.Conn, false)

			case QuickMatch:
				msg.Reply <- h.quickMatch(msg.Username, msg.Conn)

			case GetRoom:
				msg.Reply <- h.rooms[msg.Code] // May be nil

			case Disconnect:
				msg.Reply <- h.disconnect(msg.ConnID)

			case Locate:
				msg.Reply <- h.locate(msg.ConnID)

			case ListRooms:
				rooms := make([]*room.Room, 0, len(h.order))
				for _, code := range h.order {
					rooms = append(rooms, h.rooms[code])
				}
				msg.Reply <- rooms

			case RemoveRoom:
				h.remove(msg.Code, msg.Room)

			case ShutdownHub:
				for _, r := range h.rooms {
					select {
					case r.Inbox() <- room.Shutdown{}:
					case <-r.Done():
					}
				}
				clear(h.rooms)
				h.order = nil
				h.cancel()
			}
		}
	}
}

func (h *Hub) create(maxPlayers int, passwordHash []byte, username string, conn room.Conn, quick bool) Created {
	code, err := h.uniqueCode()
	if err != nil {
		h.logger.Error("room code allocation failed", zap.Error(err))
		return Created{Err: err}
	}

	r := room.New(h.ctx, room.Options{
		ID:           code,
		MaxPlayers:   maxPlayers,
		PasswordHash: passwordHash,
		Registry:     h.registry,
		Logger:       h.logger,
		Grace:        h.cfg.Grace,
		OnClose:      h.roomClosed,
	})

	res, err := room.Ask(h.ctx, r, func(reply chan room.Result) room.Msg {
		return room.Join{Username: username, Conn: conn, Quick: quick, Creator: true, Reply: reply}
	})
	if err == nil {
		err = res.Err
	}
	if err != nil {
		select {
		case r.Inbox() <- room.Shutdown{}:
		case <-r.Done():
		}
		return Created{Err: err}
	}

	h.rooms[code] = r
	h.order = append(h.order, code)
	metrics.RoomsCreated.Inc()
	metrics.RoomsActive.Inc()
	h.logger.Info("room created",
		zap.String("room_id", code),
		zap.Int("max_players", maxPlayers),
		zap.Bool("private", passwordHash != nil),
		zap.Bool("quick", quick))
	return Created{Room: r, View: res.View}
}

// quickMatch seats the player in the oldest open room that takes them, or
// opens a fresh public room.
func (h *Hub) quickMatch(username string, conn room.Conn) Created {
	for _, code := range h.order {
		r := h.rooms[code]
		res, err := room.Ask(h.ctx, r, func(reply chan room.Result) room.Msg {
			return room.Join{Username: username, Conn: conn, Quick: true, Reply: reply}
		})
		if err != nil {
			continue // closing, its removal is already queued
		}
		switch {
		case res.Err == nil:
			h.logger.Debug("quick match joined", zap.String("room_id", code), zap.String("username", username))
			return Created{Room: r, View: res.View}
		case errors.Is(res.Err, room.ErrAlreadyStarted),
			errors.Is(res.Err, room.ErrRoomFull),
			errors.Is(res.Err, room.ErrPrivateRoom),
			errors.Is(res.Err, room.ErrUsernameTaken),
			errors.Is(res.Err, room.ErrRoomClosed):
			continue
		default:
			return Created{Err: res.Err}
		}
	}
	return h.create(QuickMatchMaxPlayers, nil, username, conn, true)
}

func (h *Hub) disconnect(connID string) string {
	for _, code := range h.order {
		gone, err := room.Ask(h.ctx, h.rooms[code], func(reply chan bool) room.Msg {
			return room.Disconnect{ConnID: connID, Reply: reply}
		})
		if err == nil && gone {
			return code
		}
	}
	return ""
}

func (h *Hub) locate(connID string) *room.Room {
	for _, code := range h.order {
		r := h.rooms[code]
		held, err := room.Ask(h.ctx, r, func(reply chan bool) room.Msg {
			return room.Holds{ConnID: connID, Reply: reply}
		})
		if err == nil && held {
			return r
		}
	}
	return nil
}

func (h *Hub) remove(code string, r *room.Room) {
	if cur, ok := h.rooms[code]; !ok || cur != r {
		return
	}
	delete(h.rooms, code)
	h.order = slices.DeleteFunc(h.order, func(c string) bool { return c == code })
	evicted := h.registry.RemoveRoom(code)
	metrics.RoomsActive.Dec()
	h.logger.Info("room removed", zap.String("room_id", code), zap.Int("sessions_evicted", evicted))
}

func (h *Hub) roomClosed(r *room.Room) {
	select {
	case h.inbox <- RemoveRoom{Code: r.ID(), Room: r}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) uniqueCode() (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		c, err := h.newCode()
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		if _, taken := h.rooms[c]; !taken {
			return c, nil
		}
		h.logger.Debug("collision on code, regenerating", zap.String("code", c))
	}
	return "", ErrCodeSpace
}
