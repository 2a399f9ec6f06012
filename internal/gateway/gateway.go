// Package gateway turns client events into hub and room requests. Failures
// are reported to the requesting connection only.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/dice-arena-backend/internal/engine"
	"github.com/DoyleJ11/dice-arena-backend/internal/hub"
	"github.com/DoyleJ11/dice-arena-backend/internal/identity"
	"github.com/DoyleJ11/dice-arena-backend/internal/metrics"
	"github.com/DoyleJ11/dice-arena-backend/internal/protocol"
	"github.com/DoyleJ11/dice-arena-backend/internal/ratelimit"
	"github.com/DoyleJ11/dice-arena-backend/internal/room"
)

var ErrUnknownEvent = errors.New("unknown event")
var ErrBadPayload = errors.New("bad payload")
var ErrRateLimited = errors.New("rate limited")

type Gateway struct {
	hub        *hub.Hub
	registry   *identity.Registry
	limiter    ratelimit.Limiter
	logger     *zap.Logger
	bcryptCost int
}

func New(h *hub.Hub, registry *identity.Registry, limiter ratelimit.Limiter, logger *zap.Logger, bcryptCost int) *Gateway {
	if limiter == nil {
		limiter = ratelimit.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{hub: h, registry: registry, limiter: limiter, logger: logger, bcryptCost: bcryptCost}
}

// HandleFrame decodes one websocket frame and handles it.
func (g *Gateway) HandleFrame(ctx context.Context, conn room.Conn, data []byte) {
	var msg protocol.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		g.reject(conn, "invalid", fmt.Errorf("%w: %v", ErrBadPayload, err))
		return
	}
	g.Handle(ctx, conn, msg)
}

func (g *Gateway) Handle(ctx context.Context, conn room.Conn, msg protocol.ClientMessage) {
	event := msg.Type
	if !knownEvent(event) {
		event = "unknown"
	}
	metrics.InboundEvents.WithLabelValues(event).Inc()

	ok, err := g.limiter.Allow(ctx, conn.ID)
	if err != nil {
		g.logger.Warn("rate limiter unavailable", zap.String("conn_id", conn.ID), zap.Error(err))
	}
	if !ok {
		g.reject(conn, event, ErrRateLimited)
		return
	}

	if err := g.dispatch(ctx, conn, msg); err != nil {
		g.reject(conn, event, err)
	}
}

func (g *Gateway) dispatch(ctx context.Context, conn room.Conn, msg protocol.ClientMessage) error {
	switch msg.Type {
	case protocol.TypeRejoinRoom:
		return g.rejoin(ctx, conn, msg)

	case protocol.TypeQuickMatch:
		name, err := NormalizeUsername(msg.Username)
		if err != nil {
			return err
		}
		if err := g.unseated(ctx, conn.ID); err != nil {
			return err
		}
		res, err := hub.Ask(ctx, g.hub, func(reply chan hub.Created) hub.HubMsg {
			return hub.QuickMatch{Username: name, Conn: conn, Reply: reply}
		})
		if err != nil {
			return err
		}
		return res.Err

	case protocol.TypeCreateRoom:
		name, err := NormalizeUsername(msg.Username)
		if err != nil {
			return err
		}
		if err := g.unseated(ctx, conn.ID); err != nil {
			return err
		}
		var password string
		if msg.Password != nil {
			password = *msg.Password
		}
		hash, err := room.HashPassword(password, g.bcryptCost)
		if err != nil {
			return err
		}
		res, err := hub.Ask(ctx, g.hub, func(reply chan hub.Created) hub.HubMsg {
			return hub.CreateRoom{MaxPlayers: msg.MaxPlayers, PasswordHash: hash, Username: name, Conn: conn, Reply: reply}
		})
		if err != nil {
			return err
		}
		return res.Err

	case protocol.TypeJoinRoom:
		name, err := NormalizeUsername(msg.Username)
		if err != nil {
			return err
		}
		if err := g.unseated(ctx, conn.ID); err != nil {
			return err
		}
		r, err := g.room(ctx, msg.RoomID)
		if err != nil {
			return err
		}
		var password string
		if msg.Password != nil {
			password = *msg.Password
		}
		res, err := room.Ask(ctx, r, func(reply chan room.Result) room.Msg {
			return room.Join{Username: name, Password: password, Conn: conn, Reply: reply}
		})
		if err != nil {
			return err
		}
		return res.Err

	case protocol.TypeToggleReady:
		return g.ask(ctx, conn, msg.RoomID, func(reply chan error) room.Msg {
			return room.ToggleReady{ConnID: conn.ID, Reply: reply}
		})

	case protocol.TypeStartGame:
		return g.ask(ctx, conn, msg.RoomID, func(reply chan error) room.Msg {
			return room.Start{ConnID: conn.ID, Reply: reply}
		})

	case protocol.TypeGameAction:
		cmd, err := ParseAction(msg.Action, msg.Data)
		if err != nil {
			return err
		}
		return g.ask(ctx, conn, msg.RoomID, func(reply chan error) room.Msg {
			return room.Action{ConnID: conn.ID, Cmd: cmd, Reply: reply}
		})

	case protocol.TypeSendEmote:
		if msg.Emote == "" {
			return fmt.Errorf("%w: empty emote", ErrBadPayload)
		}
		return g.ask(ctx, conn, msg.RoomID, func(reply chan error) room.Msg {
			return room.Emote{ConnID: conn.ID, Emote: msg.Emote, Reply: reply}
		})

	case protocol.TypeLeaveRoom:
		return g.ask(ctx, conn, msg.RoomID, func(reply chan error) room.Msg {
			return room.Leave{ConnID: conn.ID, Reply: reply}
		})

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, msg.Type)
	}
}

// rejoin reattaches conn to the room the username's session points at.
func (g *Gateway) rejoin(ctx context.Context, conn room.Conn, msg protocol.ClientMessage) error {
	name, err := NormalizeUsername(msg.Username)
	if err != nil {
		return err
	}
	s, ok := g.registry.Lookup(name)
	if !ok || (msg.RoomID != "" && msg.RoomID != s.RoomID) {
		return room.ErrSessionNotFound
	}
	r, err := g.room(ctx, s.RoomID)
	if err != nil {
		return err
	}
	// the target room itself decides whether a seat it already holds is the same player
	if held, err := g.seat(ctx, conn.ID); err != nil {
		return err
	} else if held != nil && held != r {
		return room.ErrAlreadySeated
	}
	res, err := room.Ask(ctx, r, func(reply chan room.Result) room.Msg {
		return room.Rejoin{Username: name, Conn: conn, Reply: reply}
	})
	if err != nil {
		return err
	}
	return res.Err
}

// Disconnect detaches a closed connection from whichever room holds it.
func (g *Gateway) Disconnect(ctx context.Context, connID string) {
	code, err := hub.Ask(ctx, g.hub, func(reply chan string) hub.HubMsg {
		return hub.Disconnect{ConnID: connID, Reply: reply}
	})
	if err != nil {
		g.logger.Debug("disconnect not delivered", zap.String("conn_id", connID), zap.Error(err))
		return
	}
	if code != "" {
		g.logger.Debug("connection detached", zap.String("conn_id", connID), zap.String("room_id", code))
	}
}

func (g *Gateway) room(ctx context.Context, code string) (*room.Room, error) {
	if code == "" {
		return nil, hub.ErrRoomNotFound
	}
	r, err := hub.Ask(ctx, g.hub, func(reply chan *room.Room) hub.HubMsg {
		return hub.GetRoom{Code: code, Reply: reply}
	})
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, hub.ErrRoomNotFound
	}
	return r, nil
}

// seat returns the room where connID holds a connected seat, or nil.
func (g *Gateway) seat(ctx context.Context, connID string) (*room.Room, error) {
	return hub.Ask(ctx, g.hub, func(reply chan *room.Room) hub.HubMsg {
		return hub.Locate{ConnID: connID, Reply: reply}
	})
}

// unseated fails if connID already sits in some room. A connection holds at
// most one seat.
func (g *Gateway) unseated(ctx context.Context, connID string) error {
	r, err := g.seat(ctx, connID)
	if err != nil {
		return err
	}
	if r != nil {
		return fmt.Errorf("%w: room %s", room.ErrAlreadySeated, r.ID())
	}
	return nil
}

// ask runs a room request against code, or against the connection's own
// room when the client left the code out.
func (g *Gateway) ask(ctx context.Context, conn room.Conn, code string, build func(reply chan error) room.Msg) error {
	var r *room.Room
	var err error
	if code == "" {
		r, err = g.seat(ctx, conn.ID)
		if err == nil && r == nil {
			err = hub.ErrRoomNotFound
		}
	} else {
		r, err = g.room(ctx, code)
	}
	if err != nil {
		return err
	}
	roomErr, err := room.Ask(ctx, r, build)
	if err != nil {
		return err
	}
	return roomErr
}

func (g *Gateway) reject(conn room.Conn, event string, err error) {
	code, message := Describe(err)
	metrics.RejectedEvents.WithLabelValues(event, code).Inc()
	if code == CodeInternal {
		g.logger.Error("event failed", zap.String("conn_id", conn.ID), zap.String("event", event), zap.Error(err))
	} else {
		g.logger.Debug("event rejected", zap.String("conn_id", conn.ID), zap.String("event", event), zap.Error(err))
	}

	select {
	case conn.Outbox <- protocol.ServerMessage{Type: protocol.TypeError, Message: message, Code: code}:
	default:
		metrics.DroppedMessages.Inc()
	}
}

// ParseAction builds the engine command for a gameAction payload.
func ParseAction(action string, data json.RawMessage) (engine.Command, error) {
	switch action {
	case protocol.ActionRoll:
		var d protocol.RollData
		if err := decode(data, &d); err != nil {
			return engine.Command{}, err
		}
		return engine.Command{Type: engine.CmdRoll, Value: d.Value}, nil

	case protocol.ActionShoot:
		var d protocol.ShootData
		if err := decode(data, &d); err != nil {
			return engine.Command{}, err
		}
		cmd := engine.Command{Type: engine.CmdShoot, Target: d.Target, TargetSeat: -1, Cell: d.TargetCell}
		if d.Target == "" {
			if d.TargetPlayer == nil {
				return engine.Command{}, fmt.Errorf("%w: shoot needs target or targetPlayer", ErrBadPayload)
			}
			cmd.TargetSeat = *d.TargetPlayer
		}
		return cmd, nil

	case protocol.ActionSkip:
		return engine.Command{Type: engine.CmdSkipShot}, nil

	default:
		return engine.Command{}, fmt.Errorf("%w: unknown action %q", ErrBadPayload, action)
	}
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrBadPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

func knownEvent(t string) bool {
	switch t {
	case protocol.TypeRejoinRoom, protocol.TypeQuickMatch, protocol.TypeCreateRoom,
		protocol.TypeJoinRoom, protocol.TypeToggleReady, protocol.TypeStartGame,
		protocol.TypeGameAction, protocol.TypeSendEmote, protocol.TypeLeaveRoom:
		return true
	}
	return false
}
