// Package protocol holds the JSON frames exchanged with clients. Every frame
// is an object whose "type" names the event; the remaining fields are that
// event's payload.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/DoyleJ11/dice-arena-backend/internal/engine"
)

// Client -> Server
const (
	TypeRejoinRoom  = "rejoinRoom"
	TypeQuickMatch  = "quickMatch"
	TypeCreateRoom  = "createRoom"
	TypeJoinRoom    = "joinRoom"
	TypeToggleReady = "toggleReady"
	TypeStartGame   = "startGame"
	TypeGameAction  = "gameAction"
	TypeSendEmote   = "sendEmote"
	TypeLeaveRoom   = "leaveRoom"
)

// Server -> Client
const (
	TypeRejoinSuccess    = "rejoinSuccess"
	TypePlayerRejoined   = "playerRejoined"
	TypeRoomCreated      = "roomCreated"
	TypePlayerJoined     = "playerJoined"
	TypeError            = "error"
	TypeRoomUpdated      = "roomUpdated"
	TypeGameStarted      = "gameStarted"
	TypeGameStateUpdated = "gameStateUpdated"
	TypeGameEnded        = "gameEnded"
	TypePlayerLeft       = "playerLeft"
	TypeEmote            = "emote"
)

// gameAction actions
const (
	ActionRoll  = "roll"
	ActionShoot = "shoot"
	ActionSkip  = "skip"
)

type ClientMessage struct {
	Type       string          `json:"type"`
	RoomID     string          `json:"roomId,omitempty"`
	Username   string          `json:"username,omitempty"`
	Password   *string         `json:"password,omitempty"`
	MaxPlayers int             `json:"maxPlayers,omitempty"`
	Action     string          `json:"action,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Emote      string          `json:"emote,omitempty"`
}

type RollData struct {
	Value int `json:"value"`
}

// ShootData names the target by username, or by seat index via TargetPlayer.
type ShootData struct {
	Target       string `json:"target,omitempty"`
	TargetPlayer *int   `json:"targetPlayer,omitempty"`
	TargetCell   int    `json:"targetCell"`
}

type ServerMessage struct {
	Type      string            `json:"type"`
	Room      *Room             `json:"room,omitempty"`
	GameState *engine.GameState `json:"gameState,omitempty"`
	History   *engine.Summary   `json:"history,omitempty"`
	Username  string            `json:"username,omitempty"`
	Emote     string            `json:"emote,omitempty"`
	Message   string            `json:"message,omitempty"`
	Code      string            `json:"code,omitempty"`
}

type Room struct {
	ID          string            `json:"id"`
	MaxPlayers  int               `json:"maxPlayers"`
	HasPassword bool              `json:"hasPassword"`
	Players     []Player          `json:"players"`
	Started     bool              `json:"started"`
	GameState   *engine.GameState `json:"gameState,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// Player.ID is the player's current connection id; empty while disconnected.
type Player struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
}
