package gateway

import (
	"errors"

	"github.com/DoyleJ11/dice-arena-backend/internal/engine"
	"github.com/DoyleJ11/dice-arena-backend/internal/hub"
	"github.com/DoyleJ11/dice-arena-backend/internal/room"
)

const CodeInternal = "Internal"

// errorCodes lists every error a client may see. Lookup is by errors.Is, so
// wrapped errors resolve to the sentinel they wrap.
var errorCodes = []struct {
	err     error
	code    string
	message string
}{
	{hub.ErrRoomNotFound, "RoomNotFound", "Room not found"},
	{room.ErrRoomClosed, "RoomNotFound", "Room not found"},
	{hub.ErrInvalidMaxPlayers, "InvalidMaxPlayers", "Invalid max players"},
	{room.ErrAlreadyStarted, "AlreadyStarted", "Game already started"},
	{room.ErrRoomFull, "RoomFull", "Room is full"},
	{room.ErrInvalidPassword, "InvalidPassword", "Invalid password"},
	{room.ErrPrivateRoom, "InvalidPassword", "Room is password protected"},
	{room.ErrUsernameTaken, "UsernameTaken", "Username already in room"},
	{room.ErrNotAMember, "NotAMember", "You are not in this room"},
	{room.ErrNotEnoughPlayers, "NotEnoughPlayers", "Not enough players"},
	{room.ErrPlayersNotReady, "PlayersNotReady", "Not all players are ready"},
	{room.ErrNotStarted, "NotStarted", "Game has not started"},
	{room.ErrSessionNotFound, "SessionNotFound", "No session to rejoin"},
	{room.ErrAlreadySeated, "AlreadyInRoom", "Leave your current room first"},

	{engine.ErrNotYourTurn, "NotYourTurn", "Not your turn"},
	{engine.ErrInvalidRollValue, "InvalidRollValue", "Invalid roll value"},
	{engine.ErrMustRollOneFirst, "MustRollOneFirst", "Roll a 1 to start"},
	{engine.ErrNoPendingShot, "NoPendingShot", "No shot to take"},
	{engine.ErrInvalidTarget, "InvalidTarget", "Invalid target"},
	{engine.ErrShotPending, "ShotPending", "Shoot or skip first"},
	{engine.ErrGameOver, "GameOver", "Game is over"},
	{engine.ErrUnknownPlayer, "NotAMember", "You are not in this game"},
	{engine.ErrUnsupportedCommand, "BadPayload", "Unsupported action"},

	{ErrInvalidUsername, "InvalidUsername", "Invalid username"},
	{ErrUnknownEvent, "UnknownEvent", "Unknown event"},
	{ErrBadPayload, "BadPayload", "Bad payload"},
	{ErrRateLimited, "RateLimited", "Too many events, slow down"},
}

// Describe maps err to the code and message sent to the client.
func Describe(err error) (code, message string) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code, e.message
		}
	}
	return CodeInternal, "Internal error"
}
