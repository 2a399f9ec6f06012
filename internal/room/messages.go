package room

import (
	"github.com/DoyleJ11/dice-arena-backend/internal/engine"
	"github.com/DoyleJ11/dice-arena-backend/internal/protocol"
)

type Msg interface{ isRoomMsg() }

// Result answers requests that hand the caller a fresh view of the room.
type Result struct {
	View protocol.Room
	Err  error
}

// Join adds a player. Quick joins only succeed in passwordless rooms and
// greet the joiner with roomCreated. Creator joins skip the password check.
type Join struct {
	Username string
	Password string
	Conn     Conn
	Quick    bool
	Creator  bool
	Reply    chan Result
}

type Rejoin struct {
	Username string
	Conn     Conn
	Reply    chan Result
}

type ToggleReady struct {
	ConnID string
	Reply  chan error
}

type Start struct {
	ConnID string
	Reply  chan error
}

// Action runs cmd through the engine on behalf of the member owning ConnID.
// cmd.Player is filled in by the room.
type Action struct {
	ConnID string
	Cmd    engine.Command
	Reply  chan error
}

type Emote struct {
	ConnID string
	Emote  string
	Reply  chan error
}

type Leave struct {
	ConnID string
	Reply  chan error
}

// Disconnect reports whether ConnID belonged to a connected member.
type Disconnect struct {
	ConnID string
	Reply  chan bool
}

// Holds reports whether ConnID is seated and connected in the room.
type Holds struct {
	ConnID string
	Reply  chan bool
}

type GetState struct {
	Reply chan View
}

type Shutdown struct{}

type graceExpired struct{ gen int }

func (Join) isRoomMsg()         {}
func (Rejoin) isRoomMsg()       {}
func (ToggleReady) isRoomMsg()  {}
func (Start) isRoomMsg()        {}
func (Action) isRoomMsg()       {}
func (Emote) isRoomMsg()        {}
func (Leave) isRoomMsg()        {}
func (Disconnect) isRoomMsg()   {}
func (Holds) isRoomMsg()        {}
func (GetState) isRoomMsg()     {}
func (Shutdown) isRoomMsg()     {}
func (graceExpired) isRoomMsg() {}

type View struct {
	Room      protocol.Room
	Connected int
	Closing   bool
}
