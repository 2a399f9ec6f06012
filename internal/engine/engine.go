package engine

import (
	"errors"
	"fmt"
)

var ErrNotYourTurn = errors.New("not your turn")
var ErrInvalidRollValue = errors.New("invalid roll value")
var ErrMustRollOneFirst = errors.New("must roll a 1 first")
var ErrNoPendingShot = errors.New("no pending shot")
var ErrInvalidTarget = errors.New("invalid target")
var ErrShotPending = errors.New("shot pending")
var ErrGameOver = errors.New("game over")
var ErrUnknownPlayer = errors.New("unknown player")
var ErrUnsupportedCommand = errors.New("unsupported command")

const (
	MaxStage   = 6
	MaxBullets = 5
)

type Cell struct {
	Stage    int  `json:"stage"`
	IsActive bool `json:"isActive"`
	Bullets  int  `json:"bullets"`
}

type PlayerState struct {
	Username   string `json:"username"`
	Eliminated bool   `json:"eliminated"`
	FirstMove  bool   `json:"firstMove"`
	Cells      []Cell `json:"cells"`
}

type LogType string

const (
	LogFirstMove LogType = "firstMove"
	LogActivate  LogType = "activate"
	LogUpgrade   LogType = "upgrade"
	LogMaxLevel  LogType = "maxLevel"
	LogShoot     LogType = "shoot"
	LogSkip      LogType = "skip"
	LogEliminate LogType = "eliminate"
	LogForfeit   LogType = "forfeit"
)

// LogEntry cells are die faces (1-based), matching what the players rolled.
type LogEntry struct {
	Type    LogType `json:"type"`
	Player  string  `json:"player"`
	Message string  `json:"message,omitempty"`
	Cell    int     `json:"cell,omitempty"`
	Shooter string  `json:"shooter,omitempty"`
	Target  string  `json:"target,omitempty"`
}

// Elimination has an empty Eliminator when the player forfeited.
type Elimination struct {
	Eliminator string `json:"eliminator,omitempty"`
	Eliminated string `json:"eliminated"`
}

type PlayerStats struct {
	ShotsFired    int `json:"shotsFired"`
	Eliminations  int `json:"eliminations"`
	TimesTargeted int `json:"timesTargeted"`
}

type GameState struct {
	Players            []PlayerState          `json:"players"`
	CurrentPlayerIndex int                    `json:"currentPlayer"`
	LastRoll           *int                   `json:"lastRoll"`
	PendingShot        *int                   `json:"pendingShot"` // shooter's armed cell index
	GameLog            []LogEntry             `json:"gameLog"`
	Eliminations       []Elimination          `json:"eliminations"`
	Stats              map[string]PlayerStats `json:"stats"`
	Winner             string                 `json:"winner,omitempty"`
}

// Summary is the end-of-match report sent with gameEnded.
type Summary struct {
	Winner       string                 `json:"winner"`
	Eliminations []Elimination          `json:"eliminations"`
	PlayerStats  map[string]PlayerStats `json:"playerStats"`
}

type CommandType string

const (
	CmdRoll     CommandType = "roll"
	CmdShoot    CommandType = "shoot"
	CmdSkipShot CommandType = "skip"
	CmdForfeit  CommandType = "forfeit"
)

/*
	CmdRoll     -> EvtRolled -> EvtCellActivated | EvtCellUpgraded | EvtCellArmed | EvtCellSpent -> EvtTurnAdvanced
	CmdRoll     -> EvtRolled -> EvtShotReady (turn held until shoot or skip)
	CmdShoot    -> EvtShotFired -> [EvtPlayerEliminated] -> EvtTurnAdvanced | EvtGameEnded
	CmdSkipShot -> EvtShotSkipped -> EvtTurnAdvanced
	CmdForfeit  -> EvtPlayerForfeited -> [EvtTurnAdvanced] | EvtGameEnded
*/

// Command is one proposed action. Player is the acting username; for a
// forfeit it is the player leaving. A shot names its target by Target, or by
// TargetSeat when Target is empty. Cell is the 0-based target cell index.
type Command struct {
	Type       CommandType
	Player     string
	Value      int
	Target     string
	TargetSeat int
	Cell       int
}

type EventType string

const (
	EvtRolled           EventType = "Rolled"
	EvtCellActivated    EventType = "CellActivated"
	EvtCellUpgraded     EventType = "CellUpgraded"
	EvtCellArmed        EventType = "CellArmed"
	EvtCellSpent        EventType = "CellSpent"
	EvtShotReady        EventType = "ShotReady"
	EvtShotFired        EventType = "ShotFired"
	EvtShotSkipped      EventType = "ShotSkipped"
	EvtPlayerEliminated EventType = "PlayerEliminated"
	EvtPlayerForfeited  EventType = "PlayerForfeited"
	EvtTurnAdvanced     EventType = "TurnAdvanced"
	EvtGameEnded        EventType = "GameEnded"
)

type Event struct {
	Type   EventType
	Player string
	Target string
	Cell   int
	Value  int
}

// Apply validates cmd against s and returns the resulting state. s is never
// modified; on error the returned state is s itself.
func Apply(s GameState, cmd Command) ([]Event, GameState, error) {
	if s.Over() {
		return nil, s, ErrGameOver
	}

	switch cmd.Type {
	case CmdRoll:
		return applyRoll(s, cmd)
	case CmdShoot:
		return resolveShot(s, cmd)
	case CmdSkipShot:
		return skipShot(s, cmd)
	case CmdForfeit:
		return forfeit(s, cmd)
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func applyRoll(s GameState, cmd Command) ([]Event, GameState, error) {
	if err := checkTurn(s, cmd.Player); err != nil {
		return nil, s, err
	}
	if s.PendingShot != nil {
		return nil, s, ErrShotPending
	}

	n := len(s.Players)
	if cmd.Value < 1 || cmd.Value > n {
		return nil, s, fmt.Errorf("%w: %d is not in 1..%d", ErrInvalidRollValue, cmd.Value, n)
	}
	if s.Players[s.CurrentPlayerIndex].FirstMove && cmd.Value != 1 {
		return nil, s, ErrMustRollOneFirst
	}

	next := s.Clone()
	me := &next.Players[next.CurrentPlayerIndex]
	idx := cmd.Value - 1
	cell := &me.Cells[idx]

	me.FirstMove = false
	value := cmd.Value
	next.LastRoll = &value
	events := []Event{{Type: EvtRolled, Player: me.Username, Value: value}}

	switch {
	case !cell.IsActive:
		cell.IsActive = true
		cell.Stage = 1
		next.appendLog(LogEntry{Type: LogActivate, Player: me.Username, Cell: value})
		events = append(events, Event{Type: EvtCellActivated, Player: me.Username, Cell: idx})

	case cell.Stage < MaxStage:
		cell.Stage++
		if cell.Stage == MaxStage {
			cell.Bullets = MaxBullets
			next.appendLog(LogEntry{Type: LogMaxLevel, Player: me.Username, Cell: value})
			events = append(events, Event{Type: EvtCellArmed, Player: me.Username, Cell: idx})
		} else {
			next.appendLog(LogEntry{Type: LogUpgrade, Player: me.Username, Cell: value})
			events = append(events, Event{Type: EvtCellUpgraded, Player: me.Username, Cell: idx})
		}

	case cell.Bullets > 0:
		// Armed: the turn is held until the shot is fired or skipped.
		next.PendingShot = &idx
		events = append(events, Event{Type: EvtShotReady, Player: me.Username, Cell: idx})
		return events, next, nil

	default:
		events = append(events, Event{Type: EvtCellSpent, Player: me.Username, Cell: idx})
	}

	if evt, ok := next.advanceTurn(); ok {
		events = append(events, evt)
	}
	return events, next, nil
}

func resolveShot(s GameState, cmd Command) ([]Event, GameState, error) {
	if err := checkTurn(s, cmd.Player); err != nil {
		return nil, s, err
	}
	if s.PendingShot == nil {
		return nil, s, ErrNoPendingShot
	}

	ti, ok := s.targetIndex(cmd)
	switch {
	case !ok:
		return nil, s, fmt.Errorf("%w: no such player", ErrInvalidTarget)
	case ti == s.CurrentPlayerIndex:
		return nil, s, fmt.Errorf("%w: cannot shoot yourself", ErrInvalidTarget)
	case s.Players[ti].Eliminated:
		return nil, s, fmt.Errorf("%w: %s is eliminated", ErrInvalidTarget, s.Players[ti].Username)
	case cmd.Cell < 0 || cmd.Cell >= len(s.Players[ti].Cells):
		return nil, s, fmt.Errorf("%w: cell %d out of range", ErrInvalidTarget, cmd.Cell)
	case !s.Players[ti].Cells[cmd.Cell].IsActive:
		return nil, s, fmt.Errorf("%w: cell %d is not active", ErrInvalidTarget, cmd.Cell)
	}

	next := s.Clone()
	shooter := &next.Players[next.CurrentPlayerIndex]
	victim := &next.Players[ti]

	shooter.Cells[*next.PendingShot].Bullets--
	next.PendingShot = nil
	victim.Cells[cmd.Cell] = Cell{}

	next.tally(shooter.Username, func(st *PlayerStats) { st.ShotsFired++ })
	next.tally(victim.Username, func(st *PlayerStats) { st.TimesTargeted++ })
	next.appendLog(LogEntry{
		Type:    LogShoot,
		Player:  shooter.Username,
		Shooter: shooter.Username,
		Target:  victim.Username,
		Cell:    cmd.Cell + 1,
	})
	events := []Event{{Type: EvtShotFired, Player: shooter.Username, Target: victim.Username, Cell: cmd.Cell}}

	if !victim.hasActiveCell() {
		victim.Eliminated = true
		next.Eliminations = append(next.Eliminations, Elimination{Eliminator: shooter.Username, Eliminated: victim.Username})
		next.tally(shooter.Username, func(st *PlayerStats) { st.Eliminations++ })
		next.appendLog(LogEntry{
			Type:    LogEliminate,
			Player:  victim.Username,
			Message: fmt.Sprintf("%s was eliminated by %s", victim.Username, shooter.Username),
		})
		events = append(events, Event{Type: EvtPlayerEliminated, Player: victim.Username, Target: shooter.Username})
	}

	if winner, over := next.survivor(); over {
		next.Winner = winner
		return append(events, Event{Type: EvtGameEnded, Player: winner}), next, nil
	}

	if evt, ok := next.advanceTurn(); ok {
		events = append(events, evt)
	}
	return events, next, nil
}

func skipShot(s GameState, cmd Command) ([]Event, GameState, error) {
	if err := checkTurn(s, cmd.Player); err != nil {
		return nil, s, err
	}
	if s.PendingShot == nil {
		return nil, s, ErrNoPendingShot
	}

	next := s.Clone()
	cell := *next.PendingShot
	next.PendingShot = nil
	next.appendLog(LogEntry{Type: LogSkip, Player: cmd.Player, Cell: cell + 1})

	events := []Event{{Type: EvtShotSkipped, Player: cmd.Player, Cell: cell}}
	if evt, ok := next.advanceTurn(); ok {
		events = append(events, evt)
	}
	return events, next, nil
}

// forfeit removes a departing player from the rotation. Forfeiting twice is a no-op.
func forfeit(s GameState, cmd Command) ([]Event, GameState, error) {
	idx := s.indexOf(cmd.Player)
	if idx < 0 {
		return nil, s, fmt.Errorf("%w: %s", ErrUnknownPlayer, cmd.Player)
	}
	if s.Players[idx].Eliminated {
		return nil, s, nil
	}

	next := s.Clone()
	next.Players[idx].Eliminated = true
	next.Eliminations = append(next.Eliminations, Elimination{Eliminated: cmd.Player})
	next.appendLog(LogEntry{
		Type:    LogForfeit,
		Player:  cmd.Player,
		Message: fmt.Sprintf("%s left the match", cmd.Player),
	})
	events := []Event{{Type: EvtPlayerForfeited, Player: cmd.Player}}

	if winner, over := next.survivor(); over {
		next.Winner = winner
		next.PendingShot = nil
		return append(events, Event{Type: EvtGameEnded, Player: winner}), next, nil
	}

	if idx == next.CurrentPlayerIndex {
		next.PendingShot = nil
		if evt, ok := next.advanceTurn(); ok {
			events = append(events, evt)
		}
	}
	return events, next, nil
}

func checkTurn(s GameState, player string) error {
	if len(s.Players) == 0 {
		return ErrNotYourTurn
	}
	cur := s.Players[s.CurrentPlayerIndex]
	if cur.Username != player || cur.Eliminated {
		return ErrNotYourTurn
	}
	return nil
}
