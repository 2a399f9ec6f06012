package engine

import (
	"fmt"
	"maps"
	"slices"
)

// Initialize builds the opening state for the given seat order. Every player
// gets one dormant cell per seat and must open with a 1.
func Initialize(usernames []string) GameState {
	n := len(usernames)
	s := GameState{
		Players:      make([]PlayerState, 0, n),
		GameLog:      []LogEntry{},
		Eliminations: []Elimination{},
		Stats:        make(map[string]PlayerStats, n),
	}
	for _, name := range usernames {
		s.Players = append(s.Players, PlayerState{
			Username:  name,
			FirstMove: true,
			Cells:     make([]Cell, n),
		})
		s.Stats[name] = PlayerStats{}
	}
	if n > 0 {
		s.appendLog(firstMoveEntry(usernames[0]))
	}
	return s
}

func firstMoveEntry(name string) LogEntry {
	return LogEntry{
		Type:    LogFirstMove,
		Player:  name,
		Message: fmt.Sprintf("%s's turn! Roll a 1 to start.", name),
	}
}

// Clone returns a deep copy of s.
func (s GameState) Clone() GameState {
	c := s
	c.Players = make([]PlayerState, len(s.Players))
	for i, p := range s.Players {
		p.Cells = slices.Clone(p.Cells)
		c.Players[i] = p
	}
	if s.LastRoll != nil {
		v := *s.LastRoll
		c.LastRoll = &v
	}
	if s.PendingShot != nil {
		v := *s.PendingShot
		c.PendingShot = &v
	}
	c.GameLog = slices.Clone(s.GameLog)
	c.Eliminations = slices.Clone(s.Eliminations)
	c.Stats = maps.Clone(s.Stats)
	return c
}

// Over reports whether a winner has been decided.
func (s GameState) Over() bool {
	return s.Winner != ""
}

func (s GameState) ActiveCount() int {
	n := 0
	for _, p := range s.Players {
		if !p.Eliminated {
			n++
		}
	}
	return n
}

// CurrentPlayer returns the username whose turn it is.
func (s GameState) CurrentPlayer() string {
	if len(s.Players) == 0 {
		return ""
	}
	return s.Players[s.CurrentPlayerIndex].Username
}

// Summarize reports the winner, the elimination ledger and per-player tallies.
func Summarize(s GameState) Summary {
	stats := maps.Clone(s.Stats)
	if stats == nil {
		stats = map[string]PlayerStats{}
	}
	elims := slices.Clone(s.Eliminations)
	if elims == nil {
		elims = []Elimination{}
	}
	return Summary{Winner: s.Winner, Eliminations: elims, PlayerStats: stats}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func (s *GameState) appendLog(e LogEntry) {
	s.GameLog = append(s.GameLog, e)
}

func (s *GameState) tally(name string, fn func(*PlayerStats)) {
	if s.Stats == nil {
		s.Stats = map[string]PlayerStats{}
	}
	st := s.Stats[name]
	fn(&st)
	s.Stats[name] = st
}

func (s GameState) indexOf(name string) int {
	return slices.IndexFunc(s.Players, func(p PlayerState) bool { return p.Username == name })
}

func (s GameState) targetIndex(cmd Command) (int, bool) {
	if cmd.Target != "" {
		i := s.indexOf(cmd.Target)
		return i, i >= 0
	}
	if cmd.TargetSeat < 0 || cmd.TargetSeat >= len(s.Players) {
		return -1, false
	}
	return cmd.TargetSeat, true
}

// survivor returns the last player standing once only one remains.
func (s GameState) survivor() (string, bool) {
	if s.ActiveCount() != 1 {
		return "", false
	}
	for _, p := range s.Players {
		if !p.Eliminated {
			return p.Username, true
		}
	}
	return "", false
}

func (p PlayerState) hasActiveCell() bool {
	return slices.ContainsFunc(p.Cells, func(c Cell) bool { return c.IsActive })
}
