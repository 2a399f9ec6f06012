package engine

// advanceTurn hands the turn to the next non-eliminated seat, wrapping around.
// With fewer than two players left the match is decided and the turn stays put.
func (s *GameState) advanceTurn() (Event, bool) {
	if s.ActiveCount() < 2 {
		return Event{}, false
	}

	n := len(s.Players)
	for step := 1; step < n; step++ {
		i := (s.CurrentPlayerIndex + step) % n
		if s.Players[i].Eliminated {
			continue
		}
		s.CurrentPlayerIndex = i
		if s.Players[i].FirstMove {
			s.appendLog(firstMoveEntry(s.Players[i].Username))
		}
		return Event{Type: EvtTurnAdvanced, Player: s.Players[i].Username}, true
	}
	return Event{}, false
}
