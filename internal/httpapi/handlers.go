package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/DoyleJ11/dice-arena-backend/internal/hub"
	"github.com/DoyleJ11/dice-arena-backend/internal/identity"
	"github.com/DoyleJ11/dice-arena-backend/internal/room"
)

type roomStats struct {
	ID         string `json:"id"`
	Players    int    `json:"players"`
	Connected  int    `json:"connected"`
	MaxPlayers int    `json:"maxPlayers"`
	Started    bool   `json:"started"`
	Private    bool   `json:"private"`
}

// Stats lists live rooms in creation order along with the session count.
func Stats(h *hub.Hub, registry *identity.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := hub.Ask(r.Context(), h, func(reply chan []*room.Room) hub.HubMsg {
			return hub.ListRooms{Reply: reply}
		})
		if err != nil {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}

		out := make([]roomStats, 0, len(rooms))
		for _, rm := range rooms {
			v, err := room.Ask(r.Context(), rm, func(reply chan room.View) room.Msg {
				return room.GetState{Reply: reply}
			})
			if err != nil {
				continue // closed while we were looking
			}
			out = append(out, roomStats{
				ID:         v.Room.ID,
				Players:    len(v.Room.Players),
				Connected:  v.Connected,
				MaxPlayers: v.Room.MaxPlayers,
				Started:    v.Room.Started,
				Private:    v.Room.HasPassword,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Rooms    []roomStats `json:"rooms"`
			Sessions int         `json:"sessions"`
		}{Rooms: out, Sessions: registry.Len()})
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
