package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/dice-arena-backend/internal/gateway"
	"github.com/DoyleJ11/dice-arena-backend/internal/hub"
	"github.com/DoyleJ11/dice-arena-backend/internal/identity"
	"github.com/DoyleJ11/dice-arena-backend/internal/protocol"
	"github.com/DoyleJ11/dice-arena-backend/internal/room"
)

func newRouter(t *testing.T) (http.Handler, *gateway.Gateway) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	reg := identity.NewRegistry()
	h := hub.NewHub(context.Background(), reg, logger, hub.Config{Grace: time.Minute})
	t.Cleanup(h.Close)
	g := gateway.New(h, reg, nil, logger, 4)
	return SetupRoutes(Deps{Hub: h, Registry: reg, Gateway: g, Logger: logger}), g
}

func TestHealthz(t *testing.T) {
	router, _ := newRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStats(t *testing.T) {
	router, g := newRouter(t)
	out := make(chan protocol.ServerMessage, 8)
	g.Handle(context.Background(), room.Conn{ID: "c1", Outbox: out}, protocol.ClientMessage{Type: protocol.TypeQuickMatch, Username: "alice"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Rooms []struct {
			ID        string `json:"id"`
			Players   int    `json:"players"`
			Connected int    `json:"connected"`
		} `json:"rooms"`
		Sessions int `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rooms, 1)
	assert.Equal(t, 1, body.Rooms[0].Players)
	assert.Equal(t, 1, body.Rooms[0].Connected)
	assert.Equal(t, 1, body.Sessions)
}

func TestMetricsExposed(t *testing.T) {
	router, _ := newRouter(t)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "dicearena_rooms_active"))
}
