package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/DoyleJ11/dice-arena-backend/internal/gateway"
	"github.com/DoyleJ11/dice-arena-backend/internal/hub"
	"github.com/DoyleJ11/dice-arena-backend/internal/identity"
	"github.com/DoyleJ11/dice-arena-backend/internal/protocol"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zaptest.NewLogger(t)
	reg := identity.NewRegistry()
	h := hub.NewHub(context.Background(), reg, logger, hub.Config{Grace: time.Minute})
	t.Cleanup(h.Close)

	g := gateway.New(h, reg, nil, logger, bcrypt.MinCost)
	srv := httptest.NewServer(Handler(g, logger, Options{OutboxSize: 8}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.CloseNow() })
	return c
}

func write(t *testing.T, c *websocket.Conn, msg protocol.ClientMessage) {
	t.Helper()
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, payload))
}

func read(t *testing.T, c *websocket.Conn) protocol.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var msg protocol.ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHandler_QuickMatchAndDisconnect(t *testing.T) {
	srv := newServer(t)
	alice := dial(t, srv)
	bob := dial(t, srv)

	write(t, alice, protocol.ClientMessage{Type: protocol.TypeQuickMatch, Username: "alice"})
	created := read(t, alice)
	require.Equal(t, protocol.TypeRoomCreated, created.Type)
	require.NotNil(t, created.Room)

	write(t, bob, protocol.ClientMessage{Type: protocol.TypeQuickMatch, Username: "bob"})
	greeted := read(t, bob)
	assert.Equal(t, protocol.TypeRoomCreated, greeted.Type)
	assert.Equal(t, created.Room.ID, greeted.Room.ID)
	assert.Equal(t, protocol.TypePlayerJoined, read(t, alice).Type)

	require.NoError(t, bob.Close(websocket.StatusNormalClosure, ""))

	left := read(t, alice)
	assert.Equal(t, protocol.TypePlayerLeft, left.Type)
	assert.Equal(t, "bob", left.Username)
	assert.Len(t, left.Room.Players, 1)
}

func TestHandler_ErrorFrame(t *testing.T) {
	srv := newServer(t)
	c := dial(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("nope")))

	msg := read(t, c)
	assert.Equal(t, protocol.TypeError, msg.Type)
	assert.Equal(t, "BadPayload", msg.Code)
}
