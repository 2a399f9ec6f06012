package room

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/DoyleJ11/dice-arena-backend/internal/engine"
	"github.com/DoyleJ11/dice-arena-backend/internal/identity"
	"github.com/DoyleJ11/dice-arena-backend/internal/protocol"
)

const wait = 200 * time.Millisecond

type fixture struct {
	room     *Room
	registry *identity.Registry
	closed   chan *Room
}

func newFixture(t *testing.T, maxPlayers int, password string, grace time.Duration) *fixture {
	t.Helper()
	return newLoggedFixture(t, maxPlayers, password, grace, zaptest.NewLogger(t))
}

func newLoggedFixture(t *testing.T, maxPlayers int, password string, grace time.Duration, logger *zap.Logger) *fixture {
	t.Helper()
	hash, err := HashPassword(password, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &fixture{registry: identity.NewRegistry(), closed: make(chan *Room, 1)}
	f.room = New(ctx, Options{
		ID:           "ABC123",
		MaxPlayers:   maxPlayers,
		PasswordHash: hash,
		Registry:     f.registry,
		Logger:       logger,
		Grace:        grace,
		OnClose:      func(r *Room) { f.closed <- r },
	})
	return f
}

func newConn(id string) (Conn, chan protocol.ServerMessage) {
	out := make(chan protocol.ServerMessage, 16)
	return Conn{ID: id, Outbox: out}, out
}

// helper: receive one message with a timeout so tests never hang
func recvMsg(t *testing.T, ch <-chan protocol.ServerMessage, within time.Duration) protocol.ServerMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return protocol.ServerMessage{} // unreachable
	}
}

func recvType(t *testing.T, ch <-chan protocol.ServerMessage, want string) protocol.ServerMessage {
	t.Helper()
	msg := recvMsg(t, ch, wait)
	if msg.Type != want {
		t.Fatalf("want %s, got %s (%+v)", want, msg.Type, msg)
	}
	return msg
}

func recvNoMsg(t *testing.T, ch <-chan protocol.ServerMessage, within time.Duration) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("expected no message within %v, but got: %+v", within, msg)
	case <-time.After(within):
		// good: no message
	}
}

func (f *fixture) join(t *testing.T, name string, c Conn, password string) (protocol.Room, error) {
	t.Helper()
	res, err := Ask(context.Background(), f.room, func(reply chan Result) Msg {
		return Join{Username: name, Password: password, Conn: c, Reply: reply}
	})
	if err != nil {
		t.Fatalf("ask join: %v", err)
	}
	return res.View, res.Err
}

func (f *fixture) call(t *testing.T, build func(reply chan error) Msg) error {
	t.Helper()
	err, askErr := Ask(context.Background(), f.room, build)
	if askErr != nil {
		t.Fatalf("ask: %v", askErr)
	}
	return err
}

func (f *fixture) state(t *testing.T) View {
	t.Helper()
	v, err := Ask(context.Background(), f.room, func(reply chan View) Msg { return GetState{Reply: reply} })
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	return v
}

func (f *fixture) ready(t *testing.T, connID string) {
	t.Helper()
	if err := f.call(t, func(reply chan error) Msg { return ToggleReady{ConnID: connID, Reply: reply} }); err != nil {
		t.Fatalf("toggle ready: %v", err)
	}
}

// startTwoPlayer seats alice and bob, readies them and starts the match,
// draining the lobby chatter from both outboxes.
func (f *fixture) startTwoPlayer(t *testing.T) (alice, bob Conn, aliceOut, bobOut chan protocol.ServerMessage) {
	t.Helper()
	alice, aliceOut = newConn("c-alice")
	bob, bobOut = newConn("c-bob")
	if _, err := f.join(t, "alice", alice, ""); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if _, err := f.join(t, "bob", bob, ""); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	f.ready(t, alice.ID)
	f.ready(t, bob.ID)
	if err := f.call(t, func(reply chan error) Msg { return Start{ConnID: alice.ID, Reply: reply} }); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, ch := range []chan protocol.ServerMessage{aliceOut, bobOut} {
		for {
			if msg := recvMsg(t, ch, wait); msg.Type == protocol.TypeGameStarted {
				break
			}
		}
	}
	return alice, bob, aliceOut, bobOut
}

func (f *fixture) roll(t *testing.T, connID string, value int) error {
	t.Helper()
	return f.call(t, func(reply chan error) Msg {
		return Action{ConnID: connID, Cmd: engine.Command{Type: engine.CmdRoll, Value: value}, Reply: reply}
	})
}

func TestRoom_JoinGreetsCreatorAndBroadcastsToOthers(t *testing.T) {
	f := newFixture(t, 4, "", time.Minute)
	alice, aliceOut := newConn("c1")
	bob, bobOut := newConn("c2")

	view, err := f.join(t, "alice", alice, "")
	if err != nil {
		t.Fatalf("join alice: %v", err)
	}
	if len(view.Players) != 1 || view.Players[0].Username != "alice" || view.Players[0].Ready {
		t.Fatalf("unexpected view %+v", view)
	}
	created := recvType(t, aliceOut, protocol.TypeRoomCreated)
	if created.Room == nil || created.Room.ID != "ABC123" {
		t.Fatalf("roomCreated without room: %+v", created)
	}

	if _, err := f.join(t, "bob", bob, ""); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	for _, ch := range []chan protocol.ServerMessage{aliceOut, bobOut} {
		msg := recvType(t, ch, protocol.TypePlayerJoined)
		if len(msg.Room.Players) != 2 {
			t.Fatalf("want 2 players in broadcast, got %+v", msg.Room.Players)
		}
	}

	s, ok := f.registry.Lookup("bob")
	if !ok || s.RoomID != "ABC123" || s.ConnID != "c2" {
		t.Fatalf("bob not registered: %+v", s)
	}
}

func TestRoom_JoinRejections(t *testing.T) {
	f := newFixture(t, 2, "hunter2", time.Minute)
	alice, _ := newConn("c1")
	bob, _ := newConn("c2")
	carol, _ := newConn("c3")

	if _, err := f.join(t, "alice", alice, "wrong"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("want ErrInvalidPassword, got %v", err)
	}
	if _, err := f.join(t, "alice", alice, "hunter2"); err != nil {
		t.Fatalf("join with password: %v", err)
	}
	if _, err := f.join(t, "alice", bob, "hunter2"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("want ErrUsernameTaken, got %v", err)
	}

	quick, err := Ask(context.Background(), f.room, func(reply chan Result) Msg {
		return Join{Username: "bob", Conn: bob, Quick: true, Reply: reply}
	})
	if err != nil || !errors.Is(quick.Err, ErrPrivateRoom) {
		t.Fatalf("want ErrPrivateRoom for quick join, got %v / %v", err, quick.Err)
	}

	if _, err := f.join(t, "bob", bob, "hunter2"); err != nil {
		t.Fatalf("join bob: %v", err)
	}
	if _, err := f.join(t, "carol", carol, "hunter2"); !errors.Is(err, ErrRoomFull) {
		t.Fatalf("want ErrRoomFull, got %v", err)
	}

	if got := len(f.state(t).Room.Players); got != 2 {
		t.Fatalf("rejected joins changed membership: %d players", got)
	}
}

func TestRoom_ConnectionHoldsOneSeat(t *testing.T) {
	f := newFixture(t, 4, "", time.Minute)
	c, _ := newConn("c1")
	if _, err := f.join(t, "alice", c, ""); err != nil {
		t.Fatalf("join alice: %v", err)
	}

	if _, err := f.join(t, "bob", c, ""); !errors.Is(err, ErrAlreadySeated) {
		t.Fatalf("want ErrAlreadySeated, got %v", err)
	}
	res, err := Ask(context.Background(), f.room, func(reply chan Result) Msg {
		return Rejoin{Username: "bob", Conn: c, Reply: reply}
	})
	if err != nil || !errors.Is(res.Err, ErrAlreadySeated) {
		t.Fatalf("want ErrAlreadySeated on rejoin, got %v %v", err, res.Err)
	}
	if v := f.state(t); len(v.Room.Players) != 1 || v.Connected != 1 {
		t.Fatalf("second seat was taken: %+v", v)
	}

	held, _ := Ask(context.Background(), f.room, func(reply chan bool) Msg { return Holds{ConnID: c.ID, Reply: reply} })
	if !held {
		t.Fatalf("c1 should hold a seat")
	}
	if gone, _ := Ask(context.Background(), f.room, func(reply chan bool) Msg {
		return Disconnect{ConnID: c.ID, Reply: reply}
	}); !gone {
		t.Fatalf("disconnect should match")
	}
	if v := f.state(t); v.Connected != 0 {
		t.Fatalf("ghost seat left behind: %+v", v)
	}
	held, _ = Ask(context.Background(), f.room, func(reply chan bool) Msg { return Holds{ConnID: c.ID, Reply: reply} })
	if held {
		t.Fatalf("c1 should hold nothing after disconnect")
	}
}

func TestRoom_JoinAfterStartIsRejected(t *testing.T) {
	f := newFixture(t, 4, "", time.Minute)
	f.startTwoPlayer(t)

	carol, _ := newConn("c3")
	if _, err := f.join(t, "carol", carol, ""); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("want ErrAlreadyStarted, got %v", err)
	}
}

func TestRoom_StartPreconditions(t *testing.T) {
	f := newFixture(t, 4, "", time.Minute)
	alice, _ := newConn("c1")
	bob, _ := newConn("c2")
	start := func(connID string) error {
		return f.call(t, func(reply chan error) Msg { return Start{ConnID: connID, Reply: reply} })
	}

	if _, err := f.join(t, "alice", alice, ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	f.ready(t, alice.ID)
	if err := start(alice.ID); !errors.Is(err, ErrNotEnoughPlayers) {
		t.Fatalf("want ErrNotEnoughPlayers, got %v", err)
	}

	if _, err := f.join(t, "bob", bob, ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := start(alice.ID); !errors.Is(err, ErrPlayersNotReady) {
		t.Fatalf("want ErrPlayersNotReady, got %v", err)
	}
	if err := start("stranger"); !errors.Is(err, ErrNotAMember) {
		t.Fatalf("want ErrNotAMember, got %v", err)
	}

	f.ready(t, "stranger") // no-op for non-members
	f.ready(t, bob.ID)
	if err := start(bob.ID); err != nil {
		t.Fatalf("start: %v", err)
	}

	v := f.state(t)
	if !v.Room.Started || v.Room.GameState == nil {
		t.Fatalf("room not started: %+v", v.Room)
	}
	gs := v.Room.GameState
	if len(gs.Players) != 2 || gs.Players[0].Username != "alice" || gs.Players[1].Username != "bob" {
		t.Fatalf("game seats not aligned with join order: %+v", gs.Players)
	}
	if err := start(bob.ID); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("want ErrAlreadyStarted, got %v", err)
	}
}

func TestRoom_ActionBroadcastsOnlyAcceptedCommands(t *testing.T) {
	f := newFixture(t, 4, "", time.Minute)
	alice, bob, aliceOut, bobOut := f.startTwoPlayer(t)

	if err := f.roll(t, bob.ID, 1); !errors.Is(err, engine.ErrNotYourTurn) {
		t.Fatalf("want ErrNotYourTurn, got %v", err)
	}
	if err := f.roll(t, alice.ID, 2); !errors.Is(err, engine.ErrMustRollOneFirst) {
		t.Fatalf("want ErrMustRollOneFirst, got %v", err)
	}
	recvNoMsg(t, aliceOut, 50*time.Millisecond)

	if err := f.roll(t, alice.ID, 1); err != nil {
		t.Fatalf("roll: %v", err)
	}
	for _, ch := range []chan protocol.ServerMessage{aliceOut, bobOut} {
		msg := recvType(t, ch, protocol.TypeGameStateUpdated)
		if msg.GameState.CurrentPlayerIndex != 1 || !msg.GameState.Players[0].Cells[0].IsActive {
			t.Fatalf("unexpected state %+v", msg.GameState)
		}
	}

	if err := f.call(t, func(reply chan error) Msg {
		return Action{ConnID: "stranger", Cmd: engine.Command{Type: engine.CmdRoll, Value: 1}, Reply: reply}
	}); !errors.Is(err, ErrNotAMember) {
		t.Fatalf("want ErrNotAMember, got %v", err)
	}
}

func TestRoom_ActionBeforeStart(t *testing.T) {
	f := newFixture(t, 4, "", time.Minute)
	alice, _ := newConn("c1")
	if _, err := f.join(t, "alice", alice, ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := f.roll(t, alice.ID, 1); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("want ErrNotStarted, got %v", err)
	}
}

// Concurrent rolls for the same turn are serialized: exactly one lands.
func TestRoom_ConcurrentRollsAreSerialized(t *testing.T) {
	f := newFixture(t, 4, "", time.Minute)
	alice, _, _, _ := f.startTwoPlayer(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err, askErr := Ask(context.Background(), f.room, func(reply chan error) Msg {
				return Action{ConnID: alice.ID, Cmd: engine.Command{Type: engine.CmdRoll, Value: 1}, Reply: reply}
			})
			if askErr == nil && err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("want exactly one accepted roll, got %d", accepted)
	}
	if gs := f.state(t).Room.GameState; gs.CurrentPlayerIndex != 1 || gs.Players[0].Cells[0].Stage != 1 {
		t.Fatalf("unexpected state %+v", gs)
	}
}

func TestRoom_DisconnectAndRejoinMidMatch(t *testing.T) {
	f := newFixture(t, 4, "", time.Minute)
	alice, bob, aliceOut, _ := f.startTwoPlayer(t)
	if err := f.roll(t, alice.ID, 1); err != nil {
		t.Fatalf("roll: %v", err)
	}
	before := f.state(t).Room.GameState

	gone, err := Ask(context.Background(), f.room, func(reply chan bool) Msg {
		return Disconnect{ConnID: bob.ID, Reply: reply}
	})
	if err != nil || !gone {
		t.Fatalf("disconnect: %v %v", gone, err)
	}
	recvType(t, aliceOut, protocol.TypeGameStateUpdated)
	left := recvType(t, aliceOut, protocol.TypePlayerLeft)
	if left.Username != "bob" || len(left.Room.Players) != 2 || left.Room.Players[1].Connected {
		t.Fatalf("seat should be kept but disconnected: %+v", left.Room.Players)
	}

	again, _ := Ask(context.Background(), f.room, func(reply chan bool) Msg {
		return Disconnect{ConnID: bob.ID, Reply: reply}
	})
	if again {
		t.Fatalf("a dropped connection must not match twice")
	}

	bob2, bob2Out := newConn("c-bob-2")
	res, err := Ask(context.Background(), f.room, func(reply chan Result) Msg {
		return Rejoin{Username: "bob", Conn: bob2, Reply: reply}
	})
	if err != nil || res.Err != nil {
		t.Fatalf("rejoin: %v %v", err, res.Err)
	}

	msg := recvType(t, bob2Out, protocol.TypeRejoinSuccess)
	if !reflect.DeepEqual(msg.Room.GameState, before) {
		t.Fatalf("rejoin returned a different game state")
	}
	wantLog, _ := json.Marshal(before.GameLog)
	gotLog, _ := json.Marshal(msg.Room.GameState.GameLog)
	if string(wantLog) != string(gotLog) {
		t.Fatalf("game log differs after rejoin:\n%s\n%s", wantLog, gotLog)
	}
	if rejoined := recvType(t, aliceOut, protocol.TypePlayerRejoined); rejoined.Username != "bob" {
		t.Fatalf("unexpected %+v", rejoined)
	}

	s, _ := f.registry.Lookup("bob")
	if s.ConnID != "c-bob-2" {
		t.Fatalf("registry not rebound: %+v", s)
	}
	if err := f.roll(t, bob2.ID, 1); err != nil {
		t.Fatalf("rejoined player should be able to act: %v", err)
	}
}

func TestRoom_RejoinUnknownSeatInStartedRoom(t *testing.T) {
	f := newFixture(t, 4, "", time.Minute)
	f.startTwoPlayer(t)

	c, _ := newConn("c9")
	res, err := Ask(context.Background(), f.room, func(reply chan Result) Msg {
		return Rejoin{Username: "mallory", Conn: c, Reply: reply}
	})
	if err != nil || !errors.Is(res.Err, ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v %v", err, res.Err)
	}
}

func TestRoom_LobbyGraceWindowAllowsRejoin(t *testing.T) {
	f := newFixture(t, 4, "", 150*time.Millisecond)
	alice, _ := newConn("c1")
	if _, err := f.join(t, "alice", alice, ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	if gone, _ := Ask(context.Background(), f.room, func(reply chan bool) Msg {
		return Disconnect{ConnID: alice.ID, Reply: reply}
	}); !gone {
		t.Fatalf("disconnect should match")
	}
	if v := f.state(t); len(v.Room.Players) != 0 || v.Closing {
		t.Fatalf("lobby seat should be freed but room kept: %+v", v)
	}

	alice2, alice2Out := newConn("c1b")
	res, err := Ask(context.Background(), f.room, func(reply chan Result) Msg {
		return Rejoin{Username: "alice", Conn: alice2, Reply: reply}
	})
	if err != nil || res.Err != nil {
		t.Fatalf("rejoin within grace: %v %v", err, res.Err)
	}
	recvType(t, alice2Out, protocol.TypeRejoinSuccess)

	select {
	case <-f.closed:
		t.Fatalf("room closed despite rejoin")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestRoom_LobbyRejoinWhileOthersStay(t *testing.T) {
	f := newFixture(t, 2, "", time.Minute)
	alice, _ := newConn("c1")
	bob, bobOut := newConn("c2")
	for name, c := range map[string]Conn{"alice": alice, "bob": bob} {
		if _, err := f.join(t, name, c, ""); err != nil {
			t.Fatalf("join %s: %v", name, err)
		}
	}

	if gone, _ := Ask(context.Background(), f.room, func(reply chan bool) Msg {
		return Disconnect{ConnID: alice.ID, Reply: reply}
	}); !gone {
		t.Fatalf("disconnect should match")
	}
	if v := f.state(t); len(v.Room.Players) != 1 {
		t.Fatalf("lobby seat should be freed: %+v", v.Room.Players)
	}

	// no grace is running since bob is still here; the seat comes back anyway
	alice2, alice2Out := newConn("c1b")
	res, err := Ask(context.Background(), f.room, func(reply chan Result) Msg {
		return Rejoin{Username: "alice", Conn: alice2, Reply: reply}
	})
	if err != nil || res.Err != nil {
		t.Fatalf("rejoin: %v %v", err, res.Err)
	}
	recvType(t, alice2Out, protocol.TypeRejoinSuccess)
	for {
		if msg := recvMsg(t, bobOut, wait); msg.Type == protocol.TypePlayerRejoined {
			break
		}
	}
	if v := f.state(t); len(v.Room.Players) != 2 || v.Connected != 2 {
		t.Fatalf("want both seats back: %+v", v)
	}

	// once the lobby fills up again the dropped seat cannot return
	if gone, _ := Ask(context.Background(), f.room, func(reply chan bool) Msg {
		return Disconnect{ConnID: alice2.ID, Reply: reply}
	}); !gone {
		t.Fatalf("disconnect should match")
	}
	carol, _ := newConn("c3")
	if _, err := f.join(t, "carol", carol, ""); err != nil {
		t.Fatalf("join carol: %v", err)
	}
	alice3, _ := newConn("c1c")
	res, err = Ask(context.Background(), f.room, func(reply chan Result) Msg {
		return Rejoin{Username: "alice", Conn: alice3, Reply: reply}
	})
	if err != nil || !errors.Is(res.Err, ErrRoomFull) {
		t.Fatalf("want ErrRoomFull, got %v %v", err, res.Err)
	}
}

func TestRoom_ClosesAfterGraceWhenEmpty(t *testing.T) {
	f := newFixture(t, 4, "", 50*time.Millisecond)
	alice, bob, _, _ := f.startTwoPlayer(t)

	for _, c := range []Conn{alice, bob} {
		if gone, _ := Ask(context.Background(), f.room, func(reply chan bool) Msg {
			return Disconnect{ConnID: c.ID, Reply: reply}
		}); !gone {
			t.Fatalf("disconnect %s should match", c.ID)
		}
	}

	select {
	case r := <-f.closed:
		if r != f.room {
			t.Fatalf("onClose got the wrong room")
		}
	case <-time.After(time.Second):
		t.Fatalf("room did not close after grace period")
	}
	<-f.room.Done()

	c, _ := newConn("c3")
	if _, err := Ask(context.Background(), f.room, func(reply chan Result) Msg {
		return Rejoin{Username: "alice", Conn: c, Reply: reply}
	}); !errors.Is(err, ErrRoomClosed) {
		t.Fatalf("want ErrRoomClosed, got %v", err)
	}
}

func TestRoom_LeaveMidMatchForfeits(t *testing.T) {
	f := newFixture(t, 4, "", time.Minute)
	_, bob, aliceOut, _ := f.startTwoPlayer(t)

	if err := f.call(t, func(reply chan error) Msg { return Leave{ConnID: bob.ID, Reply: reply} }); err != nil {
		t.Fatalf("leave: %v", err)
	}

	recvType(t, aliceOut, protocol.TypePlayerLeft)
	updated := recvType(t, aliceOut, protocol.TypeGameStateUpdated)
	if !updated.GameState.Players[1].Eliminated {
		t.Fatalf("leaver should be eliminated: %+v", updated.GameState.Players[1])
	}
	ended := recvType(t, aliceOut, protocol.TypeGameEnded)
	if ended.History.Winner != "alice" {
		t.Fatalf("want alice to win by forfeit, got %+v", ended.History)
	}
	if _, ok := f.registry.Lookup("bob"); ok {
		t.Fatalf("explicit leave should drop the session")
	}
}

func TestRoom_LeaveAfterMatchEndedIsQuiet(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	f := newLoggedFixture(t, 4, "", time.Minute, zap.New(core))
	alice, bob, aliceOut, _ := f.startTwoPlayer(t)

	if err := f.call(t, func(reply chan error) Msg { return Leave{ConnID: bob.ID, Reply: reply} }); err != nil {
		t.Fatalf("bob leave: %v", err)
	}
	for {
		if msg := recvMsg(t, aliceOut, wait); msg.Type == protocol.TypeGameEnded {
			break
		}
	}

	if err := f.call(t, func(reply chan error) Msg { return Leave{ConnID: alice.ID, Reply: reply} }); err != nil {
		t.Fatalf("alice leave: %v", err)
	}
	if n := logs.FilterMessage("forfeit failed").Len(); n != 0 {
		t.Fatalf("leaving a finished match logged %d forfeit failures", n)
	}
	if _, ok := f.registry.Lookup("alice"); ok {
		t.Fatalf("explicit leave should drop the session")
	}
}

func TestRoom_EmoteSkipsSender(t *testing.T) {
	f := newFixture(t, 4, "", time.Minute)
	alice, _, aliceOut, bobOut := f.startTwoPlayer(t)

	if err := f.call(t, func(reply chan error) Msg {
		return Emote{ConnID: alice.ID, Emote: "GG!", Reply: reply}
	}); err != nil {
		t.Fatalf("emote: %v", err)
	}
	msg := recvType(t, bobOut, protocol.TypeEmote)
	if msg.Username != "alice" || msg.Emote != "GG!" {
		t.Fatalf("unexpected emote %+v", msg)
	}
	recvNoMsg(t, aliceOut, 50*time.Millisecond)
}

func TestRoom_FullOutboxDropsInsteadOfBlocking(t *testing.T) {
	f := newFixture(t, 4, "", time.Minute)
	slow := make(chan protocol.ServerMessage) // unbuffered, never read
	if _, err := f.join(t, "alice", Conn{ID: "c1", Outbox: slow}, ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	bob, _ := newConn("c2")
	if _, err := f.join(t, "bob", bob, ""); err != nil {
		t.Fatalf("join: %v", err)
	}

	if got := len(f.state(t).Room.Players); got != 2 {
		t.Fatalf("want 2 players, got %d", got)
	}
}
