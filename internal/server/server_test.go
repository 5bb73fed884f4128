package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilehall/tilehall/internal/fabric"
	"github.com/tilehall/tilehall/internal/room"
	"github.com/tilehall/tilehall/internal/store"
)

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	registry := room.NewRegistry(store.NewMemory(), fabric.NewHub(), quartz.NewReal(), testLogger(), room.DefaultOptions())
	t.Cleanup(registry.Close)
	gateway := NewGateway(registry, quartz.NewReal(), testLogger(), 60*time.Second)

	s := NewServer("", gateway, testLogger())
	go s.run()
	t.Cleanup(func() { _ = s.Stop() })

	ts := httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	t.Cleanup(ts.Close)
	return s, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *wsClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(msgType MessageType, data interface{}) {
	c.t.Helper()
	msg, err := NewMessage(msgType, data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

// next reads messages until one of the wanted type arrives, skipping
// interleaved broadcasts.
func (c *wsClient) next(want MessageType) *Message {
	c.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg Message
		require.NoError(c.t, c.conn.ReadJSON(&msg))
		if msg.Type == want {
			return &msg
		}
	}
	c.t.Fatalf("no %s message before deadline", want)
	return nil
}

func (c *wsClient) join(roomID, nickname, playerID string) JoinedRoomData {
	c.t.Helper()
	c.send(MessageTypeJoinRoom, JoinRoomData{RoomID: roomID, Nickname: nickname, PlayerID: playerID})
	msg := c.next(MessageTypeJoinedRoom)
	var joined JoinedRoomData
	require.NoError(c.t, unmarshalData(msg, &joined))
	return joined
}

func unmarshalData(msg *Message, v interface{}) error {
	return json.Unmarshal(msg.Data, v)
}

// nextStateWhere reads gameState messages until one satisfies cond.
func (c *wsClient) nextStateWhere(cond func(stateView) bool) stateView {
	c.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		msg := c.next(MessageTypeGameState)
		var snap stateView
		require.NoError(c.t, unmarshalData(msg, &snap))
		if cond(snap) {
			return snap
		}
	}
	c.t.Fatal("no matching gameState before deadline")
	return stateView{}
}

func TestJoinRoomIssuesPlayerID(t *testing.T) {
	_, url := startTestServer(t)
	client := dial(t, url)

	joined := client.join("lounge", "Alice", "")
	assert.Equal(t, "lounge", joined.RoomID)
	assert.Len(t, joined.PlayerID, 26)

	msg := client.next(MessageTypeGameState)
	var snap stateView
	require.NoError(t, unmarshalData(msg, &snap))
	assert.Equal(t, "lobby", snap.Phase)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "Alice", snap.Players[0].Name)
	assert.Equal(t, 1000, snap.Players[0].Tiles)
}

func TestTwoClientsSeeEachOther(t *testing.T) {
	_, url := startTestServer(t)
	alice := dial(t, url)
	bob := dial(t, url)

	alice.join("lounge", "Alice", "")
	bob.join("lounge", "Bob", "")

	// Alice's subscription delivers the post-join broadcast.
	snap := alice.nextStateWhere(func(s stateView) bool { return len(s.Players) == 2 })
	names := []string{snap.Players[0].Name, snap.Players[1].Name}
	assert.Contains(t, names, "Alice")
	assert.Contains(t, names, "Bob")
}

func TestStartGameDealsRedactedCards(t *testing.T) {
	_, url := startTestServer(t)
	alice := dial(t, url)
	bob := dial(t, url)

	joinedAlice := alice.join("lounge", "Alice", "")
	joinedBob := bob.join("lounge", "Bob", "")

	alice.send(MessageTypeStartGame, struct{}{})

	snap := alice.nextStateWhere(func(s stateView) bool { return s.Phase == "preflop" })
	for _, pv := range snap.Players {
		switch pv.ID {
		case joinedAlice.PlayerID:
			assert.Len(t, pv.HoleCards, 2, "own cards must be visible")
		case joinedBob.PlayerID:
			assert.Empty(t, pv.HoleCards, "opponent cards leaked")
		}
	}
	assert.Equal(t, 30, snap.Pot)
}

func TestIntentBeforeJoinRejected(t *testing.T) {
	_, url := startTestServer(t)
	client := dial(t, url)

	client.send(MessageTypeSendIntent, SendIntentData{Type: "CHECK"})
	msg := client.next(MessageTypeError)
	var errData ErrorData
	require.NoError(t, unmarshalData(msg, &errData))
	assert.Equal(t, "not_in_room", errData.Code)
}

func TestOutOfTurnIntentGetsDiagnostic(t *testing.T) {
	_, url := startTestServer(t)
	alice := dial(t, url)
	bob := dial(t, url)

	alice.join("lounge", "Alice", "")
	bob.join("lounge", "Bob", "")
	alice.send(MessageTypeStartGame, struct{}{})

	// Heads-up: Alice (dealer) acts first, so Bob is out of turn.
	bob.nextStateWhere(func(s stateView) bool { return s.Phase == "preflop" })

	bob.send(MessageTypeSendIntent, SendIntentData{Type: "FOLD"})
	msg := bob.next(MessageTypeError)
	var errData ErrorData
	require.NoError(t, unmarshalData(msg, &errData))
	assert.Equal(t, "not_your_turn", errData.Code)
}

func TestUnknownMessageType(t *testing.T) {
	_, url := startTestServer(t)
	client := dial(t, url)

	client.send(MessageType("teleport"), struct{}{})
	msg := client.next(MessageTypeError)
	var errData ErrorData
	require.NoError(t, unmarshalData(msg, &errData))
	assert.Equal(t, "unknown_message_type", errData.Code)
}

// stateView mirrors the snapshot fields the wire tests care about.
type stateView struct {
	RoomID  string `json:"roomId"`
	Phase   string `json:"phase"`
	Pot     int    `json:"pot"`
	Players []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Tiles     int    `json:"tiles"`
		HoleCards []struct {
			Suit int `json:"suit"`
			Rank int `json:"rank"`
		} `json:"holeCards"`
	} `json:"players"`
}
