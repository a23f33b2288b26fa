package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balootlabs/baloot/internal/botjob"
	"github.com/balootlabs/baloot/internal/botstrat"
	"github.com/balootlabs/baloot/internal/match"
	"github.com/balootlabs/baloot/internal/ratelimit"
	"github.com/balootlabs/baloot/internal/registry"
	"github.com/balootlabs/baloot/internal/room"
	"github.com/balootlabs/baloot/internal/session"
)

type testEnv struct {
	ts       *httptest.Server
	server   *Server
	registry *registry.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	nop := zerolog.Nop()
	reg := registry.New(nop, 10)
	sessions := session.NewStore(nop, nil, time.Hour)
	tokens := session.NewTokenManager("test-secret", time.Hour)
	limiter := ratelimit.New(nop, nil, nil)
	bots := botjob.NewOrchestrator(nop, nil, botstrat.Medium, time.Second)

	cfg := DefaultConfig()
	svc := NewService(ServiceOptions{
		Logger:   nop,
		Sessions: sessions,
		Tokens:   tokens,
		Registry: reg,
		Limiter:  limiter,
		Bots:     bots,
		Defaults: cfg.RoomSettings(),
		Grace:    cfg.Grace(),
	})

	srv := NewServer(cfg, log.New(io.Discard), svc)
	svc.SetMatchmaker(match.New(match.Options{
		Logger:         nop,
		Registry:       reg,
		Notifier:       srv,
		Seed:           1,
		NewRoomOptions: svc.RoomOptions,
	}))

	srv.StartBackground()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
		reg.CloseAll()
	})
	return &testEnv{ts: ts, server: srv, registry: reg}
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
}

func (e *testEnv) dial(t *testing.T) *wsClient {
	t.Helper()
	url := strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &wsClient{t: t, conn: conn}
}

func (c *wsClient) send(messageType MessageType, data interface{}) {
	c.t.Helper()
	msg, err := NewMessage(messageType, data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(msg))
}

// expect reads messages until one of the wanted type arrives, skipping
// everything else (frames keep flowing during the whole exchange).
func (c *wsClient) expect(messageType MessageType) json.RawMessage {
	c.t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		_ = c.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.t.Fatalf("reading for %s: %v", messageType, err)
		}
		if msg.Type == messageType {
			return msg.Data
		}
	}
	c.t.Fatalf("no %s message arrived", messageType)
	return nil
}

// expectFrame reads game updates until cond is satisfied.
func (c *wsClient) expectFrame(cond func(room.Frame) bool) room.Frame {
	c.t.Helper()
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		raw := c.expect(MessageTypeGameUpdate)
		var frame room.Frame
		require.NoError(c.t, json.Unmarshal(raw, &frame))
		if cond(frame) {
			return frame
		}
	}
	c.t.Fatal("no matching frame arrived")
	return room.Frame{}
}

func (c *wsClient) auth(name string) AuthResponseData {
	c.t.Helper()
	c.send(MessageTypeAuth, AuthData{Name: name})
	var resp AuthResponseData
	require.NoError(c.t, json.Unmarshal(c.expect(MessageTypeAuthResponse), &resp))
	require.True(c.t, resp.Success)
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthIssuesSessionAndToken(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)

	resp := c.auth("  Omar\x00\x01  ")
	assert.NotEmpty(t, resp.SessionID)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "Omar", resp.Name)
	assert.Equal(t, DefaultElo, resp.Elo)
	assert.Empty(t, resp.RoomID)
}

func TestRequestsBeforeAuthAreRejected(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)

	c.send(MessageTypeCreateRoom, CreateRoomData{})
	var errData ErrorData
	require.NoError(t, json.Unmarshal(c.expect(MessageTypeError), &errData))
	assert.Equal(t, "SESSION_UNKNOWN", errData.Code)
}

func TestCreateRoomWithBotsStartsGame(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)
	c.auth("host")

	c.send(MessageTypeCreateRoom, CreateRoomData{})
	var created RoomCreatedData
	require.NoError(t, json.Unmarshal(c.expect(MessageTypeRoomCreated), &created))
	assert.NotEmpty(t, created.RoomID)

	for i := 0; i < 3; i++ {
		c.send(MessageTypeAddBot, struct{}{})
	}

	frame := c.expectFrame(func(f room.Frame) bool {
		return f.Snapshot.Phase == "BIDDING"
	})
	assert.Equal(t, created.RoomID, frame.RoomID)
	assert.Equal(t, created.Seat, frame.Snapshot.Viewer)
}

func TestAddBotTargetsSeat(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)
	c.auth("host")

	c.send(MessageTypeCreateRoom, CreateRoomData{})
	c.expect(MessageTypeRoomCreated)

	seat := 2
	c.send(MessageTypeAddBot, AddBotData{Seat: &seat, Difficulty: "hard"})
	frame := c.expectFrame(func(f room.Frame) bool { return f.Snapshot.Players[2].IsBot })
	assert.Equal(t, "hard", frame.Snapshot.Players[2].Difficulty)
	assert.False(t, frame.Snapshot.Players[1].IsBot, "seat 1 stays free")

	c.send(MessageTypeAddBot, AddBotData{Seat: &seat})
	var errData ErrorData
	require.NoError(t, json.Unmarshal(c.expect(MessageTypeError), &errData))
	assert.Equal(t, "ROOM_FULL", errData.Code)
}

func TestJoinUnknownRoomFails(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)
	c.auth("guest")

	c.send(MessageTypeJoinRoom, JoinRoomData{RoomID: "nope"})
	var errData ErrorData
	require.NoError(t, json.Unmarshal(c.expect(MessageTypeError), &errData))
	assert.Equal(t, "ROOM_GONE", errData.Code)
}

func TestMalformedActionIsRejected(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)
	c.auth("host")

	c.send(MessageTypeCreateRoom, CreateRoomData{})
	c.expect(MessageTypeRoomCreated)

	c.send(MessageTypeGameAction, GameActionData{Kind: "teleport"})
	var errData ErrorData
	require.NoError(t, json.Unmarshal(c.expect(MessageTypeError), &errData))
	assert.Equal(t, "INVALID_PAYLOAD", errData.Code)
}

func TestChatReachesRoomMates(t *testing.T) {
	env := newTestEnv(t)
	host := env.dial(t)
	host.auth("host")

	host.send(MessageTypeCreateRoom, CreateRoomData{})
	var created RoomCreatedData
	require.NoError(t, json.Unmarshal(host.expect(MessageTypeRoomCreated), &created))

	guest := env.dial(t)
	guest.auth("guest")
	guest.send(MessageTypeJoinRoom, JoinRoomData{RoomID: created.RoomID})
	guest.expect(MessageTypeRoomJoined)

	host.send(MessageTypeChat, ChatData{Text: "yalla"})

	var chat ChatMessageData
	require.NoError(t, json.Unmarshal(guest.expect(MessageTypeChatMessage), &chat))
	assert.Equal(t, "host", chat.From)
	assert.Equal(t, "yalla", chat.Text)
}

func TestChatRateLimit(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)
	c.auth("host")
	c.send(MessageTypeCreateRoom, CreateRoomData{})
	c.expect(MessageTypeRoomCreated)

	for i := 0; i < 25; i++ {
		c.send(MessageTypeChat, ChatData{Text: fmt.Sprintf("spam %d", i)})
	}

	var errData ErrorData
	require.NoError(t, json.Unmarshal(c.expect(MessageTypeError), &errData))
	assert.Equal(t, "RATE_LIMITED", errData.Code)
}

func TestQueueFormsMatch(t *testing.T) {
	env := newTestEnv(t)

	clients := make([]*wsClient, 4)
	for i := range clients {
		clients[i] = env.dial(t)
		clients[i].auth(fmt.Sprintf("player%d", i))
	}
	for _, c := range clients {
		c.send(MessageTypeQueueJoin, struct{}{})
	}

	seats := make(map[int]bool)
	roomID := ""
	for _, c := range clients {
		var found MatchFoundData
		require.NoError(t, json.Unmarshal(c.expect(MessageTypeMatchFound), &found))
		if roomID == "" {
			roomID = found.RoomID
		}
		assert.Equal(t, roomID, found.RoomID)
		seats[int(found.Seat)] = true
	}
	assert.Len(t, seats, 4)
	assert.Equal(t, 1, env.registry.Count())

	// Everyone gets frames; the table fills and starts.
	clients[0].expectFrame(func(f room.Frame) bool {
		return f.Snapshot.Phase == "BIDDING"
	})
}

func TestQueueAcksReportSize(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)
	c.auth("solo")

	c.send(MessageTypeQueueJoin, struct{}{})
	var status QueueStatusData
	require.NoError(t, json.Unmarshal(c.expect(MessageTypeQueueStatus), &status))
	assert.True(t, status.Success)
	assert.Equal(t, 1, status.QueueSize)

	c.send(MessageTypeQueueLeave, struct{}{})
	require.NoError(t, json.Unmarshal(c.expect(MessageTypeQueueStatus), &status))
	assert.True(t, status.Success)
	assert.Equal(t, 0, status.QueueSize)
}

func TestQueueJoinEloOverrideSeparatesTiers(t *testing.T) {
	env := newTestEnv(t)

	clients := make([]*wsClient, 4)
	for i := range clients {
		clients[i] = env.dial(t)
		clients[i].auth(fmt.Sprintf("ranked%d", i))
	}

	// Three queue at the default rating, the fourth as gold. Two tiers
	// apart, so no table forms until the queue widens.
	for _, c := range clients[:3] {
		c.send(MessageTypeQueueJoin, struct{}{})
		c.expect(MessageTypeQueueStatus)
	}
	clients[3].send(MessageTypeQueueJoin, QueueJoinData{Elo: 1600})

	var status QueueStatusData
	require.NoError(t, json.Unmarshal(clients[3].expect(MessageTypeQueueStatus), &status))
	assert.True(t, status.Success)
	assert.Equal(t, 4, status.QueueSize)
	assert.Equal(t, 0, env.registry.Count())
}

func TestDisconnectWhileQueuedRemovesEntry(t *testing.T) {
	env := newTestEnv(t)

	c := env.dial(t)
	c.auth("queued")
	c.send(MessageTypeQueueJoin, struct{}{})
	var status QueueStatusData
	require.NoError(t, json.Unmarshal(c.expect(MessageTypeQueueStatus), &status))
	require.Equal(t, 1, status.QueueSize)

	c.conn.Close()

	// The unregister path runs async; poll until the entry is gone.
	other := env.dial(t)
	other.auth("checker")
	deadline := time.Now().Add(5 * time.Second)
	for {
		other.send(MessageTypeQueueStatus, struct{}{})
		var st QueueStatusData
		require.NoError(t, json.Unmarshal(other.expect(MessageTypeQueueStatus), &st))
		if st.QueueSize == 0 {
			break
		}
		require.True(t, time.Now().Before(deadline), "queue entry still present after disconnect")
		time.Sleep(50 * time.Millisecond)
	}
}

func TestOutboundSequenceIncreases(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)

	c.send(MessageTypeAuth, AuthData{Name: "seqcheck"})
	c.send(MessageTypeQueueJoin, struct{}{})
	c.send(MessageTypeQueueStatus, struct{}{})

	var last uint64
	for i := 0; i < 3; i++ {
		_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg Message
		require.NoError(t, c.conn.ReadJSON(&msg))
		assert.Greater(t, msg.Seq, last, "outbound seq must increase")
		last = msg.Seq
	}
}

func TestReconnectWithTokenResumesRoom(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)
	resp := c.auth("host")

	c.send(MessageTypeCreateRoom, CreateRoomData{})
	var created RoomCreatedData
	require.NoError(t, json.Unmarshal(c.expect(MessageTypeRoomCreated), &created))
	for i := 0; i < 3; i++ {
		c.send(MessageTypeAddBot, struct{}{})
	}
	c.expectFrame(func(f room.Frame) bool { return f.Snapshot.Phase == "BIDDING" })

	c.conn.Close()

	c2 := env.dial(t)
	c2.send(MessageTypeAuth, AuthData{Token: resp.Token})
	var resumed AuthResponseData
	require.NoError(t, json.Unmarshal(c2.expect(MessageTypeAuthResponse), &resumed))
	assert.Equal(t, resp.SessionID, resumed.SessionID)
	assert.Equal(t, created.RoomID, resumed.RoomID)

	frame := c2.expectFrame(func(f room.Frame) bool { return f.RoomID == created.RoomID })
	assert.Equal(t, created.Seat, frame.Snapshot.Viewer)
}

func TestAuthAfterRoomDiesReportsRoomGone(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)
	resp := c.auth("host")

	c.send(MessageTypeCreateRoom, CreateRoomData{})
	var created RoomCreatedData
	require.NoError(t, json.Unmarshal(c.expect(MessageTypeRoomCreated), &created))

	rm, ok := env.registry.Get(created.RoomID)
	require.True(t, ok)
	rm.Close()
	require.Eventually(t, func() bool { return env.registry.Count() == 0 },
		5*time.Second, 10*time.Millisecond)

	c2 := env.dial(t)
	c2.send(MessageTypeAuth, AuthData{Token: resp.Token})
	var resumed AuthResponseData
	require.NoError(t, json.Unmarshal(c2.expect(MessageTypeAuthResponse), &resumed))
	assert.Equal(t, resp.SessionID, resumed.SessionID, "session survives its room")
	assert.Empty(t, resumed.RoomID)

	var errData ErrorData
	require.NoError(t, json.Unmarshal(c2.expect(MessageTypeError), &errData))
	assert.Equal(t, "ROOM_GONE", errData.Code)
}

func TestLeaveRoomDetaches(t *testing.T) {
	env := newTestEnv(t)
	c := env.dial(t)
	c.auth("host")

	c.send(MessageTypeCreateRoom, CreateRoomData{})
	c.expect(MessageTypeRoomCreated)

	c.send(MessageTypeLeaveRoom, struct{}{})
	c.send(MessageTypeChat, ChatData{Text: "anyone?"})
	var errData ErrorData
	require.NoError(t, json.Unmarshal(c.expect(MessageTypeError), &errData))
	assert.Equal(t, "NOT_SEATED", errData.Code)
}
