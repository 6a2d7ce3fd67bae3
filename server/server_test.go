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

	"github.com/wfunc/poolroom/broadcast"
	"github.com/wfunc/poolroom/models"
	"github.com/wfunc/poolroom/monitor"
	"github.com/wfunc/poolroom/network"
	"github.com/wfunc/poolroom/room"
	"github.com/wfunc/poolroom/services"
	"github.com/wfunc/poolroom/session"
	"github.com/wfunc/poolroom/timer"
)

func newTestServer(t *testing.T) (*GameServer, *httptest.Server) {
	t.Helper()
	sessions := session.NewManager()
	mon := monitor.NewMonitor("srvtest")
	timers := timer.NewTimerManager(quartz.NewReal())
	t.Cleanup(timers.Stop)

	svc := services.NewRoomService(
		room.NewRoomManager(),
		sessions,
		broadcast.NewRoomBroadcaster(sessions, func(string, string) { mon.IncBroadcastDropped() }),
		timers,
		mon,
		nil,
		services.Options{DefaultStartingBalance: 500, DisconnectGrace: time.Minute},
	)
	srv := NewGameServer(Options{Mode: "test", SendQueueSize: 32}, svc, sessions, mon)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, ts *httptest.Server) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(msgID uint16, body interface{}) {
	c.t.Helper()
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		require.NoError(c.t, err)
	}
	packet, err := network.Encode(msgID, data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.BinaryMessage, packet))
}

// expect reads until a packet with msgID arrives and decodes it into v.
func (c *client) expect(msgID uint16, v interface{}) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, raw, err := c.conn.ReadMessage()
		require.NoError(c.t, err)
		packet, err := network.Decode(raw)
		require.NoError(c.t, err)
		if packet.MsgID != msgID {
			continue
		}
		if v != nil {
			require.NoError(c.t, json.Unmarshal(packet.Data, v))
		}
		return
	}
}

func TestGameServer_WebSocketRoundTrip(t *testing.T) {
	_, ts := newTestServer(t)

	alice := dial(t, ts)
	alice.send(network.MsgTypeCreateRoom, models.CreateRoomRequest{OwnerName: "Alice"})
	var created models.JoinedResponse
	alice.expect(network.MsgTypeRoomJoined, &created)
	require.True(t, created.Participant.IsOwner)
	assert.Equal(t, int64(500), created.Room.StartingBalance)

	bob := dial(t, ts)
	bob.send(network.MsgTypeJoinRoom, models.JoinRoomRequest{PlayerName: "Bob", RoomCode: created.Room.Code})
	var joined models.JoinedResponse
	bob.expect(network.MsgTypeRoomJoined, &joined)
	assert.Len(t, joined.Room.Participants, 2)

	var ev models.RoomEvent
	alice.expect(network.MsgTypeRoomEvent, &ev)
	assert.Equal(t, models.EventPlayerJoined, ev.Kind)
	assert.Equal(t, "Bob", ev.PlayerName)

	bob.send(network.MsgTypePlaceBid, models.PlaceBidRequest{Amount: 10})
	var rejected models.ErrorResponse
	bob.expect(network.MsgTypeError, &rejected)
	assert.Equal(t, "placeBid", rejected.Action)
	assert.Equal(t, string(room.CodeNotYourTurn), rejected.Code)

	alice.send(network.MsgTypePlaceBid, models.PlaceBidRequest{Amount: 10})
	var state models.RoomSnapshot
	for state.Pool != 10 {
		bob.expect(network.MsgTypeRoomState, &state)
	}
	assert.Equal(t, joined.Participant.ID, state.CurrentTurnID)

	resp, err := http.Get(ts.URL + "/api/rooms/" + created.Room.Code + "/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var views []models.SessionView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&views))
	require.Len(t, views, 2)
	ids := []string{views[0].ParticipantID, views[1].ParticipantID}
	assert.ElementsMatch(t, []string{created.Participant.ID, joined.Participant.ID}, ids)
	assert.NotZero(t, views[0].LastActive)
}

func TestGameServer_MalformedBody(t *testing.T) {
	_, ts := newTestServer(t)
	c := dial(t, ts)

	packet, err := network.Encode(network.MsgTypeJoinRoom, []byte("{not json"))
	require.NoError(t, err)
	require.NoError(t, c.conn.WriteMessage(websocket.BinaryMessage, packet))

	var rejected models.ErrorResponse
	c.expect(network.MsgTypeError, &rejected)
	assert.Equal(t, string(room.CodeInvalidInput), rejected.Code)

	// The connection survives.
	c.send(network.MsgTypeHeartbeat, nil)
	c.expect(network.MsgTypeHeartbeat, nil)
}

func TestGameServer_HTTP(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, 0.0, health["rooms"])

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/4242", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "RoomNotFound")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/4242/sessions", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "srvtest_active_rooms")
}
