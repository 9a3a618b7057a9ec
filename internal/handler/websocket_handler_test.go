package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"shutter-service/internal/model"
	"shutter-service/internal/protocol/protocoltest"
)

type wsMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	RequestID string          `json:"request_id"`
}

func dialSession(t *testing.T, f *apiFixture) *websocket.Conn {
	t.Helper()
	logger := zaptest.NewLogger(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := NewEventBus(logger)
	ws := NewWebSocketHandler(f.session, bus, logger)
	ws.RegisterRoutes(f.router)
	ws.Start(ctx)
	go bus.Follow(ctx, f.session, f.prefs)

	server := httptest.NewServer(f.router)
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws/session", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until match accepts one
func readUntil(t *testing.T, conn *websocket.Conn, match func(wsMessage) bool) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func TestWebSocketSnapshotAndCommands(t *testing.T) {
	f := newAPIFixture(t)
	conn := dialSession(t, f)

	snapshot := readUntil(t, conn, func(m wsMessage) bool { return m.Type == MessageSnapshot })
	var view SessionView
	require.NoError(t, json.Unmarshal(snapshot.Data, &view))
	assert.Equal(t, model.ConnectionDisconnected, view.Connection.Status)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "ping", RequestID: "p1"}))
	pong := readUntil(t, conn, func(m wsMessage) bool { return m.Type == MessagePong })
	assert.Equal(t, "p1", pong.RequestID)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "command", Command: "connect", RequestID: "c1"}))
	connected := readUntil(t, conn, func(m wsMessage) bool {
		if m.Type != EventConnectionState {
			return false
		}
		var state model.ConnectionState
		require.NoError(t, json.Unmarshal(m.Data, &state))
		return state.Status == model.ConnectionConnected
	})
	assert.Equal(t, EventConnectionState, connected.Type)
	assert.True(t, f.session.ConnectionState().IsConnected())

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "command", Command: "measure", Data: json.RawMessage(`{"reference_speed":"1/3"}`), RequestID: "m1"}))
	reply := readUntil(t, conn, func(m wsMessage) bool { return m.Type == MessageCommandResponse && m.RequestID == "m1" })
	var result CommandResult
	require.NoError(t, json.Unmarshal(reply.Data, &result))
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "unknown reference shutter speed")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "command", Command: "explode", RequestID: "x1"}))
	errMsg := readUntil(t, conn, func(m wsMessage) bool { return m.Type == MessageError })
	assert.Equal(t, "x1", errMsg.RequestID)
}

func TestWebSocketStreamsMeasurement(t *testing.T) {
	f := newAPIFixture(t)
	conn := dialSession(t, f)
	readUntil(t, conn, func(m wsMessage) bool { return m.Type == MessageSnapshot })

	require.NoError(t, f.session.Connect(context.Background()))
	f.fake.Queue(protocoltest.Chunk("Display Ready\n"), protocoltest.Chunk(frameLine))

	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type:    "command",
		Command: "measure",
		Data:    json.RawMessage(`{"reference_speed":"1/500"}`),
	}))

	success := readUntil(t, conn, func(m wsMessage) bool {
		if m.Type != EventProtocolState {
			return false
		}
		var state ProtocolStateView
		require.NoError(t, json.Unmarshal(m.Data, &state))
		return state.Status == model.ProtocolSuccess
	})

	var state ProtocolStateView
	require.NoError(t, json.Unmarshal(success.Data, &state))
	require.NotNil(t, state.Result)
	assert.Equal(t, -76.0, state.Result.Center.DeviationPercent)
}

func TestWebSocketStreamsThresholdChanges(t *testing.T) {
	f := newAPIFixture(t)
	conn := dialSession(t, f)
	readUntil(t, conn, func(m wsMessage) bool { return m.Type == MessageSnapshot })

	w, _ := f.do(t, http.MethodPut, "/api/v1/settings/thresholds", map[string]float64{"warning": 3})
	require.Equal(t, http.StatusOK, w.Code)

	readUntil(t, conn, func(m wsMessage) bool {
		if m.Type != EventThresholds {
			return false
		}
		var thresholds model.DeviationThresholds
		require.NoError(t, json.Unmarshal(m.Data, &thresholds))
		return thresholds == model.DeviationThresholds{Warning: 3, Error: 10}
	})
}

func TestWebSocketStats(t *testing.T) {
	f := newAPIFixture(t)
	conn := dialSession(t, f)
	readUntil(t, conn, func(m wsMessage) bool { return m.Type == MessageSnapshot })

	w, env := f.do(t, http.MethodGet, "/ws/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeData[ConnectionStats](t, env)
	assert.Equal(t, 1, stats.TotalConnections)
	require.Len(t, stats.Clients, 1)
	assert.NotEmpty(t, stats.Clients[0].ID)
}

func TestEventBusSubscribeAndCancel(t *testing.T) {
	bus := NewEventBus(zaptest.NewLogger(t))

	events, cancel := bus.Subscribe()
	bus.Publish(Event{Type: EventConnectionState})
	assert.Equal(t, EventConnectionState, (<-events).Type)

	cancel()
	cancel()
	_, ok := <-events
	assert.False(t, ok)

	// no subscribers left
	bus.Publish(Event{Type: EventProtocolState})
}

func TestConnectionManagerSendAfterUnregister(t *testing.T) {
	cm := NewConnectionManager()
	client := &Client{ID: "a", Send: make(chan []byte, 1)}

	cm.Register(client)
	assert.True(t, cm.Send(client, []byte("one")))
	assert.False(t, cm.Send(client, []byte("two")), "queue is full")
	assert.Equal(t, []string{"a"}, cm.Broadcast([]byte("three")))
	assert.Equal(t, 1, cm.GetStats().TotalConnections)

	cm.Unregister(client)
	cm.Unregister(client)
	assert.False(t, cm.Send(client, []byte("four")))
	assert.Zero(t, cm.GetStats().TotalConnections)
}
