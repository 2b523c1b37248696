package realtime

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	srv := NewServer(hub, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn1 := dialWS(t, ts)
	conn2 := dialWS(t, ts)

	// Every connection is greeted first.
	assert.Equal(t, "welcome", readMessage(t, conn1)["type"])
	assert.Equal(t, "welcome", readMessage(t, conn2)["type"])

	hub.Broadcast([]byte(`{"type":"track_voted","eventId":"ev1"}`))

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		msg := readMessage(t, conn)
		assert.Equal(t, "track_voted", msg["type"])
		assert.Equal(t, "ev1", msg["eventId"])
	}
}

func TestHubDropsDisconnectedClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	srv := NewServer(hub, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	conn1 := dialWS(t, ts)
	conn2 := dialWS(t, ts)
	assert.Equal(t, "welcome", readMessage(t, conn1)["type"])
	assert.Equal(t, "welcome", readMessage(t, conn2)["type"])

	require.NoError(t, conn1.Close())
	// Give the hub a moment to unregister the closed connection.
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast([]byte(`{"type":"playback"}`))
	assert.Equal(t, "playback", readMessage(t, conn2)["type"])
}
