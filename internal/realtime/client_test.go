package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/protego/threat-monitor/internal/config"
)

func newWSServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handler := NewWSHandler(hub, config.WebSocketConfig{}, zap.NewNop())
	router := gin.New()
	router.GET("/ws", handler.Handle)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketReceivesPublishedEvents(t *testing.T) {
	hub := newTestHub(config.RealtimeConfig{SendBufferSize: 16})
	server := newWSServer(t, hub)

	conn := dial(t, server)

	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	hub.Publish(MessageTypeThreat, map[string]string{"id": "e1", "severity": "high"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, MessageTypeThreat, env.Type)
	assert.Equal(t, uint64(1), env.Seq)

	data, ok := env.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "e1", data["id"])
}

func TestWebSocketDisconnectUnsubscribes(t *testing.T) {
	hub := newTestHub(config.RealtimeConfig{SendBufferSize: 16})
	server := newWSServer(t, hub)

	conn := dial(t, server)
	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketPlainHTTPRequestRejected(t *testing.T) {
	hub := newTestHub(config.RealtimeConfig{SendBufferSize: 16})
	server := newWSServer(t, hub)

	// No upgrade headers: the upgrader writes the error response itself.
	resp, err := http.Get(server.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, hub.SubscriberCount())
}

func TestWebSocketRejectsOverLimit(t *testing.T) {
	hub := newTestHub(config.RealtimeConfig{SendBufferSize: 16, MaxConnections: 1})
	server := newWSServer(t, hub)

	first := dial(t, server)
	defer first.Close()
	require.Eventually(t, func() bool {
		return hub.SubscriberCount() == 1
	}, time.Second, 10*time.Millisecond)

	// The second connection upgrades but is immediately closed with a
	// try-again-later close frame.
	second := dial(t, server)
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := second.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater))

	assert.Equal(t, 1, hub.SubscriberCount())
}
