package realtime_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/auth"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/models"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/realtime"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type wireFrame struct {
	Event string          `json:"event"`
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data"`
}

func dialTestServer(t *testing.T, server *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	require.NoError(t, err)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame wireFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func newTestWebSocketServer(t *testing.T) (*httptest.Server, *managerFixture) {
	f := newManagerFixture(t)
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	server := httptest.NewServer(realtime.NewWebSocketServer(f.manager, logger))
	t.Cleanup(server.Close)
	return server, f
}

func TestWebSocket_HandshakeAndAck(t *testing.T) {
	server, f := newTestWebSocketServer(t)
	f.auth.EXPECT().Authenticate(gomock.Any(), "Bearer tok", auth.ModeOptional).
		Return(auth.Identity{UserID: "r1", Role: models.RoleResponder, Authenticated: true}, nil)

	conn := dialTestServer(t, server, http.Header{"Authorization": []string{"Bearer tok"}})
	defer conn.Close()

	hello := readFrame(t, conn)
	assert.Equal(t, realtime.EventConnectionSuccess, hello.Event)
	var info map[string]any
	require.NoError(t, json.Unmarshal(hello.Data, &info))
	assert.Equal(t, true, info["authenticated"])
	assert.Equal(t, "responder", info["role"])

	require.NoError(t, conn.WriteJSON(map[string]any{
		"event": realtime.ActionLocationSubscribe,
		"id":    "req-1",
		"data":  map[string]float64{"lat": 12.97, "lng": 77.59, "radius": 5},
	}))
	ack := readFrame(t, conn)
	assert.Equal(t, realtime.EventAck, ack.Event)
	assert.Equal(t, "req-1", ack.ID)
	var result realtime.SubscribeResult
	require.NoError(t, json.Unmarshal(ack.Data, &result))
	assert.True(t, result.Success)
	assert.Greater(t, result.RoomCount, 0)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	bad := readFrame(t, conn)
	assert.Equal(t, realtime.EventError, bad.Event)

	require.NoError(t, conn.WriteJSON(map[string]any{"event": realtime.ActionServerStats, "id": "req-2"}))
	denied := readFrame(t, conn)
	assert.Equal(t, "req-2", denied.ID)
	assert.Contains(t, string(denied.Data), "authorization_error")
}

func TestWebSocket_ClientCloseReleasesRooms(t *testing.T) {
	server, f := newTestWebSocketServer(t)
	f.auth.EXPECT().Authenticate(gomock.Any(), "Bearer q", auth.ModeOptional).
		Return(auth.Identity{UserID: "c1", Role: models.RoleCitizen, Authenticated: true}, nil)

	// токен из query-параметра
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?token=Bearer%20q"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	require.NoError(t, err)
	readFrame(t, conn)

	require.Eventually(t, func() bool { return f.registry.RoomCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	require.Eventually(t, func() bool {
		return f.manager.Count() == 0 && f.registry.RoomCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_ShutdownNotifiesClients(t *testing.T) {
	server, f := newTestWebSocketServer(t)
	f.auth.EXPECT().Authenticate(gomock.Any(), "", auth.ModeOptional).Return(auth.Anonymous(), nil)

	conn := dialTestServer(t, server, nil)
	defer conn.Close()
	readFrame(t, conn)

	go f.manager.Shutdown(context.Background(), 20*time.Millisecond)

	notice := readFrame(t, conn)
	assert.Equal(t, realtime.EventServerShutdown, notice.Event)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}
