package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"party-lobby/internal/hub"
	memorypersistence "party-lobby/internal/infra/persistence/memory"
	memstate "party-lobby/internal/infra/state/memory"
	"party-lobby/internal/middleware"
	"party-lobby/internal/service"
)

func newTestServer(t *testing.T) (*httptest.Server, *service.RoomService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rooms := service.NewRoomService(memorypersistence.NewStore(), memstate.NewFeed(), nil)
	h := hub.NewHub(rooms)
	go h.Run()
	t.Cleanup(h.Stop)

	handler := NewWebSocketHandler(h, rooms, "")
	r := gin.New()
	g := r.Group("/ws", func(c *gin.Context) {
		if uid := c.Query("uid"); uid != "" {
			c.Set(middleware.ContextUIDKey, uid)
		}
		c.Next()
	})
	g.GET("/rooms", handler.HandleLobby)
	g.GET("/rooms/:roomId", handler.HandleRoom)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, rooms
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func readMessage(t *testing.T, conn *websocket.Conn, msgType string) hub.OutboundMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg hub.OutboundMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

func TestHandleLobby_StreamsWaitingRooms(t *testing.T) {
	srv, rooms := newTestServer(t)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/rooms?uid=viewer"), nil)
	require.NoError(t, err)
	defer conn.Close()

	readMessage(t, conn, hub.MessageTypeRooms)

	_, err = rooms.CreateRoom(context.Background(), service.NewSession("alice"), "Alice")
	require.NoError(t, err)

	for {
		msg := readMessage(t, conn, hub.MessageTypeRooms)
		if list, ok := msg.Data.([]interface{}); ok && len(list) == 1 {
			break
		}
	}
}

func TestHandleRoom_StreamsRoomAndPlayers(t *testing.T) {
	srv, rooms := newTestServer(t)
	res, err := rooms.CreateRoom(context.Background(), service.NewSession("alice"), "Alice")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/rooms/"+res.RoomID+"?uid=alice"), nil)
	require.NoError(t, err)
	defer conn.Close()

	room := readMessage(t, conn, hub.MessageTypeRoom)
	assert.Equal(t, res.RoomID, room.Data.(map[string]interface{})["id"])
	players := readMessage(t, conn, hub.MessageTypePlayers)
	assert.Len(t, players.Data, 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"heartbeat"}`)))
}

func TestHandleRoom_Rejections(t *testing.T) {
	srv, _ := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/rooms/missing?uid=alice"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "/ws/rooms"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestNewWebSocketHandler_CheckOrigin(t *testing.T) {
	rooms := service.NewRoomService(memorypersistence.NewStore(), memstate.NewFeed(), nil)
	h := NewWebSocketHandler(hub.NewHub(rooms), rooms, "https://party.example")

	req := httptest.NewRequest(http.MethodGet, "/ws/rooms", nil)
	assert.True(t, h.upgrader.CheckOrigin(req))
	req.Header.Set("Origin", "https://party.example")
	assert.True(t, h.upgrader.CheckOrigin(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, h.upgrader.CheckOrigin(req))
}
