package websocket

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"party-lobby/internal/domain"
	"party-lobby/internal/hub"
	"party-lobby/internal/middleware"
	"party-lobby/internal/service"
)

// RoomFinder 升级前确认房间存在，由 service.RoomService 实现
type RoomFinder interface {
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
}

// WebSocketHandler 负责处理 WebSocket 升级请求和客户端注册
type WebSocketHandler struct {
	upgrader websocket.Upgrader
	hub      *hub.Hub
	rooms    RoomFinder
}

// NewWebSocketHandler 创建 WebSocketHandler 实例。allowedOrigin 为空时不检查来源。
func NewWebSocketHandler(h *hub.Hub, rooms RoomFinder, allowedOrigin string) *WebSocketHandler {
	if h == nil {
		panic("Hub cannot be nil for WebSocketHandler")
	}
	if rooms == nil {
		panic("RoomFinder cannot be nil for WebSocketHandler")
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowedOrigin == "" || origin == "" || origin == allowedOrigin
		},
	}

	return &WebSocketHandler{
		upgrader: upgrader,
		hub:      h,
		rooms:    rooms,
	}
}

// HandleLobby 推送等待中房间列表
// URL: /ws/rooms
func (h *WebSocketHandler) HandleLobby(c *gin.Context) {
	uid := c.GetString(middleware.ContextUIDKey)
	if uid == "" {
		logrus.Warn("WS Handler: User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	h.connect(c, hub.StreamLobby, uid)
}

// HandleRoom 推送单个房间及其玩家列表
// URL: /ws/rooms/:roomId
func (h *WebSocketHandler) HandleRoom(c *gin.Context) {
	uid := c.GetString(middleware.ContextUIDKey)
	if uid == "" {
		logrus.Warn("WS Handler: User ID not found in context")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	roomID := c.Param("roomId")
	logCtx := logrus.WithFields(logrus.Fields{"user_id": uid, "room_id": roomID})

	if _, err := h.rooms.GetRoom(c.Request.Context(), roomID); err != nil {
		if errors.Is(err, service.ErrRoomNotFound) {
			logCtx.WithError(err).Warn("WS Handler: Room not found")
			c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		} else {
			logCtx.WithError(err).Error("WS Handler: Error checking room existence")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate room"})
		}
		return
	}
	h.connect(c, roomID, uid)
}

func (h *WebSocketHandler) connect(c *gin.Context, stream, uid string) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": uid, "stream": stream})

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写入了 HTTP 错误响应
		logCtx.WithError(err).Error("WS Handler: Failed to upgrade connection")
		return
	}
	logCtx.Info("WS Handler: Connection upgraded to WebSocket")

	client := hub.NewClient(h.hub, conn, stream, uid)
	if !h.hub.QueueMessage(hub.HubMessage{Type: "register", Client: client}) {
		logCtx.Error("WS Handler: Hub message channel full, failed to register client")
		client.CloseConn()
		return
	}
	client.Run()
	logCtx.Info("WS Handler: Client read/write pumps started")
}
