package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"party-lobby/internal/domain"
	"party-lobby/internal/middleware"
	"party-lobby/internal/service"
)

// RoomHandler 封装了与房间管理相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService *service.RoomService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService) *RoomHandler {
	if roomService == nil {
		panic("RoomService cannot be nil for RoomHandler")
	}
	return &RoomHandler{roomService: roomService}
}

// DisplayNameRequest 创建或加入房间时提交的昵称
type DisplayNameRequest struct {
	Name string `json:"name" binding:"required"`
}

// KickRequest 踢人请求
type KickRequest struct {
	UID string `json:"uid" binding:"required"`
}

// ActiveRoomResponse 当前所在房间，不在任何房间时 roomId 为 null
type ActiveRoomResponse struct {
	RoomID *string `json:"roomId"`
}

// sessionFrom 从 Auth 中间件写入的 uid 构造 Session
func sessionFrom(c *gin.Context) service.Session {
	return service.NewSession(c.GetString(middleware.ContextUIDKey))
}

// ListWaitingRooms GET /api/rooms
func (h *RoomHandler) ListWaitingRooms(c *gin.Context) {
	rooms, err := h.roomService.ListWaitingRooms(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if rooms == nil {
		rooms = []domain.Room{}
	}
	SuccessResponse(c, http.StatusOK, gin.H{"rooms": rooms})
}

// CreateRoom POST /api/rooms
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req DisplayNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.CreateRoom: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}

	result, err := h.roomService.CreateRoom(c.Request.Context(), sessionFrom(c), req.Name)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusCreated, result)
}

// GetActiveRoom GET /api/rooms/active
func (h *RoomHandler) GetActiveRoom(c *gin.Context) {
	roomID, err := h.roomService.GetActiveRoomID(c.Request.Context(), sessionFrom(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, ActiveRoomResponse{RoomID: roomID})
}

// GetRoom GET /api/rooms/:roomId
func (h *RoomHandler) GetRoom(c *gin.Context) {
	room, err := h.roomService.GetRoom(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, room)
}

// ListPlayers GET /api/rooms/:roomId/players
func (h *RoomHandler) ListPlayers(c *gin.Context) {
	players, err := h.roomService.ListPlayers(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if players == nil {
		players = []domain.Player{}
	}
	SuccessResponse(c, http.StatusOK, gin.H{"players": players})
}

// JoinRoom POST /api/rooms/:roomId/join
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	var req DisplayNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.JoinRoom: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}

	result, err := h.roomService.JoinRoom(c.Request.Context(), sessionFrom(c), c.Param("roomId"), req.Name)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, result)
}

// LeaveRoom POST /api/rooms/:roomId/leave
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	if err := h.roomService.LeaveRoom(c.Request.Context(), sessionFrom(c), c.Param("roomId")); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// KickPlayer POST /api/rooms/:roomId/kick
func (h *RoomHandler) KickPlayer(c *gin.Context) {
	var req KickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.KickPlayer: Invalid input format")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "details": err.Error()})
		return
	}

	if err := h.roomService.KickPlayer(c.Request.Context(), sessionFrom(c), c.Param("roomId"), req.UID); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// StartGame POST /api/rooms/:roomId/start
func (h *RoomHandler) StartGame(c *gin.Context) {
	if err := h.roomService.StartGame(c.Request.Context(), sessionFrom(c), c.Param("roomId")); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Heartbeat POST /api/rooms/:roomId/heartbeat
func (h *RoomHandler) Heartbeat(c *gin.Context) {
	if err := h.roomService.Heartbeat(c.Request.Context(), sessionFrom(c), c.Param("roomId")); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CloseRoom DELETE /api/rooms/:roomId
func (h *RoomHandler) CloseRoom(c *gin.Context) {
	if err := h.roomService.CloseRoom(c.Request.Context(), sessionFrom(c), c.Param("roomId")); err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
