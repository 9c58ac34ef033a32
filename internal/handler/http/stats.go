package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"party-lobby/internal/service"
)

// StatsHandler 房间统计
type StatsHandler struct {
	statsService *service.StatsService
}

// NewStatsHandler 创建 StatsHandler 实例
func NewStatsHandler(statsService *service.StatsService) *StatsHandler {
	return &StatsHandler{statsService: statsService}
}

// GetRoomStats GET /api/stats/rooms
func (h *StatsHandler) GetRoomStats(c *gin.Context) {
	stats, err := h.statsService.Get(c.Request.Context())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, stats)
}
