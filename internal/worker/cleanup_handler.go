package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"party-lobby/internal/service"
)

// Sweeper 由 service.CleanupService 实现
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

// RoomCleanupHandler 处理周期性的空闲房间清理任务
type RoomCleanupHandler struct {
	sweeper Sweeper
}

// NewRoomCleanupHandler 创建 Handler 实例
func NewRoomCleanupHandler(sweeper Sweeper) *RoomCleanupHandler {
	if sweeper == nil {
		panic("Sweeper cannot be nil for RoomCleanupHandler")
	}
	return &RoomCleanupHandler{sweeper: sweeper}
}

// ProcessTask 实现 asynq.Handler 接口。
// 单个房间删除失败不算任务失败，只有查询失败才返回错误。
func (h *RoomCleanupHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)
	logCtx.Info("Processing periodic room cleanup task...")

	result, err := h.sweeper.Sweep(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Room cleanup sweep failed")
		return fmt.Errorf("room cleanup sweep failed: %w", err)
	}

	logCtx.WithField("selected", result.Selected).
		WithField("deleted", result.Deleted).
		WithField("failed", result.Failed).
		Info("Periodic room cleanup task finished")
	return nil
}
