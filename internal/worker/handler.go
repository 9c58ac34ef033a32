package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"party-lobby/internal/tasks"
)

// RoomEventSink 是统计处理器依赖的部分，由 service.StatsService 实现
type RoomEventSink interface {
	RoomCreated(ctx context.Context, roomID string) error
	RoomDeleted(ctx context.Context, roomID string) error
}

// RoomStatsHandler 处理房间创建/删除事件，更新房间计数
type RoomStatsHandler struct {
	sink RoomEventSink
}

// NewRoomStatsHandler 创建 Handler 实例
func NewRoomStatsHandler(sink RoomEventSink) *RoomStatsHandler {
	if sink == nil {
		panic("RoomEventSink cannot be nil for RoomStatsHandler")
	}
	return &RoomStatsHandler{sink: sink}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *RoomStatsHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	var payload tasks.RoomEventPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.RoomID == "" {
		logCtx.Error("Task payload has empty room_id")
		return fmt.Errorf("empty room_id: %w", asynq.SkipRetry)
	}
	logCtx = logCtx.WithField("room_id", payload.RoomID)

	var err error
	switch t.Type() {
	case tasks.TypeRoomCreated:
		err = h.sink.RoomCreated(ctx, payload.RoomID)
	case tasks.TypeRoomDeleted:
		err = h.sink.RoomDeleted(ctx, payload.RoomID)
	default:
		logCtx.Error("Unexpected task type for room stats handler")
		return fmt.Errorf("unexpected task type %q: %w", t.Type(), asynq.SkipRetry)
	}
	if err != nil {
		logCtx.WithError(err).Error("Failed to update room stats")
		return fmt.Errorf("failed to update room stats for room %s: %w", payload.RoomID, err)
	}

	logCtx.Info("Room stats task processed successfully")
	return nil
}

// taskLogger 带上任务 ID 与重试次数的日志上下文
func taskLogger(ctx context.Context, t *asynq.Task) *logrus.Entry {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     currentRetry,
		"max_retry": maxRetry,
	})
}
