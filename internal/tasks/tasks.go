package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// 任务类型常量
const (
	TypeRoomCreated = "stats:room_created" // 房间创建，计数 +1
	TypeRoomDeleted = "stats:room_deleted" // 房间删除，计数 -1
	TypeRoomCleanup = "room:cleanup"       // 周期性空闲房间清理，无 payload
)

// QueueDefault 所有任务使用的队列
const QueueDefault = "default"

// roomEventMaxRetry 统计任务的最大重试次数。重试可能导致重复计数。
const roomEventMaxRetry = 3

// RoomEventPayload 房间事件只携带房间 ID
type RoomEventPayload struct {
	RoomID string `json:"room_id"`
}

// NewRoomEventTask 创建房间事件任务
func NewRoomEventTask(taskType, roomID string) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(RoomEventPayload{RoomID: roomID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal room event payload: %w", err)
	}
	return asynq.NewTask(taskType, payloadBytes, asynq.MaxRetry(roomEventMaxRetry), asynq.Queue(QueueDefault)), nil
}

// NewRoomCleanupTask 创建清理任务。MaxRetry(0)：失败的房间留给下一轮。
func NewRoomCleanupTask() *asynq.Task {
	return asynq.NewTask(TypeRoomCleanup, nil, asynq.MaxRetry(0), asynq.Queue(QueueDefault))
}

// Enqueuer 是 asynq.Client 中 EventEnqueuer 用到的部分
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EventEnqueuer 把房间事件投递到 asynq 队列，由 worker 异步更新统计。
type EventEnqueuer struct {
	client Enqueuer
}

// NewEventEnqueuer 创建 EventEnqueuer 实例
func NewEventEnqueuer(client Enqueuer) *EventEnqueuer {
	if client == nil {
		panic("asynq client cannot be nil for EventEnqueuer")
	}
	return &EventEnqueuer{client: client}
}

// RoomCreated 投递房间创建事件
func (e *EventEnqueuer) RoomCreated(ctx context.Context, roomID string) error {
	return e.enqueue(ctx, TypeRoomCreated, roomID)
}

// RoomDeleted 投递房间删除事件
func (e *EventEnqueuer) RoomDeleted(ctx context.Context, roomID string) error {
	return e.enqueue(ctx, TypeRoomDeleted, roomID)
}

func (e *EventEnqueuer) enqueue(ctx context.Context, taskType, roomID string) error {
	task, err := NewRoomEventTask(taskType, roomID)
	if err != nil {
		return err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s task: %w", taskType, err)
	}
	logrus.WithFields(logrus.Fields{
		"task_id":   info.ID,
		"task_type": taskType,
		"room_id":   roomID,
	}).Debug("Room event task enqueued")
	return nil
}
