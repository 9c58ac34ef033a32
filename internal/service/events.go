package service

import "context"

// RoomEvents 接收房间创建/删除事件，用于驱动统计。
// 实现可以是同步的 (StatsService) 也可以是异步队列 (tasks.EventEnqueuer)。
type RoomEvents interface {
	RoomCreated(ctx context.Context, roomID string) error
	RoomDeleted(ctx context.Context, roomID string) error
}

type noopEvents struct{}

func (noopEvents) RoomCreated(context.Context, string) error { return nil }
func (noopEvents) RoomDeleted(context.Context, string) error { return nil }
