package repository

import (
	"context"
	"fmt"
)

// TopicWaitingRooms 等待中房间列表的变更主题。
const TopicWaitingRooms = "rooms:waiting"

// RoomTopic 单个房间文档的变更主题。
func RoomTopic(roomID string) string { return fmt.Sprintf("room:%s", roomID) }

// RoomPlayersTopic 房间玩家列表的变更主题。
func RoomPlayersTopic(roomID string) string { return fmt.Sprintf("room:%s:players", roomID) }

// ChangeFeed 是按主题分发的变更通知。通知只表示"有变化"，不携带数据，
// 订阅方收到后自行重新读取完整状态。
type ChangeFeed interface {
	// Publish 通知所有订阅了 topics 的 Watch。
	Publish(ctx context.Context, topics ...string) error

	// Subscribe 订阅一个主题。返回的 Watch 必须 Close，否则会泄漏订阅资源。
	Subscribe(ctx context.Context, topic string) (Watch, error)
}

// Watch 是一个主题订阅。C 有 1 个缓冲，连续多次通知会被合并成一次。
type Watch interface {
	C() <-chan struct{}
	Close() error
}
