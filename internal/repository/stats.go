package repository

import (
	"context"
	"time"

	"party-lobby/internal/domain"
)

// StatsRepository 维护 stats/rooms 计数文档。
type StatsRepository interface {
	// Adjust 原子地把计数加上 delta 并记录更新时间，文档不存在时创建。
	Adjust(ctx context.Context, delta int64, at time.Time) error

	// Get 返回当前计数，从未写入过时返回零值文档和 nil 错误。
	Get(ctx context.Context) (*domain.RoomStats, error)
}
