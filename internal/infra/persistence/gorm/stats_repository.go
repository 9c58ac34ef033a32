package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"party-lobby/internal/domain"
)

// GormStatsRepository 是 StatsRepository 接口的 GORM 实现
type GormStatsRepository struct {
	db *gorm.DB
}

// NewGormStatsRepository 创建 GormStatsRepository 实例
func NewGormStatsRepository(db *gorm.DB) *GormStatsRepository {
	if db == nil {
		panic("database connection cannot be nil for GormStatsRepository")
	}
	return &GormStatsRepository{db: db}
}

// Adjust 用 upsert + count = count + ? 在数据库端原子地增减，不做读-改-写。
func (r *GormStatsRepository) Adjust(ctx context.Context, delta int64, at time.Time) error {
	row := domain.RoomStats{ID: domain.RoomStatsID, Count: delta, UpdatedAt: at}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"count":      gorm.Expr("room_stats.count + ?", delta),
			"updated_at": at,
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("gorm: adjust room stats by %d: %w", delta, translateError(err))
	}
	return nil
}

// Get 读取计数文档
func (r *GormStatsRepository) Get(ctx context.Context) (*domain.RoomStats, error) {
	var stats domain.RoomStats
	err := r.db.WithContext(ctx).Where("id = ?", domain.RoomStatsID).First(&stats).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &domain.RoomStats{ID: domain.RoomStatsID}, nil
		}
		return nil, fmt.Errorf("gorm: get room stats: %w", err)
	}
	return &stats, nil
}
