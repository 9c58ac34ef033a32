package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"party-lobby/internal/domain"
	"party-lobby/internal/repository"
)

// StatsService 维护房间计数。计数只做增减，不从房间表重新统计，
// 重复或丢失的事件会导致偏差。
type StatsService struct {
	repo repository.StatsRepository
	now  func() time.Time
}

// NewStatsService 创建 StatsService 实例
func NewStatsService(repo repository.StatsRepository) *StatsService {
	if repo == nil {
		panic("StatsRepository cannot be nil for StatsService")
	}
	return &StatsService{repo: repo, now: time.Now}
}

// RoomCreated 计数加一
func (s *StatsService) RoomCreated(ctx context.Context, roomID string) error {
	return s.adjust(ctx, roomID, 1)
}

// RoomDeleted 计数减一
func (s *StatsService) RoomDeleted(ctx context.Context, roomID string) error {
	return s.adjust(ctx, roomID, -1)
}

func (s *StatsService) adjust(ctx context.Context, roomID string, delta int64) error {
	if err := s.repo.Adjust(ctx, delta, s.now()); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{"room_id": roomID, "delta": delta}).Error("Failed to adjust room stats")
		return err
	}
	logrus.WithFields(logrus.Fields{"room_id": roomID, "delta": delta}).Debug("Room stats adjusted")
	return nil
}

// Get 读取当前计数
func (s *StatsService) Get(ctx context.Context) (*domain.RoomStats, error) {
	stats, err := s.repo.Get(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to read room stats")
		return nil, ErrInternalServer
	}
	return stats, nil
}
