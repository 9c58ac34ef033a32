package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"party-lobby/internal/domain"
	"party-lobby/internal/repository"
)

// StatsRepository 是 repository.StatsRepository 的 testify mock
type StatsRepository struct {
	mock.Mock
}

func (m *StatsRepository) Adjust(ctx context.Context, delta int64, at time.Time) error {
	args := m.Called(ctx, delta, at)
	return args.Error(0)
}

func (m *StatsRepository) Get(ctx context.Context) (*domain.RoomStats, error) {
	args := m.Called(ctx)
	stats, _ := args.Get(0).(*domain.RoomStats)
	return stats, args.Error(1)
}

var _ repository.StatsRepository = (*StatsRepository)(nil)
