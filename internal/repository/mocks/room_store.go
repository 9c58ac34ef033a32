package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"party-lobby/internal/domain"
	"party-lobby/internal/repository"
)

// RoomStore 是 repository.RoomStore 的 testify mock。
// RunInTx 把 Tx 字段传给事务体，Tx 为 nil 时只返回预设结果。
type RoomStore struct {
	mock.Mock
	Tx repository.RoomTx
}

func (m *RoomStore) RunInTx(ctx context.Context, fn func(tx repository.RoomTx) error) error {
	args := m.Called(ctx)
	if err := args.Error(0); err != nil {
		return err
	}
	if m.Tx == nil {
		return nil
	}
	return fn(m.Tx)
}

func (m *RoomStore) FindRoom(ctx context.Context, id string) (*domain.Room, error) {
	args := m.Called(ctx, id)
	room, _ := args.Get(0).(*domain.Room)
	return room, args.Error(1)
}

func (m *RoomStore) ListWaiting(ctx context.Context) ([]domain.Room, error) {
	args := m.Called(ctx)
	rooms, _ := args.Get(0).([]domain.Room)
	return rooms, args.Error(1)
}

func (m *RoomStore) ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error) {
	args := m.Called(ctx, roomID)
	players, _ := args.Get(0).([]domain.Player)
	return players, args.Error(1)
}

func (m *RoomStore) FindUser(ctx context.Context, uid string) (*domain.User, error) {
	args := m.Called(ctx, uid)
	user, _ := args.Get(0).(*domain.User)
	return user, args.Error(1)
}

func (m *RoomStore) FindStaleRooms(ctx context.Context, cutoff time.Time) ([]domain.Room, error) {
	args := m.Called(ctx, cutoff)
	rooms, _ := args.Get(0).([]domain.Room)
	return rooms, args.Error(1)
}

var _ repository.RoomStore = (*RoomStore)(nil)
