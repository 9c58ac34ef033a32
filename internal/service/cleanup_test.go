package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"party-lobby/internal/domain"
	"party-lobby/internal/repository"
	"party-lobby/internal/repository/mocks"
	"party-lobby/internal/service"
)

// seedRoom 直接写入一个房间及其玩家，用于构造清理场景
func seedRoom(t *testing.T, f *lobbyFixture, id string, uids []string, waitingSince *time.Time) {
	t.Helper()
	now := f.clock.Now()
	err := f.store.RunInTx(context.Background(), func(tx repository.RoomTx) error {
		for i, uid := range uids {
			if err := tx.PutPlayer(&domain.Player{RoomID: id, UID: uid, Name: uid, IsHost: i == 0, JoinedAt: now, LastSeenAt: now}); err != nil {
				return err
			}
			roomID := id
			if err := tx.SaveUser(&domain.User{ID: uid, DisplayName: uid, ActiveRoomID: &roomID}); err != nil {
				return err
			}
		}
		return tx.CreateRoom(&domain.Room{
			ID:           id,
			HostUID:      uids[0],
			State:        domain.RoomStateWaiting,
			PlayerCount:  len(uids),
			CreatedAt:    now,
			LastActiveAt: now,
			WaitingSince: waitingSince,
		})
	})
	require.NoError(t, err)
}

func TestCleanupService_SelectsIdleSinglePlayerRooms(t *testing.T) {
	f := newLobbyFixture(t)
	ctx := context.Background()

	elevenMinutesAgo := f.clock.Now().Add(-11 * time.Minute)
	fiveMinutesAgo := f.clock.Now().Add(-5 * time.Minute)
	seedRoom(t, f, "idle", []string{"alice"}, &elevenMinutesAgo)
	seedRoom(t, f, "busy", []string{"bob", "carol"}, &elevenMinutesAgo)
	seedRoom(t, f, "fresh", []string{"dave"}, &fiveMinutesAgo)
	seedRoom(t, f, "active", []string{"erin", "frank"}, nil)

	result, err := f.cleanup.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, service.SweepResult{Selected: 1, Deleted: 1, Failed: 0}, result)

	_, err = f.rooms.GetRoom(ctx, "idle")
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
	assert.Empty(t, f.players(t, "idle"))
	assert.Nil(t, f.activeRoom(t, "alice"), "deleted room no longer pins its members")

	for _, id := range []string{"busy", "fresh", "active"} {
		_, err := f.rooms.GetRoom(ctx, id)
		assert.NoError(t, err, "room %s must survive", id)
	}
	assert.Equal(t, "busy", *f.activeRoom(t, "bob"))
	assert.Equal(t, []string{"idle"}, f.events.Deleted())
}

func TestCleanupService_RoomCreatedThroughServiceExpires(t *testing.T) {
	f := newLobbyFixture(t)
	ctx := context.Background()

	lonely := f.create(t, "alice", "Alice")
	full := f.create(t, "bob", "Bob")
	f.join(t, "carol", full, "Carol")

	f.clock.Advance(9 * time.Minute)
	result, err := f.cleanup.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Selected)

	f.clock.Advance(2 * time.Minute)
	result, err = f.cleanup.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)

	_, err = f.rooms.GetRoom(ctx, lonely)
	assert.ErrorIs(t, err, service.ErrRoomNotFound)
	_, err = f.rooms.GetRoom(ctx, full)
	assert.NoError(t, err)

	// 被清理的用户可以重新创建房间
	f.create(t, "alice", "Alice")
}

func TestCleanupService_WaitingWindowOption(t *testing.T) {
	f := newLobbyFixture(t)
	cleanup := service.NewCleanupService(f.store, f.feed, nil,
		service.WithCleanupClock(f.clock.Now),
		service.WithWaitingWindow(time.Minute),
	)
	f.create(t, "alice", "Alice")
	f.clock.Advance(2 * time.Minute)

	result, err := cleanup.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
}

func TestCleanupService_FailureOnOneRoomDoesNotBlockOthers(t *testing.T) {
	store := new(mocks.RoomStore)
	feed := new(mocks.ChangeFeed)
	events := &recordingEvents{}
	stale := []domain.Room{{ID: "a"}, {ID: "b"}}
	store.On("FindStaleRooms", mock.Anything, mock.Anything).Return(stale, nil).Once()
	store.On("RunInTx", mock.Anything).Return(errors.New("disk full")).Once()
	store.On("RunInTx", mock.Anything).Return(nil).Once()
	feed.On("Publish", mock.Anything, mock.Anything).Return(nil).Once()

	cleanup := service.NewCleanupService(store, feed, events)
	result, err := cleanup.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, service.SweepResult{Selected: 2, Deleted: 1, Failed: 1}, result)
	assert.Equal(t, []string{"b"}, events.Deleted())
	store.AssertExpectations(t)
	feed.AssertExpectations(t)
}

func TestCleanupService_QueryFailure(t *testing.T) {
	store := new(mocks.RoomStore)
	feed := new(mocks.ChangeFeed)
	store.On("FindStaleRooms", mock.Anything, mock.Anything).Return(nil, errors.New("timeout")).Once()

	cleanup := service.NewCleanupService(store, feed, nil)
	_, err := cleanup.Sweep(context.Background())

	assert.Error(t, err)
	store.AssertNotCalled(t, "RunInTx", mock.Anything)
}

func TestCleanupService_SkipsRoomThatGainedPlayers(t *testing.T) {
	f := newLobbyFixture(t)
	ctx := context.Background()

	roomID := f.create(t, "alice", "Alice")
	f.clock.Advance(11 * time.Minute)

	// 查询之后、删除之前有人加入
	store := &joinBeforeDeleteStore{lobbyStore: f.store, onFind: func() { f.join(t, "bob", roomID, "Bob") }}
	cleanup := service.NewCleanupService(store, f.feed, nil, service.WithCleanupClock(f.clock.Now))

	result, err := cleanup.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Selected)
	assert.Equal(t, 0, result.Deleted)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 2, f.room(t, roomID).PlayerCount)
}

type lobbyStore = repository.RoomStore

// joinBeforeDeleteStore 在 FindStaleRooms 返回后执行 onFind
type joinBeforeDeleteStore struct {
	lobbyStore
	onFind func()
}

func (s *joinBeforeDeleteStore) FindStaleRooms(ctx context.Context, cutoff time.Time) ([]domain.Room, error) {
	rooms, err := s.lobbyStore.FindStaleRooms(ctx, cutoff)
	s.onFind()
	return rooms, err
}
