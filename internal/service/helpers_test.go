package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"party-lobby/internal/domain"
	memorypersistence "party-lobby/internal/infra/persistence/memory"
	memstate "party-lobby/internal/infra/state/memory"
	"party-lobby/internal/service"
)

// testClock 每次读取前进 1 秒，保证 joinedAt 严格递增
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingEvents 记录收到的房间事件
type recordingEvents struct {
	mu      sync.Mutex
	created []string
	deleted []string
}

func (e *recordingEvents) RoomCreated(_ context.Context, roomID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, roomID)
	return nil
}

func (e *recordingEvents) RoomDeleted(_ context.Context, roomID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleted = append(e.deleted, roomID)
	return nil
}

func (e *recordingEvents) Deleted() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.deleted...)
}

func (e *recordingEvents) Created() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.created...)
}

type lobbyFixture struct {
	store   *memorypersistence.Store
	feed    *memstate.Feed
	clock   *testClock
	events  *recordingEvents
	rooms   *service.RoomService
	cleanup *service.CleanupService
}

func newLobbyFixture(t *testing.T) *lobbyFixture {
	t.Helper()
	f := &lobbyFixture{
		store:  memorypersistence.NewStore(),
		feed:   memstate.NewFeed(),
		clock:  newTestClock(),
		events: &recordingEvents{},
	}
	f.rooms = service.NewRoomService(f.store, f.feed, f.events, service.WithClock(f.clock.Now))
	f.cleanup = service.NewCleanupService(f.store, f.feed, f.events, service.WithCleanupClock(f.clock.Now))
	return f
}

func (f *lobbyFixture) create(t *testing.T, uid, name string) string {
	t.Helper()
	res, err := f.rooms.CreateRoom(context.Background(), service.NewSession(uid), name)
	require.NoError(t, err)
	require.True(t, res.IsHost)
	return res.RoomID
}

func (f *lobbyFixture) join(t *testing.T, uid, roomID, name string) {
	t.Helper()
	res, err := f.rooms.JoinRoom(context.Background(), service.NewSession(uid), roomID, name)
	require.NoError(t, err)
	require.False(t, res.IsHost)
	require.Equal(t, roomID, res.RoomID)
}

func (f *lobbyFixture) room(t *testing.T, roomID string) *domain.Room {
	t.Helper()
	room, err := f.rooms.GetRoom(context.Background(), roomID)
	require.NoError(t, err)
	return room
}

func (f *lobbyFixture) players(t *testing.T, roomID string) []domain.Player {
	t.Helper()
	players, err := f.rooms.ListPlayers(context.Background(), roomID)
	require.NoError(t, err)
	return players
}

func (f *lobbyFixture) activeRoom(t *testing.T, uid string) *string {
	t.Helper()
	id, err := f.rooms.GetActiveRoomID(context.Background(), service.NewSession(uid))
	require.NoError(t, err)
	return id
}

// requireCountConsistent playerCount 必须等于玩家条目数
func (f *lobbyFixture) requireCountConsistent(t *testing.T, roomID string) {
	t.Helper()
	room := f.room(t, roomID)
	require.Equal(t, len(f.players(t, roomID)), room.PlayerCount, "playerCount must match player entries")
}
