// Package memorypersistence 提供单进程内存版的 RoomStore / StatsRepository，
// 用于开发模式 (STORE_DRIVER=memory) 和测试。
package memorypersistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"party-lobby/internal/domain"
	"party-lobby/internal/repository"
)

// state 是存储的完整快照，事务在副本上执行，提交时整体替换。
type state struct {
	rooms   map[string]domain.Room
	players map[string]map[string]domain.Player // roomID -> uid -> player
	users   map[string]domain.User
}

func newState() *state {
	return &state{
		rooms:   make(map[string]domain.Room),
		players: make(map[string]map[string]domain.Player),
		users:   make(map[string]domain.User),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, r := range s.rooms {
		c.rooms[id] = r.Clone()
	}
	for roomID, ps := range s.players {
		m := make(map[string]domain.Player, len(ps))
		for uid, p := range ps {
			m[uid] = p
		}
		c.players[roomID] = m
	}
	for id, u := range s.users {
		c.users[id] = u.Clone()
	}
	return c
}

// Store 内存存储。所有事务由一把互斥锁串行化，因此不会产生 ErrTxConflict。
type Store struct {
	mu    sync.Mutex
	data  *state
	stats domain.RoomStats
}

// NewStore 创建空的内存存储
func NewStore() *Store {
	return &Store{
		data:  newState(),
		stats: domain.RoomStats{ID: domain.RoomStatsID},
	}
}

// RunInTx 在数据副本上执行 fn，成功才提交。
func (s *Store) RunInTx(ctx context.Context, fn func(tx repository.RoomTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{data: s.data.clone()}
	if err := fn(tx); err != nil {
		return err // 丢弃副本即回滚
	}
	s.data = tx.data
	return nil
}

// FindRoom 实现 RoomStore
func (s *Store) FindRoom(ctx context.Context, id string) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.data.rooms[id]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	c := r.Clone()
	return &c, nil
}

// ListWaiting 实现 RoomStore，按 CreatedAt 倒序
func (s *Store) ListWaiting(ctx context.Context) ([]domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]domain.Room, 0)
	for _, r := range s.data.rooms {
		if r.State == domain.RoomStateWaiting {
			rooms = append(rooms, r.Clone())
		}
	}
	sort.SliceStable(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID > rooms[j].ID
		}
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}

// ListPlayers 实现 RoomStore，按 JoinedAt 正序
func (s *Store) ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedPlayers(s.data.players[roomID]), nil
}

// FindUser 实现 RoomStore
func (s *Store) FindUser(ctx context.Context, uid string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.data.users[uid]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	c := u.Clone()
	return &c, nil
}

// FindStaleRooms 实现 RoomStore
func (s *Store) FindStaleRooms(ctx context.Context, cutoff time.Time) ([]domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]domain.Room, 0)
	for _, r := range s.data.rooms {
		if r.IsStale(cutoff) {
			rooms = append(rooms, r.Clone())
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.Before(rooms[j].CreatedAt) })
	return rooms, nil
}

// Adjust 实现 StatsRepository
func (s *Store) Adjust(ctx context.Context, delta int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Count += delta
	s.stats.UpdatedAt = at
	return nil
}

// Get 实现 StatsRepository
func (s *Store) Get(ctx context.Context) (*domain.RoomStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	return &st, nil
}

func sortedPlayers(ps map[string]domain.Player) []domain.Player {
	players := make([]domain.Player, 0, len(ps))
	for _, p := range ps {
		players = append(players, p)
	}
	sort.SliceStable(players, func(i, j int) bool {
		if players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].UID < players[j].UID
		}
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})
	return players
}

// memTx 在 state 副本上操作
type memTx struct {
	data *state
}

func (t *memTx) GetRoom(id string) (*domain.Room, error) {
	r, ok := t.data.rooms[id]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	c := r.Clone()
	return &c, nil
}

func (t *memTx) CreateRoom(room *domain.Room) error {
	if _, exists := t.data.rooms[room.ID]; exists {
		return repository.ErrDuplicateEntry
	}
	room.Version = 1
	t.data.rooms[room.ID] = room.Clone()
	return nil
}

func (t *memTx) UpdateRoom(room *domain.Room) error {
	cur, ok := t.data.rooms[room.ID]
	if !ok || cur.Version != room.Version {
		return repository.ErrTxConflict
	}
	room.Version++
	t.data.rooms[room.ID] = room.Clone()
	return nil
}

func (t *memTx) DeleteRoom(room *domain.Room) error {
	cur, ok := t.data.rooms[room.ID]
	if !ok || cur.Version != room.Version {
		return repository.ErrTxConflict
	}
	delete(t.data.rooms, room.ID)
	return nil
}

func (t *memTx) GetUser(uid string) (*domain.User, error) {
	u, ok := t.data.users[uid]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	c := u.Clone()
	return &c, nil
}

func (t *memTx) SaveUser(user *domain.User) error {
	cur, exists := t.data.users[user.ID]
	if user.Version == 0 {
		if exists {
			return repository.ErrTxConflict
		}
	} else if !exists || cur.Version != user.Version {
		return repository.ErrTxConflict
	}
	user.Version++
	t.data.users[user.ID] = user.Clone()
	return nil
}

func (t *memTx) ClearActiveRoom(roomID string) (int64, error) {
	var n int64
	for id, u := range t.data.users {
		if u.ActiveRoomID != nil && *u.ActiveRoomID == roomID {
			u.ActiveRoomID = nil
			u.Version++
			t.data.users[id] = u
			n++
		}
	}
	return n, nil
}

func (t *memTx) GetPlayer(roomID, uid string) (*domain.Player, error) {
	p, ok := t.data.players[roomID][uid]
	if !ok {
		return nil, repository.ErrPlayerNotFound
	}
	return &p, nil
}

func (t *memTx) PutPlayer(player *domain.Player) error {
	ps, ok := t.data.players[player.RoomID]
	if !ok {
		ps = make(map[string]domain.Player)
		t.data.players[player.RoomID] = ps
	}
	ps[player.UID] = *player
	return nil
}

func (t *memTx) DeletePlayer(roomID, uid string) (bool, error) {
	ps, ok := t.data.players[roomID]
	if !ok {
		return false, nil
	}
	if _, ok := ps[uid]; !ok {
		return false, nil
	}
	delete(ps, uid)
	if len(ps) == 0 {
		delete(t.data.players, roomID)
	}
	return true, nil
}

func (t *memTx) DeletePlayers(roomID string) (int64, error) {
	n := int64(len(t.data.players[roomID]))
	delete(t.data.players, roomID)
	return n, nil
}

func (t *memTx) CountPlayers(roomID string) (int, error) {
	return len(t.data.players[roomID]), nil
}
