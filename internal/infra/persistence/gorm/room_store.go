package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"party-lobby/internal/domain"
	"party-lobby/internal/repository"
)

// GormRoomStore 是 RoomStore 接口的 GORM 实现。
// 房间和用户行带 version 列，更新/删除时校验版本号实现乐观并发控制。
type GormRoomStore struct {
	db *gorm.DB
}

// NewGormRoomStore 创建 GormRoomStore 实例
func NewGormRoomStore(db *gorm.DB) *GormRoomStore {
	if db == nil {
		panic("database connection cannot be nil for GormRoomStore")
	}
	return &GormRoomStore{db: db}
}

// RunInTx 在数据库事务中执行 fn
func (s *GormRoomStore) RunInTx(ctx context.Context, fn func(tx repository.RoomTx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRoomTx{db: tx})
	})
	return translateError(err)
}

// FindRoom 实现根据房间 ID 查找房间
func (s *GormRoomStore) FindRoom(ctx context.Context, id string) (*domain.Room, error) {
	var room domain.Room
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id '%s': %w", id, err)
	}
	return &room, nil
}

// ListWaiting 使用 (state, created_at) 索引
func (s *GormRoomStore) ListWaiting(ctx context.Context) ([]domain.Room, error) {
	rooms := make([]domain.Room, 0)
	err := s.db.WithContext(ctx).
		Where("state = ?", domain.RoomStateWaiting).
		Order("created_at DESC").Order("id DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list waiting rooms: %w", err)
	}
	return rooms, nil
}

// ListPlayers 按加入时间正序返回玩家
func (s *GormRoomStore) ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error) {
	players := make([]domain.Player, 0)
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("joined_at ASC").Order("user_id ASC").
		Find(&players).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list players of room '%s': %w", roomID, err)
	}
	return players, nil
}

// FindUser 根据 uid 查找用户
func (s *GormRoomStore) FindUser(ctx context.Context, uid string) (*domain.User, error) {
	var user domain.User
	err := s.db.WithContext(ctx).Where("id = ?", uid).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("gorm: find user by id '%s': %w", uid, err)
	}
	return &user, nil
}

// FindStaleRooms 使用 (player_count, waiting_since) 索引
func (s *GormRoomStore) FindStaleRooms(ctx context.Context, cutoff time.Time) ([]domain.Room, error) {
	rooms := make([]domain.Room, 0)
	err := s.db.WithContext(ctx).
		Where("player_count <= ? AND waiting_since IS NOT NULL AND waiting_since <= ?", domain.StaleMaxPlayers, cutoff).
		Order("created_at ASC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find stale rooms (cutoff %s): %w", cutoff.Format(time.RFC3339), err)
	}
	return rooms, nil
}

// gormRoomTx 是 RoomTx 在单个 GORM 事务上的实现
type gormRoomTx struct {
	db *gorm.DB
}

func (t *gormRoomTx) GetRoom(id string) (*domain.Room, error) {
	var room domain.Room
	if err := t.db.Where("id = ?", id).First(&room).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: tx get room '%s': %w", id, err)
	}
	return &room, nil
}

func (t *gormRoomTx) CreateRoom(room *domain.Room) error {
	room.Version = 1
	if err := t.db.Create(room).Error; err != nil {
		return fmt.Errorf("gorm: create room '%s': %w", room.ID, translateError(err))
	}
	return nil
}

func (t *gormRoomTx) UpdateRoom(room *domain.Room) error {
	res := t.db.Model(&domain.Room{}).
		Where("id = ? AND version = ?", room.ID, room.Version).
		Updates(map[string]interface{}{
			"state":          room.State,
			"player_count":   room.PlayerCount,
			"last_active_at": room.LastActiveAt,
			"waiting_since":  room.WaitingSince,
			"version":        room.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("gorm: update room '%s': %w", room.ID, translateError(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("gorm: update room '%s' at version %d: %w", room.ID, room.Version, repository.ErrTxConflict)
	}
	room.Version++
	return nil
}

func (t *gormRoomTx) DeleteRoom(room *domain.Room) error {
	res := t.db.Where("id = ? AND version = ?", room.ID, room.Version).Delete(&domain.Room{})
	if res.Error != nil {
		return fmt.Errorf("gorm: delete room '%s': %w", room.ID, translateError(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("gorm: delete room '%s' at version %d: %w", room.ID, room.Version, repository.ErrTxConflict)
	}
	return nil
}

func (t *gormRoomTx) GetUser(uid string) (*domain.User, error) {
	var user domain.User
	if err := t.db.Where("id = ?", uid).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrUserNotFound
		}
		return nil, fmt.Errorf("gorm: tx get user '%s': %w", uid, err)
	}
	return &user, nil
}

func (t *gormRoomTx) SaveUser(user *domain.User) error {
	if user.Version == 0 {
		user.Version = 1
		if err := t.db.Create(user).Error; err != nil {
			user.Version = 0
			err = translateError(err)
			if errors.Is(err, repository.ErrDuplicateEntry) {
				// 另一个事务先创建了这个用户
				return fmt.Errorf("gorm: create user '%s': %w", user.ID, repository.ErrTxConflict)
			}
			return fmt.Errorf("gorm: create user '%s': %w", user.ID, err)
		}
		return nil
	}

	res := t.db.Model(&domain.User{}).
		Where("id = ? AND version = ?", user.ID, user.Version).
		Updates(map[string]interface{}{
			"display_name":   user.DisplayName,
			"active_room_id": user.ActiveRoomID,
			"version":        user.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("gorm: update user '%s': %w", user.ID, translateError(res.Error))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("gorm: update user '%s' at version %d: %w", user.ID, user.Version, repository.ErrTxConflict)
	}
	user.Version++
	return nil
}

func (t *gormRoomTx) ClearActiveRoom(roomID string) (int64, error) {
	res := t.db.Model(&domain.User{}).
		Where("active_room_id = ?", roomID).
		Updates(map[string]interface{}{
			"active_room_id": nil,
			"version":        gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("gorm: clear active room '%s': %w", roomID, translateError(res.Error))
	}
	return res.RowsAffected, nil
}

func (t *gormRoomTx) GetPlayer(roomID, uid string) (*domain.Player, error) {
	var player domain.Player
	if err := t.db.Where("room_id = ? AND user_id = ?", roomID, uid).First(&player).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrPlayerNotFound
		}
		return nil, fmt.Errorf("gorm: tx get player '%s' in room '%s': %w", uid, roomID, err)
	}
	return &player, nil
}

func (t *gormRoomTx) PutPlayer(player *domain.Player) error {
	err := t.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "is_host", "joined_at", "last_seen_at"}),
	}).Create(player).Error
	if err != nil {
		return fmt.Errorf("gorm: put player '%s' in room '%s': %w", player.UID, player.RoomID, translateError(err))
	}
	return nil
}

func (t *gormRoomTx) DeletePlayer(roomID, uid string) (bool, error) {
	res := t.db.Where("room_id = ? AND user_id = ?", roomID, uid).Delete(&domain.Player{})
	if res.Error != nil {
		return false, fmt.Errorf("gorm: delete player '%s' from room '%s': %w", uid, roomID, translateError(res.Error))
	}
	return res.RowsAffected > 0, nil
}

func (t *gormRoomTx) DeletePlayers(roomID string) (int64, error) {
	res := t.db.Where("room_id = ?", roomID).Delete(&domain.Player{})
	if res.Error != nil {
		return 0, fmt.Errorf("gorm: delete players of room '%s': %w", roomID, translateError(res.Error))
	}
	return res.RowsAffected, nil
}

func (t *gormRoomTx) CountPlayers(roomID string) (int, error) {
	var count int64
	if err := t.db.Model(&domain.Player{}).Where("room_id = ?", roomID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("gorm: count players of room '%s': %w", roomID, err)
	}
	return int(count), nil
}
