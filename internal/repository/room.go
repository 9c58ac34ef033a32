package repository

import (
	"context"
	"time"

	"party-lobby/internal/domain"
)

// RoomStore 是房间、玩家、用户文档的持久化存储抽象。
// 所有写操作都必须在 RunInTx 中进行；读方法用于列表和订阅推送。
type RoomStore interface {
	// RunInTx 在一个原子事务中执行 fn。fn 返回错误时事务回滚，错误原样返回。
	// 并发写冲突以 ErrTxConflict 返回，调用方可以整体重试 fn。
	RunInTx(ctx context.Context, fn func(tx RoomTx) error) error

	// FindRoom 根据 ID 查找房间，不存在时返回 ErrRoomNotFound。
	FindRoom(ctx context.Context, id string) (*domain.Room, error)

	// ListWaiting 返回所有 waiting 状态的房间，按创建时间倒序。
	ListWaiting(ctx context.Context) ([]domain.Room, error)

	// ListPlayers 返回房间内的玩家，按加入时间正序。
	ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error)

	// FindUser 根据 uid 查找用户，不存在时返回 ErrUserNotFound。
	FindUser(ctx context.Context, uid string) (*domain.User, error)

	// FindStaleRooms 返回人数 <= domain.StaleMaxPlayers 且 waitingSince <= cutoff 的房间。
	FindStaleRooms(ctx context.Context, cutoff time.Time) ([]domain.Room, error)
}

// RoomTx 是事务内可用的操作集合。事务内的读能看到本事务之前的写。
type RoomTx interface {
	GetRoom(id string) (*domain.Room, error)
	CreateRoom(room *domain.Room) error
	// UpdateRoom 按版本号更新房间，版本不匹配返回 ErrTxConflict，成功后 room.Version 递增。
	UpdateRoom(room *domain.Room) error
	// DeleteRoom 按版本号删除房间，版本不匹配返回 ErrTxConflict。
	DeleteRoom(room *domain.Room) error

	GetUser(uid string) (*domain.User, error)
	// SaveUser Version 为 0 时插入 (并发插入冲突返回 ErrTxConflict)，否则按版本号更新。
	SaveUser(user *domain.User) error
	// ClearActiveRoom 把所有指向 roomID 的用户的 ActiveRoomID 置空，返回受影响的用户数。
	ClearActiveRoom(roomID string) (int64, error)

	GetPlayer(roomID, uid string) (*domain.Player, error)
	// PutPlayer 创建或覆盖玩家条目。
	PutPlayer(player *domain.Player) error
	// DeletePlayer 删除玩家条目，返回是否真的删除了一条。不存在时不报错。
	DeletePlayer(roomID, uid string) (bool, error)
	// DeletePlayers 删除房间内所有玩家，返回删除数量。
	DeletePlayers(roomID string) (int64, error)
	// CountPlayers 统计房间内玩家数量 (包含本事务内的写入)。
	CountPlayers(roomID string) (int, error)
}
