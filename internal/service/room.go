package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"party-lobby/internal/domain"
	"party-lobby/internal/repository"
)

// JoinResult 创建或加入房间的结果
type JoinResult struct {
	RoomID string `json:"roomId"`
	IsHost bool   `json:"isHost"`
}

// RoomService 负责房间生命周期：创建、加入、离开、踢人、开始游戏以及列表和订阅。
// 每个写操作都是一个存储事务，冲突时整体重试。
type RoomService struct {
	store  repository.RoomStore
	feed   repository.ChangeFeed
	events RoomEvents
	tx     txRunner
	now    func() time.Time
	newID  func() string
}

// RoomServiceOption 可选配置
type RoomServiceOption func(*RoomService)

// WithClock 替换时间源 (测试用)
func WithClock(now func() time.Time) RoomServiceOption {
	return func(s *RoomService) { s.now = now }
}

// WithTxMaxAttempts 设置事务冲突时的最大执行次数
func WithTxMaxAttempts(n int) RoomServiceOption {
	return func(s *RoomService) { s.tx = newTxRunner(s.store, n) }
}

// WithIDGenerator 替换房间 ID 生成器
func WithIDGenerator(newID func() string) RoomServiceOption {
	return func(s *RoomService) { s.newID = newID }
}

// NewRoomService 创建 RoomService 实例。events 为 nil 时不发送房间事件。
func NewRoomService(store repository.RoomStore, feed repository.ChangeFeed, events RoomEvents, opts ...RoomServiceOption) *RoomService {
	if store == nil {
		panic("RoomStore cannot be nil for RoomService")
	}
	if feed == nil {
		panic("ChangeFeed cannot be nil for RoomService")
	}
	if events == nil {
		events = noopEvents{}
	}
	s := &RoomService{
		store:  store,
		feed:   feed,
		events: events,
		tx:     newTxRunner(store, DefaultTxMaxAttempts),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRoom 创建房间，调用者成为房主。
func (s *RoomService) CreateRoom(ctx context.Context, sess Session, displayName string) (*JoinResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": sess.UID, "operation": "CreateRoom"})
	if err := sess.validate(); err != nil {
		return nil, err
	}
	name, err := normalizeDisplayName(displayName)
	if err != nil {
		return nil, err
	}

	roomID := s.newID()
	logCtx = logCtx.WithField("room_id", roomID)

	err = s.tx.run(ctx, logCtx, func(tx repository.RoomTx) error {
		now := s.now()
		user, err := loadUser(tx, sess.UID)
		if err != nil {
			return err
		}
		if user.ActiveRoomID != nil {
			return ErrAlreadyInRoom
		}

		host := &domain.Player{
			RoomID:     roomID,
			UID:        sess.UID,
			Name:       name,
			IsHost:     true,
			JoinedAt:   now,
			LastSeenAt: now,
		}
		if err := tx.PutPlayer(host); err != nil {
			return err
		}
		count, err := tx.CountPlayers(roomID)
		if err != nil {
			return err
		}

		room := &domain.Room{
			ID:           roomID,
			HostUID:      sess.UID,
			State:        domain.RoomStateWaiting,
			PlayerCount:  count,
			CreatedAt:    now,
			LastActiveAt: now,
			WaitingSince: timePtr(now),
		}
		if err := tx.CreateRoom(room); err != nil {
			return err
		}

		user.DisplayName = name
		user.ActiveRoomID = &roomID
		return tx.SaveUser(user)
	})
	if err != nil {
		if !isBusinessError(err) {
			return nil, mapRepoError(logCtx, err)
		}
		logCtx.WithError(err).Info("CreateRoom rejected")
		return nil, err
	}

	s.publish(ctx, logCtx, repository.TopicWaitingRooms, repository.RoomTopic(roomID), repository.RoomPlayersTopic(roomID))
	if err := s.events.RoomCreated(ctx, roomID); err != nil {
		logCtx.WithError(err).Warn("Failed to emit room created event")
	}
	logCtx.Info("Room created successfully")
	return &JoinResult{RoomID: roomID, IsHost: true}, nil
}

// JoinRoom 加入一个 waiting 状态的房间。
func (s *RoomService) JoinRoom(ctx context.Context, sess Session, roomID, displayName string) (*JoinResult, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": sess.UID, "room_id": roomID, "operation": "JoinRoom"})
	if err := sess.validate(); err != nil {
		return nil, err
	}
	name, err := normalizeDisplayName(displayName)
	if err != nil {
		return nil, err
	}

	err = s.tx.run(ctx, logCtx, func(tx repository.RoomTx) error {
		now := s.now()
		room, err := getRoom(tx, roomID)
		if err != nil {
			return err
		}
		if room.State != domain.RoomStateWaiting {
			return ErrRoomNotJoinable
		}
		user, err := loadUser(tx, sess.UID)
		if err != nil {
			return err
		}
		if user.ActiveRoomID != nil {
			return ErrAlreadyInRoom
		}

		player := &domain.Player{
			RoomID:     roomID,
			UID:        sess.UID,
			Name:       name,
			IsHost:     false,
			JoinedAt:   now,
			LastSeenAt: now,
		}
		if err := tx.PutPlayer(player); err != nil {
			return err
		}
		count, err := tx.CountPlayers(roomID)
		if err != nil {
			return err
		}

		room.PlayerCount = count
		room.LastActiveAt = now
		if count <= domain.StaleMaxPlayers {
			room.WaitingSince = timePtr(now)
		} else {
			room.WaitingSince = nil
		}
		if err := tx.UpdateRoom(room); err != nil {
			return err
		}

		user.DisplayName = name
		user.ActiveRoomID = &roomID
		return tx.SaveUser(user)
	})
	if err != nil {
		if !isBusinessError(err) {
			return nil, mapRepoError(logCtx, err)
		}
		logCtx.WithError(err).Info("JoinRoom rejected")
		return nil, err
	}

	s.publishMembership(ctx, logCtx, roomID)
	logCtx.Info("User joined room successfully")
	return &JoinResult{RoomID: roomID, IsHost: false}, nil
}

// LeaveRoom 离开房间。房间已被删除时跳过房间更新，但仍清理玩家和用户记录。
func (s *RoomService) LeaveRoom(ctx context.Context, sess Session, roomID string) error {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": sess.UID, "room_id": roomID, "operation": "LeaveRoom"})
	if err := sess.validate(); err != nil {
		return err
	}

	err := s.tx.run(ctx, logCtx, func(tx repository.RoomTx) error {
		room, err := tx.GetRoom(roomID)
		if err != nil {
			if !errors.Is(err, repository.ErrRoomNotFound) {
				return err
			}
			room = nil
		}
		return removeMember(tx, room, roomID, sess.UID, s.now())
	})
	if err != nil {
		return mapRepoError(logCtx, err)
	}

	s.publishMembership(ctx, logCtx, roomID)
	logCtx.Info("User left room")
	return nil
}

// KickPlayer 房主把其他玩家移出房间。
func (s *RoomService) KickPlayer(ctx context.Context, sess Session, roomID, targetUID string) error {
	logCtx := logrus.WithFields(logrus.Fields{
		"user_id":    sess.UID,
		"room_id":    roomID,
		"target_uid": targetUID,
		"operation":  "KickPlayer",
	})
	if err := sess.validate(); err != nil {
		return err
	}

	err := s.tx.run(ctx, logCtx, func(tx repository.RoomTx) error {
		room, err := getRoom(tx, roomID)
		if err != nil {
			return err
		}
		if room.HostUID != sess.UID {
			return ErrForbidden
		}
		if targetUID == sess.UID {
			return ErrInvalidOperation
		}
		return removeMember(tx, room, roomID, targetUID, s.now())
	})
	if err != nil {
		if !isBusinessError(err) {
			return mapRepoError(logCtx, err)
		}
		logCtx.WithError(err).Info("KickPlayer rejected")
		return err
	}

	s.publishMembership(ctx, logCtx, roomID)
	logCtx.Info("Player kicked")
	return nil
}

// StartGame 房主开始游戏。已经是 playing 时重复调用不报错。
func (s *RoomService) StartGame(ctx context.Context, sess Session, roomID string) error {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": sess.UID, "room_id": roomID, "operation": "StartGame"})
	if err := sess.validate(); err != nil {
		return err
	}

	err := s.tx.run(ctx, logCtx, func(tx repository.RoomTx) error {
		room, err := getRoom(tx, roomID)
		if err != nil {
			return err
		}
		if room.HostUID != sess.UID {
			return ErrForbidden
		}
		room.State = domain.RoomStatePlaying
		room.LastActiveAt = s.now()
		return tx.UpdateRoom(room)
	})
	if err != nil {
		if !isBusinessError(err) {
			return mapRepoError(logCtx, err)
		}
		logCtx.WithError(err).Info("StartGame rejected")
		return err
	}

	s.publish(ctx, logCtx, repository.TopicWaitingRooms, repository.RoomTopic(roomID))
	logCtx.Info("Game started")
	return nil
}

// CloseRoom 房主显式删除房间，所有成员的 ActiveRoomID 一并清空。
func (s *RoomService) CloseRoom(ctx context.Context, sess Session, roomID string) error {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": sess.UID, "room_id": roomID, "operation": "CloseRoom"})
	if err := sess.validate(); err != nil {
		return err
	}

	err := s.tx.run(ctx, logCtx, func(tx repository.RoomTx) error {
		room, err := getRoom(tx, roomID)
		if err != nil {
			return err
		}
		if room.HostUID != sess.UID {
			return ErrForbidden
		}
		_, err = deleteRoomCascade(tx, room)
		return err
	})
	if err != nil {
		if !isBusinessError(err) {
			return mapRepoError(logCtx, err)
		}
		logCtx.WithError(err).Info("CloseRoom rejected")
		return err
	}

	s.publishMembership(ctx, logCtx, roomID)
	if err := s.events.RoomDeleted(ctx, roomID); err != nil {
		logCtx.WithError(err).Warn("Failed to emit room deleted event")
	}
	logCtx.Info("Room closed by host")
	return nil
}

// Heartbeat 更新调用者在房间内的 lastSeenAt。
func (s *RoomService) Heartbeat(ctx context.Context, sess Session, roomID string) error {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": sess.UID, "room_id": roomID, "operation": "Heartbeat"})
	if err := sess.validate(); err != nil {
		return err
	}

	err := s.tx.run(ctx, logCtx, func(tx repository.RoomTx) error {
		player, err := tx.GetPlayer(roomID, sess.UID)
		if err != nil {
			if errors.Is(err, repository.ErrPlayerNotFound) {
				return ErrRoomNotFound
			}
			return err
		}
		player.LastSeenAt = s.now()
		return tx.PutPlayer(player)
	})
	return mapRepoError(logCtx, err)
}

// GetActiveRoomID 返回调用者当前所在的房间 ID，用户记录不存在时返回 nil。
// 返回的 ID 可能指向已经不存在的房间，调用方读取房间失败时应视为没有活跃房间。
func (s *RoomService) GetActiveRoomID(ctx context.Context, sess Session) (*string, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": sess.UID, "operation": "GetActiveRoomID"})
	if err := sess.validate(); err != nil {
		return nil, err
	}
	user, err := s.store.FindUser(ctx, sess.UID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil
		}
		logCtx.WithError(err).Error("Failed to load user")
		return nil, ErrInternalServer
	}
	return user.ActiveRoomID, nil
}

// ListWaitingRooms 一次性读取等待中的房间，按创建时间倒序。
func (s *RoomService) ListWaitingRooms(ctx context.Context) ([]domain.Room, error) {
	rooms, err := s.store.ListWaiting(ctx)
	if err != nil {
		logrus.WithError(err).Error("ListWaitingRooms: Repository error")
		return nil, ErrInternalServer
	}
	return rooms, nil
}

// GetRoom 读取单个房间
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	logCtx := logrus.WithField("room_id", roomID)
	room, err := s.store.FindRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		logCtx.WithError(err).Error("GetRoom: Repository error")
		return nil, ErrInternalServer
	}
	return room, nil
}

// ListPlayers 读取房间玩家，按加入时间正序
func (s *RoomService) ListPlayers(ctx context.Context, roomID string) ([]domain.Player, error) {
	players, err := s.store.ListPlayers(ctx, roomID)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("ListPlayers: Repository error")
		return nil, ErrInternalServer
	}
	return players, nil
}

// --- 事务内辅助函数 ---

// loadUser 读取用户，不存在时返回一个未持久化的新用户 (Version 0)
func loadUser(tx repository.RoomTx, uid string) (*domain.User, error) {
	user, err := tx.GetUser(uid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return &domain.User{ID: uid}, nil
		}
		return nil, err
	}
	return user, nil
}

func getRoom(tx repository.RoomTx, roomID string) (*domain.Room, error) {
	room, err := tx.GetRoom(roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// removeMember 删除玩家条目，重新计数房间人数并清除用户的 ActiveRoomID。
// room 为 nil 表示房间已不存在，只清理玩家和用户。
// 没有删掉任何条目时房间保持不变 (lastActiveAt 与空闲计时都不动)。
// 人数 <= 1 时重新开始空闲计时，否则保留原来的 waitingSince。
func removeMember(tx repository.RoomTx, room *domain.Room, roomID, uid string, now time.Time) error {
	removed, err := tx.DeletePlayer(roomID, uid)
	if err != nil {
		return err
	}

	if room != nil && removed {
		count, err := tx.CountPlayers(roomID)
		if err != nil {
			return err
		}
		room.PlayerCount = count
		room.LastActiveAt = now
		if count <= domain.StaleMaxPlayers {
			room.WaitingSince = timePtr(now)
		}
		if err := tx.UpdateRoom(room); err != nil {
			return err
		}
	}

	user, err := loadUser(tx, uid)
	if err != nil {
		return err
	}
	// 只清除指向这个房间的记录，用户可能已经在别的房间
	if user.ActiveRoomID != nil && *user.ActiveRoomID != roomID {
		return nil
	}
	user.ActiveRoomID = nil
	return tx.SaveUser(user)
}

// deleteRoomCascade 在同一事务内删除玩家、清除成员的 ActiveRoomID 并删除房间
func deleteRoomCascade(tx repository.RoomTx, room *domain.Room) (int64, error) {
	removed, err := tx.DeletePlayers(room.ID)
	if err != nil {
		return 0, err
	}
	if _, err := tx.ClearActiveRoom(room.ID); err != nil {
		return 0, err
	}
	if err := tx.DeleteRoom(room); err != nil {
		return 0, err
	}
	return removed, nil
}

func timePtr(t time.Time) *time.Time { return &t }

// --- 变更通知 ---

func (s *RoomService) publishMembership(ctx context.Context, logCtx *logrus.Entry, roomID string) {
	s.publish(ctx, logCtx, repository.TopicWaitingRooms, repository.RoomTopic(roomID), repository.RoomPlayersTopic(roomID))
}

// publish 事务已提交，通知失败只记录日志
func (s *RoomService) publish(ctx context.Context, logCtx *logrus.Entry, topics ...string) {
	if err := s.feed.Publish(ctx, topics...); err != nil {
		logCtx.WithError(err).Warn("Failed to publish change notification")
	}
}
