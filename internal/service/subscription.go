package service

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"party-lobby/internal/domain"
	"party-lobby/internal/repository"
)

// Subscription 是一个长连接订阅。调用方丢弃订阅前必须调用 Unsubscribe。
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Unsubscribe 停止推送并释放底层 Watch。不等待后台 goroutine 退出，
// 因此可以在回调内部调用。
func (s *Subscription) Unsubscribe() {
	s.cancel()
}

// Done 在后台 goroutine 退出后关闭
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// SubscribeWaitingRooms 订阅等待中房间列表，每次变化推送完整的列表 (按创建时间倒序)。
func (s *RoomService) SubscribeWaitingRooms(ctx context.Context, callback func([]domain.Room)) (*Subscription, error) {
	return s.subscribe(ctx, repository.TopicWaitingRooms, func(ctx context.Context) error {
		rooms, err := s.store.ListWaiting(ctx)
		if err != nil {
			return err
		}
		callback(rooms)
		return nil
	})
}

// SubscribeRoom 订阅单个房间文档，房间被删除时推送 nil。
func (s *RoomService) SubscribeRoom(ctx context.Context, roomID string, callback func(*domain.Room)) (*Subscription, error) {
	return s.subscribe(ctx, repository.RoomTopic(roomID), func(ctx context.Context) error {
		room, err := s.store.FindRoom(ctx, roomID)
		if err != nil {
			if errors.Is(err, repository.ErrRoomNotFound) {
				callback(nil)
				return nil
			}
			return err
		}
		callback(room)
		return nil
	})
}

// SubscribeRoomPlayers 订阅房间玩家列表 (按加入时间正序)。
func (s *RoomService) SubscribeRoomPlayers(ctx context.Context, roomID string, callback func([]domain.Player)) (*Subscription, error) {
	return s.subscribe(ctx, repository.RoomPlayersTopic(roomID), func(ctx context.Context) error {
		players, err := s.store.ListPlayers(ctx, roomID)
		if err != nil {
			return err
		}
		callback(players)
		return nil
	})
}

// subscribe 先订阅主题再读取，避免错过订阅建立与首次读取之间的变更。
// 首次推送在返回之前完成。
func (s *RoomService) subscribe(ctx context.Context, topic string, deliver func(ctx context.Context) error) (*Subscription, error) {
	logCtx := logrus.WithField("topic", topic)

	subCtx, cancel := context.WithCancel(ctx)
	watch, err := s.feed.Subscribe(subCtx, topic)
	if err != nil {
		cancel()
		logCtx.WithError(err).Error("Failed to subscribe to change feed")
		return nil, ErrInternalServer
	}

	if err := deliver(subCtx); err != nil {
		cancel()
		_ = watch.Close()
		logCtx.WithError(err).Error("Failed to load initial subscription state")
		return nil, ErrInternalServer
	}

	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		defer func() {
			if err := watch.Close(); err != nil {
				logCtx.WithError(err).Warn("Failed to close watch")
			}
		}()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-watch.C():
				if !ok {
					logCtx.Debug("Watch channel closed")
					return
				}
				if subCtx.Err() != nil {
					return
				}
				if err := deliver(subCtx); err != nil {
					if subCtx.Err() != nil {
						return
					}
					// 读取失败不终止订阅，等待下一次通知
					logCtx.WithError(err).Warn("Failed to refresh subscription state")
				}
			}
		}
	}()
	return sub, nil
}
