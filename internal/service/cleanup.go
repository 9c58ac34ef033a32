package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"party-lobby/internal/repository"
)

// DefaultWaitingWindow 房间人数 <= 1 后保留的时间，超过即被清理
const DefaultWaitingWindow = 10 * time.Minute

// SweepResult 一次清理的统计
type SweepResult struct {
	Selected int `json:"selected"`
	Deleted  int `json:"deleted"`
	Failed   int `json:"failed"`
}

// CleanupService 删除空闲房间。每个房间独立一个事务，一个房间失败不影响其他房间。
type CleanupService struct {
	store  repository.RoomStore
	feed   repository.ChangeFeed
	events RoomEvents
	tx     txRunner
	window time.Duration
	now    func() time.Time
}

// CleanupOption 可选配置
type CleanupOption func(*CleanupService)

// WithWaitingWindow 设置空闲窗口，<= 0 时使用默认值
func WithWaitingWindow(d time.Duration) CleanupOption {
	return func(s *CleanupService) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithCleanupClock 替换时间源 (测试用)
func WithCleanupClock(now func() time.Time) CleanupOption {
	return func(s *CleanupService) { s.now = now }
}

// WithCleanupTxMaxAttempts 单个房间删除事务的最大执行次数
func WithCleanupTxMaxAttempts(n int) CleanupOption {
	return func(s *CleanupService) { s.tx = newTxRunner(s.store, n) }
}

// NewCleanupService 创建 CleanupService 实例
func NewCleanupService(store repository.RoomStore, feed repository.ChangeFeed, events RoomEvents, opts ...CleanupOption) *CleanupService {
	if store == nil {
		panic("RoomStore cannot be nil for CleanupService")
	}
	if feed == nil {
		panic("ChangeFeed cannot be nil for CleanupService")
	}
	if events == nil {
		events = noopEvents{}
	}
	s := &CleanupService{
		store:  store,
		feed:   feed,
		events: events,
		tx:     newTxRunner(store, DefaultTxMaxAttempts),
		window: DefaultWaitingWindow,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// errNoLongerStale 事务内重新读取时房间已经不满足清理条件
var errNoLongerStale = errors.New("room is no longer stale")

// Sweep 查找并删除所有空闲房间。只有查询失败才返回错误，单个房间的失败计入 Failed。
func (s *CleanupService) Sweep(ctx context.Context) (SweepResult, error) {
	cutoff := s.now().Add(-s.window)
	logCtx := logrus.WithFields(logrus.Fields{"operation": "Sweep", "cutoff": cutoff})

	rooms, err := s.store.FindStaleRooms(ctx, cutoff)
	if err != nil {
		logCtx.WithError(err).Error("Failed to query stale rooms")
		return SweepResult{}, err
	}

	result := SweepResult{Selected: len(rooms)}
	for i := range rooms {
		if err := ctx.Err(); err != nil {
			logCtx.WithError(err).Warn("Sweep interrupted")
			return result, err
		}

		roomID := rooms[i].ID
		roomLog := logCtx.WithField("room_id", roomID)
		var removed int64
		err := s.tx.run(ctx, roomLog, func(tx repository.RoomTx) error {
			// 查询和删除之间可能有人加入，事务内重新判断
			room, err := tx.GetRoom(roomID)
			if err != nil {
				if errors.Is(err, repository.ErrRoomNotFound) {
					return errNoLongerStale
				}
				return err
			}
			if !room.IsStale(cutoff) {
				return errNoLongerStale
			}
			removed, err = deleteRoomCascade(tx, room)
			return err
		})
		if err != nil {
			if errors.Is(err, errNoLongerStale) {
				roomLog.Debug("Room skipped, no longer stale")
				continue
			}
			result.Failed++
			roomLog.WithError(err).Error("Failed to delete stale room")
			continue
		}

		result.Deleted++
		roomLog.WithField("players_removed", removed).Info("Stale room deleted")
		if err := s.feed.Publish(ctx, repository.TopicWaitingRooms, repository.RoomTopic(roomID), repository.RoomPlayersTopic(roomID)); err != nil {
			roomLog.WithError(err).Warn("Failed to publish change notification")
		}
		if err := s.events.RoomDeleted(ctx, roomID); err != nil {
			roomLog.WithError(err).Warn("Failed to emit room deleted event")
		}
	}

	logCtx.WithFields(logrus.Fields{
		"selected": result.Selected,
		"deleted":  result.Deleted,
		"failed":   result.Failed,
	}).Info("Sweep finished")
	return result, nil
}
