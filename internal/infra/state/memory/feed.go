// Package memstate 提供进程内的 ChangeFeed，未配置 Redis 时使用。
package memstate

import (
	"context"
	"sync"

	"party-lobby/internal/repository"
)

// Feed 进程内变更通知
type Feed struct {
	mu   sync.Mutex
	subs map[string]map[*watch]struct{}
}

// NewFeed 创建 Feed
func NewFeed() *Feed {
	return &Feed{subs: make(map[string]map[*watch]struct{})}
}

// Publish 非阻塞地通知订阅者，未消费的通知会被合并
func (f *Feed) Publish(ctx context.Context, topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, topic := range topics {
		for w := range f.subs[topic] {
			select {
			case w.c <- struct{}{}:
			default:
			}
		}
	}
	return nil
}

// Subscribe 注册一个 Watch
func (f *Feed) Subscribe(ctx context.Context, topic string) (repository.Watch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w := &watch{feed: f, topic: topic, c: make(chan struct{}, 1)}
	f.mu.Lock()
	if _, ok := f.subs[topic]; !ok {
		f.subs[topic] = make(map[*watch]struct{})
	}
	f.subs[topic][w] = struct{}{}
	f.mu.Unlock()
	return w, nil
}

// Subscribers 返回主题当前的订阅数
func (f *Feed) Subscribers(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[topic])
}

type watch struct {
	feed   *Feed
	topic  string
	c      chan struct{}
	closed bool
}

func (w *watch) C() <-chan struct{} { return w.c }

// Close 在锁内注销并关闭通道，Publish 也在锁内发送，不会向已关闭通道写入
func (w *watch) Close() error {
	w.feed.mu.Lock()
	defer w.feed.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if subs, ok := w.feed.subs[w.topic]; ok {
		delete(subs, w)
		if len(subs) == 0 {
			delete(w.feed.subs, w.topic)
		}
	}
	close(w.c)
	return nil
}
