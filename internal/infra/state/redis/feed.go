package redisstate

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"party-lobby/internal/repository"
)

// changedPayload 通知只表示有变化，订阅方自行重新读取
const changedPayload = "changed"

// RedisChangeFeed 是 ChangeFeed 接口的 Redis Pub/Sub 实现，多实例部署时跨进程分发变更通知。
type RedisChangeFeed struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisChangeFeed 创建 RedisChangeFeed 实例
func NewRedisChangeFeed(client *redis.Client, keyPrefix string) *RedisChangeFeed {
	if client == nil {
		panic("redis client cannot be nil for RedisChangeFeed")
	}
	if keyPrefix == "" {
		keyPrefix = "lobby:"
	}
	return &RedisChangeFeed{client: client, keyPrefix: keyPrefix}
}

func (f *RedisChangeFeed) channel(topic string) string {
	return fmt.Sprintf("%sfeed:%s", f.keyPrefix, topic)
}

// Publish 用 Pipeline 一次发布多个主题
func (f *RedisChangeFeed) Publish(ctx context.Context, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	pipe := f.client.Pipeline()
	for _, topic := range topics {
		pipe.Publish(ctx, f.channel(topic), changedPayload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: failed to publish %d topic(s): %w", len(topics), err)
	}
	return nil
}

// Subscribe 订阅一个主题，等待 Redis 确认订阅后才返回，保证之后的 Publish 不会丢失。
func (f *RedisChangeFeed) Subscribe(ctx context.Context, topic string) (repository.Watch, error) {
	channel := f.channel(topic)
	ps := f.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: failed to subscribe to channel %s: %w", channel, err)
	}

	w := &redisWatch{ps: ps, c: make(chan struct{}, 1)}
	go w.forward(channel)
	return w, nil
}

// redisWatch 把 PubSub 消息合并为 1 缓冲的信号通道
type redisWatch struct {
	ps   *redis.PubSub
	c    chan struct{}
	once sync.Once
}

func (w *redisWatch) forward(channel string) {
	defer close(w.c)
	for range w.ps.Channel() {
		select {
		case w.c <- struct{}{}:
		default:
			// 已有未消费的通知，合并
		}
	}
	logrus.WithField("channel", channel).Debug("redis feed watch closed")
}

func (w *redisWatch) C() <-chan struct{} { return w.c }

// Close 关闭 PubSub，forward 随之退出并关闭 C
func (w *redisWatch) Close() error {
	var err error
	w.once.Do(func() { err = w.ps.Close() })
	return err
}
