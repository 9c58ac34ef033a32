package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"party-lobby/internal/repository"
)

// ChangeFeed 是 repository.ChangeFeed 的 testify mock
type ChangeFeed struct {
	mock.Mock
}

func (m *ChangeFeed) Publish(ctx context.Context, topics ...string) error {
	args := m.Called(ctx, topics)
	return args.Error(0)
}

func (m *ChangeFeed) Subscribe(ctx context.Context, topic string) (repository.Watch, error) {
	args := m.Called(ctx, topic)
	w, _ := args.Get(0).(repository.Watch)
	return w, args.Error(1)
}

var _ repository.ChangeFeed = (*ChangeFeed)(nil)
