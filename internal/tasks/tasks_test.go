package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEnqueuer struct {
	mock.Mock
}

func (m *mockEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	args := m.Called(ctx, task)
	info, _ := args.Get(0).(*asynq.TaskInfo)
	return info, args.Error(1)
}

func payloadOf(t *testing.T, task *asynq.Task) RoomEventPayload {
	t.Helper()
	var p RoomEventPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	return p
}

func TestNewRoomEventTask(t *testing.T) {
	task, err := NewRoomEventTask(TypeRoomCreated, "room-1")
	require.NoError(t, err)

	assert.Equal(t, TypeRoomCreated, task.Type())
	assert.JSONEq(t, `{"room_id":"room-1"}`, string(task.Payload()))
}

func TestNewRoomCleanupTask(t *testing.T) {
	task := NewRoomCleanupTask()
	assert.Equal(t, TypeRoomCleanup, task.Type())
	assert.Empty(t, task.Payload())
}

func TestEventEnqueuer_EnqueuesByEventType(t *testing.T) {
	client := new(mockEnqueuer)
	ctx := context.Background()
	client.On("EnqueueContext", ctx, mock.MatchedBy(func(task *asynq.Task) bool {
		return task.Type() == TypeRoomCreated && payloadOf(t, task).RoomID == "a"
	})).Return(&asynq.TaskInfo{ID: "t1"}, nil).Once()
	client.On("EnqueueContext", ctx, mock.MatchedBy(func(task *asynq.Task) bool {
		return task.Type() == TypeRoomDeleted && payloadOf(t, task).RoomID == "b"
	})).Return(&asynq.TaskInfo{ID: "t2"}, nil).Once()

	e := NewEventEnqueuer(client)
	require.NoError(t, e.RoomCreated(ctx, "a"))
	require.NoError(t, e.RoomDeleted(ctx, "b"))

	client.AssertExpectations(t)
}

func TestEventEnqueuer_EnqueueError(t *testing.T) {
	client := new(mockEnqueuer)
	redisDown := errors.New("dial tcp: connection refused")
	client.On("EnqueueContext", mock.Anything, mock.Anything).Return(nil, redisDown).Once()

	err := NewEventEnqueuer(client).RoomCreated(context.Background(), "a")

	assert.ErrorIs(t, err, redisDown)
	client.AssertExpectations(t)
}

func TestNewEventEnqueuer_NilClient(t *testing.T) {
	assert.Panics(t, func() { NewEventEnqueuer(nil) })
}
