package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"party-lobby/internal/domain"
	memorypersistence "party-lobby/internal/infra/persistence/memory"
	memstate "party-lobby/internal/infra/state/memory"
	"party-lobby/internal/repository"
	"party-lobby/internal/service"
)

type decodedMessage struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func newTestHub(t *testing.T) (*Hub, *service.RoomService, *memstate.Feed) {
	t.Helper()
	feed := memstate.NewFeed()
	rooms := service.NewRoomService(memorypersistence.NewStore(), feed, nil)
	h := NewHub(rooms)
	go h.Run()
	t.Cleanup(h.Stop)
	return h, rooms, feed
}

// nextMessage 读取发送队列直到 match 返回 true
func nextMessage(t *testing.T, c *Client, match func(decodedMessage) bool) decodedMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data, ok := <-c.send:
			require.True(t, ok, "send channel closed")
			var msg decodedMessage
			require.NoError(t, json.Unmarshal(data, &msg))
			if match(msg) {
				return msg
			}
		case <-deadline:
			t.Fatal("timed out waiting for hub message")
		}
	}
}

func register(t *testing.T, h *Hub, c *Client) {
	t.Helper()
	require.True(t, h.QueueMessage(HubMessage{Type: "register", Client: c}))
	require.Eventually(t, func() bool { return h.ClientCount(c.stream) > 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_LobbyClientReceivesWaitingRooms(t *testing.T) {
	h, rooms, _ := newTestHub(t)
	c := NewClient(h, nil, StreamLobby, "viewer")
	register(t, h, c)

	first := nextMessage(t, c, func(m decodedMessage) bool { return m.Type == MessageTypeRooms })
	assert.JSONEq(t, `[]`, string(first.Data))

	res, err := rooms.CreateRoom(context.Background(), service.NewSession("alice"), "Alice")
	require.NoError(t, err)

	msg := nextMessage(t, c, func(m decodedMessage) bool { return m.Type == MessageTypeRooms && string(m.Data) != "[]" })
	var list []domain.Room
	require.NoError(t, json.Unmarshal(msg.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, res.RoomID, list[0].ID)
}

func TestHub_RoomClientReceivesRoomAndPlayers(t *testing.T) {
	h, rooms, _ := newTestHub(t)
	ctx := context.Background()
	res, err := rooms.CreateRoom(ctx, service.NewSession("alice"), "Alice")
	require.NoError(t, err)

	c := NewClient(h, nil, res.RoomID, "alice")
	register(t, h, c)
	nextMessage(t, c, func(m decodedMessage) bool { return m.Type == MessageTypeRoom })
	nextMessage(t, c, func(m decodedMessage) bool { return m.Type == MessageTypePlayers })

	_, err = rooms.JoinRoom(ctx, service.NewSession("bob"), res.RoomID, "Bob")
	require.NoError(t, err)
	msg := nextMessage(t, c, func(m decodedMessage) bool {
		var ps []domain.Player
		return m.Type == MessageTypePlayers && json.Unmarshal(m.Data, &ps) == nil && len(ps) == 2
	})
	assert.Contains(t, string(msg.Data), `"name":"Bob"`)

	require.NoError(t, rooms.CloseRoom(ctx, service.NewSession("alice"), res.RoomID))
	nextMessage(t, c, func(m decodedMessage) bool { return m.Type == MessageTypeRoom && string(m.Data) == "null" })
}

func TestHub_UnregisterReleasesSubscriptions(t *testing.T) {
	h, rooms, feed := newTestHub(t)
	res, err := rooms.CreateRoom(context.Background(), service.NewSession("alice"), "Alice")
	require.NoError(t, err)

	c := NewClient(h, nil, res.RoomID, "alice")
	register(t, h, c)
	require.Eventually(t, func() bool {
		return feed.Subscribers(repository.RoomTopic(res.RoomID)) == 1 && feed.Subscribers(repository.RoomPlayersTopic(res.RoomID)) == 1
	}, time.Second, 5*time.Millisecond)

	require.True(t, h.QueueMessage(HubMessage{Type: "unregister", Client: c}))
	require.Eventually(t, func() bool { return h.ClientCount(res.RoomID) == 0 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return feed.Subscribers(repository.RoomTopic(res.RoomID)) == 0 && feed.Subscribers(repository.RoomPlayersTopic(res.RoomID)) == 0
	}, time.Second, 5*time.Millisecond)

	// 已关闭的客户端不会再收到消息，也不会 panic
	c.sendMessage(OutboundMessage{Type: MessageTypeRooms})
	c.close()
}

func TestHub_HeartbeatUpdatesLastSeen(t *testing.T) {
	h, rooms, _ := newTestHub(t)
	ctx := context.Background()
	res, err := rooms.CreateRoom(ctx, service.NewSession("alice"), "Alice")
	require.NoError(t, err)
	before, err := rooms.ListPlayers(ctx, res.RoomID)
	require.NoError(t, err)

	c := NewClient(h, nil, res.RoomID, "alice")
	time.Sleep(5 * time.Millisecond)
	require.True(t, h.QueueMessage(HubMessage{Type: "heartbeat", Client: c}))

	require.Eventually(t, func() bool {
		after, err := rooms.ListPlayers(ctx, res.RoomID)
		return err == nil && len(after) == 1 && after[0].LastSeenAt.After(before[0].LastSeenAt)
	}, time.Second, 5*time.Millisecond)
}

func TestHub_StopClosesClients(t *testing.T) {
	h, _, _ := newTestHub(t)
	c := NewClient(h, nil, StreamLobby, "viewer")
	register(t, h, c)

	h.Stop()
	h.Stop()
	assert.Equal(t, 0, h.ClientCount(StreamLobby))

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	assert.True(t, closed)
}

func TestClient_SendDropsWhenQueueFull(t *testing.T) {
	c := NewClient(nil, nil, StreamLobby, "viewer")
	for i := 0; i < cap(c.send)+10; i++ {
		c.sendMessage(OutboundMessage{Type: MessageTypeRooms, Data: []domain.Room{}})
	}
	assert.Equal(t, cap(c.send), len(c.send))
	c.close()
	c.CloseConn()
}
