package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"party-lobby/internal/domain"
	"party-lobby/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024
)

// StreamLobby 等待中房间列表的流名称
const StreamLobby = "lobby"

// 推送给客户端的消息类型
const (
	MessageTypeRooms   = "rooms"
	MessageTypeRoom    = "room"
	MessageTypePlayers = "players"
	MessageTypeError   = "error"
)

// OutboundMessage 推送给 WebSocket 客户端的消息，每条都携带完整状态
// rooms: []domain.Room, room: *domain.Room (nil 表示已删除), players: []domain.Player
type OutboundMessage struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data"`
	Message string      `json:"message,omitempty"`
}

// StreamSource 提供订阅和心跳，由 service.RoomService 实现
type StreamSource interface {
	SubscribeWaitingRooms(ctx context.Context, callback func([]domain.Room)) (*service.Subscription, error)
	SubscribeRoom(ctx context.Context, roomID string, callback func(*domain.Room)) (*service.Subscription, error)
	SubscribeRoomPlayers(ctx context.Context, roomID string, callback func([]domain.Player)) (*service.Subscription, error)
	Heartbeat(ctx context.Context, sess service.Session, roomID string) error
}

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type   string  // "register", "unregister", "heartbeat"
	Client *Client // 来源客户端
}

// Hub 维护活跃客户端集合，并为每个客户端建立变更订阅
type Hub struct {
	messageChan chan HubMessage
	quit        chan struct{}
	stopOnce    sync.Once

	// map[stream]map[*Client]bool，stream 为 StreamLobby 或房间 ID
	streams   map[string]map[*Client]bool
	streamsMu sync.RWMutex

	source StreamSource
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(source StreamSource) *Hub {
	if source == nil {
		panic("StreamSource cannot be nil for Hub")
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		quit:        make(chan struct{}),
		streams:     make(map[string]map[*Client]bool),
		source:      source,
	}
}

// Run 启动 Hub 的主事件处理循环，应在单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for {
		select {
		case msg := <-h.messageChan:
			switch msg.Type {
			case "register":
				h.registerClient(msg.Client)
			case "unregister":
				h.unregisterClient(msg.Client)
			case "heartbeat":
				go h.handleHeartbeat(msg.Client)
			default:
				log.Warnf("Hub: Received unknown message type: %s", msg.Type)
			}
		case <-h.quit:
			log.Info("Hub is shutting down...")
			return
		}
	}
}

// registerClient 记录客户端并异步建立订阅。订阅的首次推送涉及存储读取，不在主循环中执行。
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	logCtx := client.logger().WithField("action", "registerClient")

	h.streamsMu.Lock()
	if _, ok := h.streams[client.stream]; !ok {
		h.streams[client.stream] = make(map[*Client]bool)
	}
	h.streams[client.stream][client] = true
	h.streamsMu.Unlock()
	logCtx.Info("Client registered to Hub")

	go h.subscribe(client)
}

// unregisterClient 移除客户端、取消订阅并关闭发送通道
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	logCtx := client.logger().WithField("action", "unregisterClient")

	h.streamsMu.Lock()
	if clients, ok := h.streams[client.stream]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.streams, client.stream)
		}
	}
	h.streamsMu.Unlock()

	client.close()
	logCtx.Info("Client unregistered from Hub")
}

// subscribe 按客户端的流类型建立订阅，回调把完整状态序列化后放入客户端发送队列
func (h *Hub) subscribe(client *Client) {
	logCtx := client.logger().WithField("operation", "subscribe")
	ctx := context.Background()

	if client.stream == StreamLobby {
		sub, err := h.source.SubscribeWaitingRooms(ctx, func(rooms []domain.Room) {
			client.sendMessage(OutboundMessage{Type: MessageTypeRooms, Data: rooms})
		})
		if err != nil {
			logCtx.WithError(err).Error("Failed to subscribe to waiting rooms")
			client.sendMessage(OutboundMessage{Type: MessageTypeError, Message: "Failed to load rooms"})
			return
		}
		client.addSubscription(sub)
		return
	}

	roomID := client.stream
	roomSub, err := h.source.SubscribeRoom(ctx, roomID, func(room *domain.Room) {
		client.sendMessage(OutboundMessage{Type: MessageTypeRoom, Data: room})
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to subscribe to room")
		client.sendMessage(OutboundMessage{Type: MessageTypeError, Message: "Failed to load room"})
		return
	}
	if !client.addSubscription(roomSub) {
		return
	}

	playersSub, err := h.source.SubscribeRoomPlayers(ctx, roomID, func(players []domain.Player) {
		if players == nil {
			players = []domain.Player{}
		}
		client.sendMessage(OutboundMessage{Type: MessageTypePlayers, Data: players})
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to subscribe to room players")
		client.sendMessage(OutboundMessage{Type: MessageTypeError, Message: "Failed to load players"})
		return
	}
	client.addSubscription(playersSub)
}

// handleHeartbeat 更新房间内玩家的 lastSeenAt
func (h *Hub) handleHeartbeat(client *Client) {
	if client == nil || client.stream == StreamLobby {
		return
	}
	err := h.source.Heartbeat(context.Background(), service.NewSession(client.userID), client.stream)
	if err != nil {
		client.logger().WithError(err).Debug("Heartbeat rejected")
	}
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)，队列满时返回 false。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

// ClientCount 返回某个流上的客户端数量
func (h *Hub) ClientCount(stream string) int {
	h.streamsMu.RLock()
	defer h.streamsMu.RUnlock()
	return len(h.streams[stream])
}

// Stop 停止主循环并关闭所有客户端 (取消订阅、关闭连接)
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })

	h.streamsMu.Lock()
	clients := make([]*Client, 0)
	for stream, set := range h.streams {
		for c := range set {
			clients = append(clients, c)
		}
		delete(h.streams, stream)
	}
	h.streamsMu.Unlock()

	for _, c := range clients {
		c.close()
	}
	logrus.WithField("clients", len(clients)).Info("Hub stopped all client subscriptions")
}

func marshalMessage(msg OutboundMessage) ([]byte, error) {
	return json.Marshal(msg)
}
