package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"party-lobby/internal/service"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	stream string // StreamLobby 或房间 ID
	userID string
	send   chan []byte

	mu     sync.Mutex // 保护 closed、subs 以及对 send 的写入
	closed bool
	subs   []*service.Subscription
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, stream string, userID string) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		stream: stream,
		userID: userID,
		send:   make(chan []byte, 256),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) logger() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"user_id": c.userID, "stream": c.stream})
}

// sendMessage 序列化并放入发送队列。队列满时丢弃，下一次推送仍是完整状态。
func (c *Client) sendMessage(msg OutboundMessage) {
	data, err := marshalMessage(msg)
	if err != nil {
		c.logger().WithError(err).Error("Failed to marshal outbound message")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger().WithField("message_type", msg.Type).Warn("Client send channel full, message dropped")
	}
}

// addSubscription 记录订阅，客户端已关闭时立即取消并返回 false
func (c *Client) addSubscription(sub *service.Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		sub.Unsubscribe()
		return false
	}
	c.subs = append(c.subs, sub)
	return true
}

// close 取消所有订阅并关闭 send 通道 (WritePump 随之退出)。可重复调用。
func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	close(c.send)
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}

// inboundMessage 客户端可以发送的消息，目前只有心跳
type inboundMessage struct {
	Type string `json:"type"`
}

// ReadPump 读取客户端消息直到连接关闭，退出时请求 Hub 注销。
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.messageChan <- HubMessage{Type: "unregister", Client: c}:
		case <-time.After(1 * time.Second):
			c.logger().Warn("Timeout sending unregister message to Hub channel")
			c.close()
		}
		c.conn.Close()
		c.logger().Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger().WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				c.logger().Debug("WebSocket connection closed normally or read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var in inboundMessage
		if err := json.Unmarshal(message, &in); err != nil {
			c.logger().WithError(err).Debug("Ignoring malformed client message")
			continue
		}
		if in.Type == "heartbeat" {
			c.hub.QueueMessage(HubMessage{Type: "heartbeat", Client: c})
		}
	}
}

// WritePump 将 send 通道中的消息写入 WebSocket 连接，并定期发送 Ping。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.logger().Info("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger().WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger().WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}

// CloseConn 关闭底层连接
func (c *Client) CloseConn() {
	if c.conn != nil {
		c.conn.Close()
	}
}
