package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ceyewan/genesis/clog"
	"github.com/gorilla/websocket"
)

// PacketHandler 处理入站帧的接口
type PacketHandler interface {
	// HandlePacket 处理一帧；返回的错误只记日志，不断开连接
	HandlePacket(ctx context.Context, conn *Conn, packet *Packet) error
}

// Conn 表示一个 WebSocket 连接
// 同一用户可以有多个连接（多端、多标签页），每个连接有独立的 ID
type Conn struct {
	id          string
	userID      int64
	displayName string
	conn        *websocket.Conn
	send        chan []byte
	logger      clog.Logger
	handler     PacketHandler
	ctx         context.Context
	cancel      context.CancelFunc
	closeOnce   sync.Once
	onClose     func(c *Conn)
	remoteAddr  string

	// 配置
	maxMessageSize int64
	pingInterval   time.Duration
	pongTimeout    time.Duration
}

// NewConn 创建新的连接
func NewConn(
	id string,
	userID int64,
	displayName string,
	conn *websocket.Conn,
	logger clog.Logger,
	handler PacketHandler,
	onClose func(c *Conn),
	maxMessageSize int64,
	pingInterval time.Duration,
	pongTimeout time.Duration,
) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	return &Conn{
		id:             id,
		userID:         userID,
		displayName:    displayName,
		conn:           conn,
		send:           make(chan []byte, 256),
		logger:         logger,
		handler:        handler,
		ctx:            ctx,
		cancel:         cancel,
		onClose:        onClose,
		remoteAddr:     conn.RemoteAddr().String(),
		maxMessageSize: maxMessageSize,
		pingInterval:   pingInterval,
		pongTimeout:    pongTimeout,
	}
}

// ID 实现 Subscriber 接口
func (c *Conn) ID() string {
	return c.id
}

// UserID 连接对应的用户
func (c *Conn) UserID() int64 {
	return c.userID
}

// DisplayName 连接对应用户的显示名
func (c *Conn) DisplayName() string {
	return c.displayName
}

// RemoteAddr 远程地址
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

// Deliver 实现 Subscriber 接口
// 非阻塞：发送缓冲满时丢弃本次投递并返回错误，由路由器记日志
func (c *Conn) Deliver(topic string, payload []byte) error {
	data, err := EncodePacket(NewEventPacket(topic, payload))
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// Send 发送一帧到客户端
func (c *Conn) Send(packet *Packet) error {
	data, err := EncodePacket(packet)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

// enqueue 非阻塞投递到发送缓冲
// send 通道从不关闭（writePump 由 ctx 退出），与并发 Close 竞争时
// 最多丢弃本次投递，不会向已关闭的通道发送
func (c *Conn) enqueue(data []byte) error {
	select {
	case <-c.ctx.Done():
		return fmt.Errorf("connection closed")
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return fmt.Errorf("connection closed")
	default:
		return fmt.Errorf("send buffer full")
	}
}

// Close 关闭连接，幂等；断开清理回调恰好执行一次
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		c.conn.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
	return nil
}

// Run 启动连接的读写协程
func (c *Conn) Run() {
	go c.writePump()
	go c.readPump()
}

// readPump 从 WebSocket 读取消息
func (c *Conn) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(c.maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.pongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket read error",
					clog.Int64("user_id", c.userID),
					clog.String("conn_id", c.id),
					clog.Error(err))
			}
			break
		}

		// 解码消息
		packet, err := DecodePacket(message)
		if err != nil {
			c.logger.Error("failed to decode packet",
				clog.Int64("user_id", c.userID),
				clog.Error(err))
			continue
		}

		// 处理消息
		if err := c.handler.HandlePacket(c.ctx, c, packet); err != nil {
			c.logger.Error("failed to handle packet",
				clog.Int64("user_id", c.userID),
				clog.String("type", packet.Type),
				clog.Error(err))
		}
	}
}

// writePump 向 WebSocket 写入消息
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("failed to write message",
					clog.Int64("user_id", c.userID),
					clog.String("conn_id", c.id),
					clog.Error(err))
				return
			}

		case <-ticker.C:
			// 发送心跳
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
