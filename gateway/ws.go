package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/ceyewan/buzzlink/observability"
	"github.com/ceyewan/buzzlink/service"
	"github.com/ceyewan/genesis/clog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// WSConfig WebSocket 配置
type WSConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	MaxMessageSize  int64 // KB
	PingInterval    int   // 秒
	PongTimeout     int   // 秒
}

// DefaultWSConfig 默认 WebSocket 配置
func DefaultWSConfig() *WSConfig {
	return &WSConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		MaxMessageSize:  512,
		PingInterval:    30,
		PongTimeout:     60,
	}
}

// WebSocket 处理 WebSocket 连接的建立与清理
type WebSocket struct {
	identitySvc *service.IdentityService
	dispatcher  *Dispatcher
	connMgr     *Manager
	router      *Router
	presence    *Presence
	logger      clog.Logger
	upgrader    *websocket.Upgrader
	config      *WSConfig
}

// NewWebSocket 创建 WebSocket 处理器
func NewWebSocket(
	identitySvc *service.IdentityService,
	dispatcher *Dispatcher,
	connMgr *Manager,
	router *Router,
	presence *Presence,
	cfg *WSConfig,
	logger clog.Logger,
) *WebSocket {
	if cfg == nil {
		cfg = DefaultWSConfig()
	}

	upgrader := &websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			// 生产环境需要严格检查 Origin
			return true
		},
	}

	return &WebSocket{
		identitySvc: identitySvc,
		dispatcher:  dispatcher,
		connMgr:     connMgr,
		router:      router,
		presence:    presence,
		logger:      logger.WithNamespace("ws"),
		upgrader:    upgrader,
		config:      cfg,
	}
}

// HandleWebSocket 处理 WebSocket 连接请求
// 从 URL 参数中获取 token 进行认证
func (ws *WebSocket) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		ws.logger.Warn("websocket connection rejected: missing token",
			clog.String("remote_addr", r.RemoteAddr))
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	user, err := ws.identitySvc.ValidateToken(r.Context(), token)
	if err != nil {
		ws.logger.Warn("websocket connection rejected: invalid token",
			clog.String("remote_addr", r.RemoteAddr),
			clog.Error(err))
		if service.IsForbidden(err) {
			http.Error(w, "forbidden", http.StatusForbidden)
		} else {
			http.Error(w, "invalid token", http.StatusUnauthorized)
		}
		return
	}

	wsConn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.logger.Error("failed to upgrade websocket",
			clog.Int64("user_id", user.ID),
			clog.String("remote_addr", r.RemoteAddr),
			clog.Error(err))
		return
	}

	conn := NewConn(
		uuid.New().String(),
		user.ID,
		user.DisplayName,
		wsConn,
		ws.logger,
		ws.dispatcher,
		ws.onDisconnect,
		ws.config.MaxMessageSize*1024,
		time.Duration(ws.config.PingInterval)*time.Second,
		time.Duration(ws.config.PongTimeout)*time.Second,
	)

	ws.connMgr.AddConnection(conn)
	observability.RecordWebSocketConnectionEstablished(r.Context())
	observability.SetWebSocketConnectionsActive(r.Context(), ws.connMgr.OnlineCount())
	conn.Run()

	ws.logger.Info("websocket connection established",
		clog.Int64("user_id", user.ID),
		clog.String("conn_id", conn.ID()),
		clog.String("remote_addr", r.RemoteAddr))
}

// onDisconnect 连接断开时的清理回调，由 Conn.Close 保证恰好执行一次
// 顺序：摘除连接 -> 取消全部订阅 -> 清理在线状态 -> 向受影响频道广播快照
func (ws *WebSocket) onDisconnect(conn *Conn) {
	ws.connMgr.RemoveConnection(conn.ID())
	ws.router.UnsubscribeAll(conn)
	observability.SetWebSocketConnectionsActive(context.Background(), ws.connMgr.OnlineCount())

	// 同一用户还有其他连接时保留在线状态
	if ws.connMgr.UserConnectionCount(conn.UserID()) > 0 {
		return
	}

	affected := ws.presence.Disconnect(conn.UserID())
	for _, channelID := range affected {
		ws.dispatcher.PublishPresence(channelID)
	}
}
