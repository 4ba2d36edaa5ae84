package api

import (
	"github.com/gin-gonic/gin"
)

// RouteConfig 路由配置
type RouteConfig struct {
	RecoveryMiddleware        gin.HandlerFunc
	LoggerMiddleware          gin.HandlerFunc
	GlobalRateLimitMiddleware gin.HandlerFunc
	IPRateLimitMiddleware     gin.HandlerFunc
	UserRateLimitMiddleware   gin.HandlerFunc
}

// RouteOption 路由选项函数
type RouteOption func(*RouteConfig)

// WithRecovery 设置 Recovery 中间件
func WithRecovery(middleware gin.HandlerFunc) RouteOption {
	return func(cfg *RouteConfig) {
		cfg.RecoveryMiddleware = middleware
	}
}

// WithLogger 设置 Logger 中间件
func WithLogger(middleware gin.HandlerFunc) RouteOption {
	return func(cfg *RouteConfig) {
		cfg.LoggerMiddleware = middleware
	}
}

// WithGlobalRateLimit 设置全局限流中间件
func WithGlobalRateLimit(middleware gin.HandlerFunc) RouteOption {
	return func(cfg *RouteConfig) {
		cfg.GlobalRateLimitMiddleware = middleware
	}
}

// WithIPRateLimit 设置 IP 限流中间件
func WithIPRateLimit(middleware gin.HandlerFunc) RouteOption {
	return func(cfg *RouteConfig) {
		cfg.IPRateLimitMiddleware = middleware
	}
}

// WithUserRateLimit 设置用户限流中间件
func WithUserRateLimit(middleware gin.HandlerFunc) RouteOption {
	return func(cfg *RouteConfig) {
		cfg.UserRateLimitMiddleware = middleware
	}
}

// RegisterRoutes 注册路由到 Gin，使用路由分组和中间件
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine, opts ...RouteOption) {
	cfg := &RouteConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	// 创建公共路由组（不需要认证）
	publicGroup := router.Group("")
	if cfg.RecoveryMiddleware != nil {
		publicGroup.Use(cfg.RecoveryMiddleware)
	}
	if cfg.LoggerMiddleware != nil {
		publicGroup.Use(cfg.LoggerMiddleware)
	}
	if cfg.GlobalRateLimitMiddleware != nil {
		publicGroup.Use(cfg.GlobalRateLimitMiddleware)
	}
	if cfg.IPRateLimitMiddleware != nil {
		publicGroup.Use(cfg.IPRateLimitMiddleware)
	}

	h.registerPublicRoutes(publicGroup)

	// 创建认证路由组（需要认证）
	authGroup := router.Group("")
	if cfg.RecoveryMiddleware != nil {
		authGroup.Use(cfg.RecoveryMiddleware)
	}
	if cfg.LoggerMiddleware != nil {
		authGroup.Use(cfg.LoggerMiddleware)
	}
	if cfg.GlobalRateLimitMiddleware != nil {
		authGroup.Use(cfg.GlobalRateLimitMiddleware)
	}
	// 认证中间件
	authGroup.Use(h.authConfig.RequireAuth())
	if cfg.UserRateLimitMiddleware != nil {
		authGroup.Use(cfg.UserRateLimitMiddleware)
	}

	h.registerAuthRoutes(authGroup)
}

// registerPublicRoutes 注册公开路由（不需要认证）
func (h *HTTPHandler) registerPublicRoutes(group *gin.RouterGroup) {
	group.POST("/api/login", h.Login)
	group.POST("/api/users/sync", h.SyncUser)

	// WebSocket 升级在握手阶段自行校验令牌
	group.GET("/ws", h.ServeWS)

	// 健康检查
	group.GET("/health", h.Liveness)
	group.GET("/ready", h.Readiness)
}

// registerAuthRoutes 注册需要认证的路由
func (h *HTTPHandler) registerAuthRoutes(group *gin.RouterGroup) {
	// 工作区与频道
	group.GET("/api/workspaces/:slug", h.GetWorkspace)
	group.GET("/api/channels", h.ListChannels)

	// 频道消息
	group.GET("/api/channels/:channelId/messages", h.ListChannelMessages)
	group.GET("/api/messages/:messageId/replies", h.ListThreadReplies)
	group.POST("/api/messages/:messageId/reactions", h.ToggleReaction)
	group.DELETE("/api/messages/:messageId", h.DeleteMessage)

	// 私信
	group.POST("/api/direct-messages", h.SendDirectMessage)
	group.GET("/api/direct-messages/conversations", h.ListConversations)
	group.GET("/api/direct-messages/conversation/:userId", h.GetConversation)

	// 通知
	group.GET("/api/notifications", h.ListNotifications)
	group.GET("/api/notifications/unread", h.ListUnreadNotifications)
	group.GET("/api/notifications/unread/count", h.CountUnreadNotifications)
	group.POST("/api/notifications/:notificationId/read", h.MarkNotificationRead)
	group.POST("/api/notifications/read-all", h.MarkAllNotificationsRead)
}
