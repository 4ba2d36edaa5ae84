package api

import (
	"net/http"
	"strconv"

	"github.com/ceyewan/buzzlink/fanout"
	"github.com/ceyewan/buzzlink/gateway"
	"github.com/ceyewan/buzzlink/middleware"
	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/buzzlink/pkg/health"
	"github.com/ceyewan/buzzlink/service"
	"github.com/ceyewan/genesis/clog"
	"github.com/gin-gonic/gin"
)

// HTTPHandler 实现 HTTP API
// WebSocket 之外的读路径和写路径都从这里进入服务层
type HTTPHandler struct {
	chatSvc     *service.ChatService
	dmSvc       *service.DMService
	notifySvc   *service.NotifyService
	identitySvc *service.IdentityService
	router      *gateway.Router
	fan         *fanout.Fanout
	wsHandler   *gateway.WebSocket
	probe       *health.Probe
	logger      clog.Logger
	authConfig  *middleware.AuthConfig
}

// NewHTTPHandler 创建 API Handler
func NewHTTPHandler(
	chatSvc *service.ChatService,
	dmSvc *service.DMService,
	notifySvc *service.NotifyService,
	identitySvc *service.IdentityService,
	router *gateway.Router,
	fan *fanout.Fanout,
	wsHandler *gateway.WebSocket,
	probe *health.Probe,
	logger clog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		chatSvc:     chatSvc,
		dmSvc:       dmSvc,
		notifySvc:   notifySvc,
		identitySvc: identitySvc,
		router:      router,
		fan:         fan,
		wsHandler:   wsHandler,
		probe:       probe,
		logger:      logger,
		authConfig:  middleware.NewAuthConfig(identitySvc, logger),
	}
}

// RequireAuthMiddleware 提供给外部路由使用的认证中间件
func (h *HTTPHandler) RequireAuthMiddleware() gin.HandlerFunc {
	return h.authConfig.RequireAuth()
}

// writeError 按错误类别映射 HTTP 状态码
func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	switch {
	case service.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case service.IsForbidden(err):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		h.logger.Error("request failed",
			clog.String("path", c.FullPath()),
			clog.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// pathID 解析路径参数中的数字 ID
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// queryLimit 解析 limit 参数，越界时回落到默认值
func queryLimit(c *gin.Context, defaultLimit, maxLimit int) int {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxLimit {
		return defaultLimit
	}
	return limit
}

// ==================== 认证 ====================

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 邮箱密码登录，签发 JWT
func (h *HTTPHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	token, user, err := h.identitySvc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		// 凭证错误统一返回 401，不区分账号不存在和密码错误
		if service.IsForbidden(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken": token,
		"user":        toUserPayload(user),
	})
}

type syncUserRequest struct {
	ClerkID     string `json:"clerkId" binding:"required"`
	DisplayName string `json:"displayName" binding:"required"`
	Email       string `json:"email" binding:"required"`
	AvatarURL   string `json:"avatarUrl"`
}

// SyncUser 按外部身份标识幂等地创建或更新用户
func (h *HTTPHandler) SyncUser(c *gin.Context) {
	var req syncUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	user, err := h.identitySvc.SyncUser(c.Request.Context(), req.ClerkID, req.DisplayName, req.Email, req.AvatarURL)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toUserPayload(user))
}

// ==================== 频道消息 ====================

// ListChannelMessages 拉取频道历史消息
func (h *HTTPHandler) ListChannelMessages(c *gin.Context) {
	channelID, ok := pathID(c, "channelId")
	if !ok {
		return
	}
	userID := middleware.MustGetUserID(c)
	limit := queryLimit(c, 50, 200)

	messages, err := h.chatSvc.ListChannelMessages(c.Request.Context(), channelID, userID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// ListThreadReplies 拉取消息的线程回复
func (h *HTTPHandler) ListThreadReplies(c *gin.Context) {
	messageID, ok := pathID(c, "messageId")
	if !ok {
		return
	}
	userID := middleware.MustGetUserID(c)

	replies, err := h.chatSvc.ListThreadReplies(c.Request.Context(), messageID, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"replies": replies})
}

// ListChannels 列出工作区下的频道
func (h *HTTPHandler) ListChannels(c *gin.Context) {
	workspaceID, err := strconv.ParseInt(c.Query("workspaceId"), 10, 64)
	if err != nil || workspaceID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid workspaceId"})
		return
	}
	userID := middleware.MustGetUserID(c)

	channels, err := h.chatSvc.ListChannels(c.Request.Context(), workspaceID, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	payload := make([]gin.H, 0, len(channels))
	for _, ch := range channels {
		payload = append(payload, toChannelPayload(ch))
	}
	c.JSON(http.StatusOK, gin.H{"channels": payload})
}

// GetWorkspace 按 slug 获取工作区
func (h *HTTPHandler) GetWorkspace(c *gin.Context) {
	slug := c.Param("slug")
	if slug == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid slug"})
		return
	}
	userID := middleware.MustGetUserID(c)

	ws, err := h.chatSvc.GetWorkspaceBySlug(c.Request.Context(), slug, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toWorkspacePayload(ws))
}

// ToggleReaction切换点赞反应
// 成功后向频道主题广播计数变化，新增反应时入队通知任务
func (h *HTTPHandler) ToggleReaction(c *gin.Context) {
	messageID, ok := pathID(c, "messageId")
	if !ok {
		return
	}
	userID := middleware.MustGetUserID(c)
	ctx := c.Request.Context()

	update, task, err := h.chatSvc.ToggleReaction(ctx, messageID, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.router.Publish(model.TopicChannel(update.ChannelID), update); err != nil {
		h.logger.WarnContext(ctx, "反应更新广播失败",
			clog.Int64("message_id", messageID),
			clog.Error(err),
		)
	}

	if task != nil {
		if err := h.fan.Enqueue(task); err != nil {
			h.logger.WarnContext(ctx, "反应通知入队失败",
				clog.Int64("message_id", messageID),
				clog.Error(err),
			)
		}
	}

	c.JSON(http.StatusOK, update)
}

// DeleteMessage 删除消息（仅管理员）
// 成功后向频道主题广播删除事件
func (h *HTTPHandler) DeleteMessage(c *gin.Context) {
	messageID, ok := pathID(c, "messageId")
	if !ok {
		return
	}
	userID := middleware.MustGetUserID(c)
	ctx := c.Request.Context()

	deleted, err := h.chatSvc.DeleteMessage(ctx, messageID, userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.router.Publish(model.TopicChannel(deleted.ChannelID), deleted); err != nil {
		h.logger.WarnContext(ctx, "删除事件广播失败",
			clog.Int64("message_id", messageID),
			clog.Error(err),
		)
	}

	c.JSON(http.StatusOK, deleted)
}

// ==================== 私信 ====================

type sendDMRequest struct {
	RecipientID int64  `json:"recipientId,string" binding:"required"`
	Content     string `json:"content" binding:"required"`
	Type        string `json:"type"`
}

// SendDirectMessage 发送私信
// 持久化后广播到双方的私信主题，并入队接收方通知
func (h *HTTPHandler) SendDirectMessage(c *gin.Context) {
	var req sendDMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	senderID := middleware.MustGetUserID(c)
	ctx := c.Request.Context()

	payload, task, err := h.dmSvc.SendDirectMessage(ctx, senderID, req.RecipientID, req.Content, req.Type)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.router.Publish(model.TopicDM(payload.RecipientID), payload); err != nil {
		h.logger.WarnContext(ctx, "私信广播失败", clog.Error(err))
	}
	if payload.SenderID != payload.RecipientID {
		if err := h.router.Publish(model.TopicDM(payload.SenderID), payload); err != nil {
			h.logger.WarnContext(ctx, "私信回显广播失败", clog.Error(err))
		}
	}

	if task != nil {
		if err := h.fan.Enqueue(task); err != nil {
			h.logger.WarnContext(ctx, "私信通知入队失败", clog.Error(err))
		}
	}

	c.JSON(http.StatusOK, payload)
}

// GetConversation 拉取与某个用户的私信会话
func (h *HTTPHandler) GetConversation(c *gin.Context) {
	partnerID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	userID := middleware.MustGetUserID(c)
	limit := queryLimit(c, 50, 200)

	messages, err := h.dmSvc.GetConversation(c.Request.Context(), userID, partnerID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// ListConversations 列出有私信往来的用户
func (h *HTTPHandler) ListConversations(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	partners, err := h.dmSvc.ListConversations(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	payloads := make([]gin.H, 0, len(partners))
	for _, partner := range partners {
		payloads = append(payloads, toUserPayload(partner))
	}

	c.JSON(http.StatusOK, gin.H{"conversations": payloads})
}

// ==================== 通知 ====================

// ListNotifications 列出最近通知
func (h *HTTPHandler) ListNotifications(c *gin.Context) {
	userID := middleware.MustGetUserID(c)
	limit := queryLimit(c, 50, 200)

	notifications, err := h.notifySvc.List(c.Request.Context(), userID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// ListUnreadNotifications 列出未读通知
func (h *HTTPHandler) ListUnreadNotifications(c *gin.Context) {
	userID := middleware.MustGetUserID(c)
	limit := queryLimit(c, 50, 200)

	notifications, err := h.notifySvc.ListUnread(c.Request.Context(), userID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

// CountUnreadNotifications 返回未读通知数
func (h *HTTPHandler) CountUnreadNotifications(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	count, err := h.notifySvc.CountUnread(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkNotificationRead 将单条通知标记为已读
func (h *HTTPHandler) MarkNotificationRead(c *gin.Context) {
	notificationID, ok := pathID(c, "notificationId")
	if !ok {
		return
	}
	userID := middleware.MustGetUserID(c)

	if err := h.notifySvc.MarkRead(c.Request.Context(), notificationID, userID); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// MarkAllNotificationsRead 将全部通知标记为已读
func (h *HTTPHandler) MarkAllNotificationsRead(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	affected, err := h.notifySvc.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"marked": affected})
}

// ==================== WebSocket / 健康检查 ====================

// ServeWS 升级 WebSocket 连接，认证由升级流程内部完成
func (h *HTTPHandler) ServeWS(c *gin.Context) {
	h.wsHandler.HandleWebSocket(c.Writer, c.Request)
}

// Liveness 存活探针
func (h *HTTPHandler) Liveness(c *gin.Context) {
	h.probe.LivenessHandler()(c.Writer, c.Request)
}

// Readiness 就绪探针
func (h *HTTPHandler) Readiness(c *gin.Context) {
	h.probe.ReadinessHandler()(c.Writer, c.Request)
}

// toUserPayload 构造用户的对外表示，不暴露密码散列和封禁标记之外的内部字段
func toChannelPayload(ch *model.Channel) gin.H {
	return gin.H{
		"id":          strconv.FormatInt(ch.ID, 10),
		"workspaceId": strconv.FormatInt(ch.WorkspaceID, 10),
		"name":        ch.Name,
		"description": ch.Description,
	}
}

func toWorkspacePayload(ws *model.Workspace) gin.H {
	return gin.H{
		"id":          strconv.FormatInt(ws.ID, 10),
		"slug":        ws.Slug,
		"name":        ws.Name,
		"description": ws.Description,
	}
}

func toUserPayload(user *model.User) gin.H {
	return gin.H{
		"id":          strconv.FormatInt(user.ID, 10),
		"clerkId":     user.ClerkID,
		"displayName": user.DisplayName,
		"email":       user.Email,
		"avatarUrl":   user.AvatarURL,
		"isAdmin":     user.IsAdmin,
	}
}
