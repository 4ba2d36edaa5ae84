package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/buzzlink/service"
	"github.com/ceyewan/genesis/clog"
	"github.com/gin-gonic/gin"
)

// 上下文键
const (
	// UserKey 认证中间件解析出的 *model.User
	UserKey = "auth_user"
	// UserIDKey 认证用户的内部 ID
	UserIDKey = "auth_user_id"
)

// ErrMissingToken 请求未携带令牌
var ErrMissingToken = errors.New("missing token")

// AuthConfig 认证中间件配置
type AuthConfig struct {
	identitySvc *service.IdentityService
	logger      clog.Logger
}

// NewAuthConfig 创建认证配置
func NewAuthConfig(identitySvc *service.IdentityService, logger clog.Logger) *AuthConfig {
	return &AuthConfig{
		identitySvc: identitySvc,
		logger:      logger.WithNamespace("auth"),
	}
}

// RequireAuth 强制认证中间件
// 解析 Bearer 令牌（或 query 参数 token），失败返回 401；封禁用户返回 403
func (a *AuthConfig) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		user, err := a.identitySvc.ValidateToken(c.Request.Context(), token)
		if err != nil {
			if service.IsForbidden(err) {
				a.logger.Warn("封禁用户的请求被拒绝", clog.String("path", c.FullPath()))
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UserKey, user)
		c.Set(UserIDKey, user.ID)
		c.Next()
	}
}

// extractToken 从 Authorization 头或 query 参数提取令牌
func extractToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return c.Query("token")
}

// GetUser 从上下文获取认证用户
func GetUser(c *gin.Context) (*model.User, bool) {
	value, ok := c.Get(UserKey)
	if !ok {
		return nil, false
	}
	user, ok := value.(*model.User)
	return user, ok
}

// GetUserID 从上下文获取认证用户 ID
func GetUserID(c *gin.Context) (int64, bool) {
	value, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(int64)
	return id, ok
}

// MustGetUserID 从上下文获取认证用户 ID，缺失说明中间件配置错误
func MustGetUserID(c *gin.Context) int64 {
	id, ok := GetUserID(c)
	if !ok {
		panic("auth middleware not applied")
	}
	return id
}
