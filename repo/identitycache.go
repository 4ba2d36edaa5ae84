package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/genesis/cache"
	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/connector"
)

// IdentityCache 身份解析缓存接口
// 外部身份 ID 到内部用户的映射命中率很高，放在 Redis 中挡掉热路径上的数据库查询
type IdentityCache interface {
	// SetUser 写入身份映射
	SetUser(ctx context.Context, user *model.User) error
	// GetUser 读取身份映射；key 不存在时返回错误
	GetUser(ctx context.Context, clerkID string) (*model.User, error)
	// DeleteUser 删除身份映射（封禁、资料变更后失效）
	DeleteUser(ctx context.Context, clerkID string) error
	// Close 关闭资源
	Close() error
}

// 确保 identityCache 实现了 IdentityCache 接口
var _ IdentityCache = (*identityCache)(nil)

// identityCache IdentityCache 的 Redis 实现
type identityCache struct {
	cache  cache.Cache
	logger clog.Logger
	ttl    time.Duration
}

// IdentityCacheOption 配置选项
type IdentityCacheOption func(*identityCacheOptions)

type identityCacheOptions struct {
	logger clog.Logger
	ttl    time.Duration
}

// WithIdentityCacheLogger 设置日志记录器
func WithIdentityCacheLogger(logger clog.Logger) IdentityCacheOption {
	return func(o *identityCacheOptions) {
		o.logger = logger
	}
}

// WithIdentityCacheTTL 设置缓存过期时间
func WithIdentityCacheTTL(ttl time.Duration) IdentityCacheOption {
	return func(o *identityCacheOptions) {
		o.ttl = ttl
	}
}

// NewIdentityCache 创建 IdentityCache 实例
func NewIdentityCache(redisConn connector.RedisConnector, opts ...IdentityCacheOption) (IdentityCache, error) {
	options := &identityCacheOptions{
		ttl: 15 * time.Minute,
	}
	for _, opt := range opts {
		opt(options)
	}

	// 创建 cache 实例，使用 JSON 序列化
	cacheInstance, err := cache.New(&cache.Config{
		Driver:     cache.DriverRedis,
		Prefix:     "buzzlink:identity:",
		Serializer: "json",
	}, cache.WithRedisConnector(redisConn), cache.WithLogger(options.logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create cache instance: %w", err)
	}

	var logger clog.Logger
	if options.logger != nil {
		logger = options.logger.WithNamespace("identity_cache")
	} else {
		logger, _ = clog.New(&clog.Config{
			Level:  "info",
			Format: "json",
			Output: "/dev/null",
		})
		logger = logger.WithNamespace("identity_cache")
	}

	return &identityCache{
		cache:  cacheInstance,
		logger: logger,
		ttl:    options.ttl,
	}, nil
}

// SetUser 写入身份映射
func (c *identityCache) SetUser(ctx context.Context, user *model.User) error {
	if user == nil {
		return fmt.Errorf("user cannot be nil")
	}
	if user.ClerkID == "" {
		return fmt.Errorf("clerk_id cannot be empty")
	}

	if err := c.cache.Set(ctx, c.buildKey(user.ClerkID), user, c.ttl); err != nil {
		c.logger.ErrorContext(ctx, "写入身份缓存失败",
			clog.String("clerk_id", user.ClerkID),
			clog.Error(err))
		return fmt.Errorf("failed to set identity cache: %w", err)
	}
	return nil
}

// GetUser 读取身份映射
func (c *identityCache) GetUser(ctx context.Context, clerkID string) (*model.User, error) {
	if clerkID == "" {
		return nil, fmt.Errorf("clerk_id cannot be empty")
	}

	var user model.User
	if err := c.cache.Get(ctx, c.buildKey(clerkID), &user); err != nil {
		// key 不存在也走这条路径，调用方回源数据库
		c.logger.DebugContext(ctx, "身份缓存未命中",
			clog.String("clerk_id", clerkID),
			clog.Error(err))
		return nil, fmt.Errorf("failed to get identity cache: %w", err)
	}
	return &user, nil
}

// DeleteUser 删除身份映射
func (c *identityCache) DeleteUser(ctx context.Context, clerkID string) error {
	if clerkID == "" {
		return fmt.Errorf("clerk_id cannot be empty")
	}

	if err := c.cache.Delete(ctx, c.buildKey(clerkID)); err != nil {
		c.logger.ErrorContext(ctx, "删除身份缓存失败",
			clog.String("clerk_id", clerkID),
			clog.Error(err))
		return fmt.Errorf("failed to delete identity cache: %w", err)
	}
	return nil
}

func (c *identityCache) buildKey(clerkID string) string {
	return fmt.Sprintf("user:%s", clerkID)
}

// Close 关闭资源
func (c *identityCache) Close() error {
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}
