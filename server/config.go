package server

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ceyewan/buzzlink/gateway"
	"github.com/ceyewan/buzzlink/observability"
	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/config"
	"github.com/ceyewan/genesis/connector"
	"github.com/ceyewan/genesis/idgen"
)

// Config 服务配置
type Config struct {
	// 服务基础配置
	Service struct {
		Name     string `mapstructure:"name"`      // 服务名称
		Host     string `mapstructure:"host"`      // 服务主机名（环境变量 HOSTNAME）
		HTTPPort int    `mapstructure:"http_port"` // HTTP 服务端口
	} `mapstructure:"service"`

	// 基础组件配置
	Log        clog.Config                `mapstructure:"log"`      // 日志配置
	PostgreSQL connector.PostgreSQLConfig `mapstructure:"postgres"` // PostgreSQL 配置
	Redis      connector.RedisConfig      `mapstructure:"redis"`    // Redis 配置

	// ID 生成器配置
	IDGen idgen.SnowflakeConfig `mapstructure:"idgen"` // Snowflake ID 生成器配置

	// 认证配置
	Auth AuthConfig `mapstructure:"auth"`

	// WebSocket 配置
	WSConfig WSConfig `mapstructure:"ws_config"`

	// 通知扩散配置
	Fanout FanoutConfig `mapstructure:"fanout"`

	// WorkerID 配置
	WorkerID WorkerIDConfig `mapstructure:"worker_id"`

	// 可观测性配置
	Observability observability.Config `mapstructure:"observability"`
}

// WorkerIDConfig WorkerID 分发配置
type WorkerIDConfig struct {
	MaxID int `mapstructure:"max_id"` // 最大 ID 范围 [0, max_id)
}

// GetMaxID 获取最大 ID，默认 1024
func (c *WorkerIDConfig) GetMaxID() int {
	if c.MaxID <= 0 {
		return 1024
	}
	return c.MaxID
}

// AuthConfig 认证相关配置
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"` // JWT 签名密钥
	TokenTTL  time.Duration `mapstructure:"token_ttl"`  // 令牌有效期
}

// WSConfig WebSocket 相关配置
type WSConfig struct {
	ReadBufferSize  int `mapstructure:"read_buffer_size"`  // 读缓冲区大小
	WriteBufferSize int `mapstructure:"write_buffer_size"` // 写缓冲区大小
	MaxMessageSize  int `mapstructure:"max_message_size"`  // 最大消息大小（KB）
	PingInterval    int `mapstructure:"ping_interval"`     // 心跳间隔（秒）
	PongTimeout     int `mapstructure:"pong_timeout"`      // 心跳超时（秒）
}

// ToGatewayConfig 转换为 gateway.WSConfig，零值回落到默认配置
func (c *WSConfig) ToGatewayConfig() *gateway.WSConfig {
	cfg := gateway.DefaultWSConfig()
	if c.ReadBufferSize > 0 {
		cfg.ReadBufferSize = c.ReadBufferSize
	}
	if c.WriteBufferSize > 0 {
		cfg.WriteBufferSize = c.WriteBufferSize
	}
	if c.MaxMessageSize > 0 {
		cfg.MaxMessageSize = int64(c.MaxMessageSize)
	}
	if c.PingInterval > 0 {
		cfg.PingInterval = c.PingInterval
	}
	if c.PongTimeout > 0 {
		cfg.PongTimeout = c.PongTimeout
	}
	return cfg
}

// FanoutConfig 通知扩散工作器配置
type FanoutConfig struct {
	QueueSize int `mapstructure:"queue_size"` // 任务队列容量
	Workers   int `mapstructure:"workers"`    // worker 数量
}

// GetHost 获取服务主机名，优先使用配置，其次环境变量 HOSTNAME，最后 "localhost"
func (c *Config) GetHost() string {
	if c.Service.Host != "" {
		return c.Service.Host
	}
	if host := os.Getenv("HOSTNAME"); host != "" {
		return host
	}
	return "localhost"
}

// GetHTTPPort 获取 HTTP 端口
func (c *Config) GetHTTPPort() int {
	if c.Service.HTTPPort > 0 && c.Service.HTTPPort < 65536 {
		return c.Service.HTTPPort
	}
	return 8080
}

// GetHTTPAddr 获取 HTTP 绑定地址
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.GetHTTPPort())
}

// Load 创建并加载服务配置（无参数）
// 配置加载顺序：环境变量 > .env > buzzlink.{env}.yaml > buzzlink.yaml
func Load() (*Config, error) {
	loader, err := config.New(&config.Config{
		Name:     "buzzlink",
		FileType: "yaml",
	},
		config.WithConfigName("buzzlink"),
		config.WithConfigPaths("./configs"),
		config.WithEnvPrefix("BUZZLINK"),
	)
	if err != nil {
		return nil, err
	}

	// 必须先 Load 才能读取配置
	ctx := context.Background()
	if err := loader.Load(ctx); err != nil {
		return nil, err
	}

	var cfg Config
	if err := loader.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// 在 debug 模式下，打印最终生效的配置
	if os.Getenv("DEBUG_CONFIG") == "true" || os.Getenv("BUZZLINK_DEBUG_CONFIG") == "true" {
		dumpConfig(&cfg)
	}

	return &cfg, nil
}

// dumpConfig 以 JSON 格式打印配置（脱敏敏感字段）
func dumpConfig(cfg *Config) {
	// 创建配置副本用于脱敏
	sanitized := *cfg
	if sanitized.Redis.Password != "" {
		sanitized.Redis.Password = "***"
	}
	if sanitized.PostgreSQL.Password != "" {
		sanitized.PostgreSQL.Password = "***"
	}
	if sanitized.Auth.JWTSecret != "" {
		sanitized.Auth.JWTSecret = "***"
	}

	data, _ := json.MarshalIndent(sanitized, "", "  ")
	fmt.Fprintf(os.Stderr, "\n=== Buzzlink Configuration ===\n%s\n=== End of Configuration ===\n\n", data)
}
