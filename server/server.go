// Package server 负责服务的组装与生命周期：加载配置、建立连接、
// 装配仓储/服务/网关组件、启动 HTTP 服务并优雅退出。
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/connector"
	"github.com/ceyewan/genesis/db"
	"github.com/ceyewan/genesis/idgen"
	"github.com/ceyewan/genesis/ratelimit"
	"github.com/ceyewan/genesis/xerrors"
	"github.com/gin-gonic/gin"

	"github.com/ceyewan/buzzlink/api"
	"github.com/ceyewan/buzzlink/fanout"
	"github.com/ceyewan/buzzlink/gateway"
	"github.com/ceyewan/buzzlink/observability"
	"github.com/ceyewan/buzzlink/pkg/health"
	"github.com/ceyewan/buzzlink/repo"
	"github.com/ceyewan/buzzlink/service"
)

// Server 服务生命周期管理器
type Server struct {
	config *Config
	logger clog.Logger

	// 基础组件
	postgresConn connector.PostgreSQLConnector
	redisConn    connector.RedisConnector
	database     db.DB
	idGen        idgen.Int64Generator
	traceGen     idgen.Generator

	// 仓储层
	userRepo         repo.UserRepo
	workspaceRepo    repo.WorkspaceRepo
	channelRepo      repo.ChannelRepo
	messageRepo      repo.MessageRepo
	dmRepo           repo.DirectMessageRepo
	notificationRepo repo.NotificationRepo
	identityCache    repo.IdentityCache

	// 网关核心组件
	router   *gateway.Router
	presence *gateway.Presence
	connMgr  *gateway.Manager
	fan      *fanout.Fanout

	// 服务层
	chatSvc     *service.ChatService
	dmSvc       *service.DMService
	notifySvc   *service.NotifyService
	identitySvc *service.IdentityService

	// HTTP 服务
	httpServer  *http.Server
	listener    net.Listener
	healthProbe *health.Probe

	ctx    context.Context
	cancel context.CancelFunc
}

// New 创建 Server 实例
func New() (*Server, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	// 初始化可观测性（Trace + Metrics），Logger 带 Trace Context 支持
	if err := observability.Init(&cfg.Observability); err != nil {
		return nil, fmt.Errorf("failed to init observability: %w", err)
	}

	logger, err := observability.NewLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:      cfg,
		logger:      logger,
		healthProbe: health.NewProbe(),
		ctx:         ctx,
		cancel:      cancel,
	}

	if err := s.initComponents(); err != nil {
		s.Close()
		return nil, err
	}

	if err := s.initServices(); err != nil {
		s.Close()
		return nil, err
	}

	if err := s.initHTTPServer(); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// initComponents 初始化基础组件和仓储层
func (s *Server) initComponents() error {
	var err error

	// 初始化 PostgreSQL 连接
	s.postgresConn, err = connector.NewPostgreSQL(&s.config.PostgreSQL, connector.WithLogger(s.logger))
	if err != nil {
		return xerrors.Wrapf(err, "failed to create postgresql connector")
	}

	s.database, err = db.New(&db.Config{Driver: "postgresql"},
		db.WithPostgreSQLConnector(s.postgresConn),
		db.WithLogger(s.logger),
	)
	if err != nil {
		return xerrors.Wrapf(err, "failed to create db")
	}

	// 初始化 Redis 连接
	s.redisConn, err = connector.NewRedis(&s.config.Redis, connector.WithLogger(s.logger))
	if err != nil {
		return xerrors.Wrapf(err, "failed to create redis connector")
	}
	if err := s.redisConn.Connect(s.ctx); err != nil {
		return xerrors.Wrapf(err, "failed to connect redis")
	}

	// 初始化 ID 生成器（使用 Redis 协调 WorkerID）
	s.idGen, err = idgen.NewSnowflake(&s.config.IDGen, s.redisConn, nil, idgen.WithLogger(s.logger))
	if err != nil {
		return xerrors.Wrapf(err, "failed to create id generator")
	}

	// 从 Redis 分配 workerID，构造请求 trace_id 的生成器
	allocator, err := idgen.NewAllocator(&idgen.AllocatorConfig{
		Driver: "redis",
		MaxID:  s.config.WorkerID.GetMaxID(),
	}, idgen.WithRedisConnector(s.redisConn))
	if err != nil {
		return xerrors.Wrapf(err, "failed to create workerID allocator")
	}
	workerID, err := allocator.Allocate(s.ctx)
	if err != nil {
		return xerrors.Wrapf(err, "failed to allocate workerID")
	}

	// 监听 workerID 保活失败
	go func() {
		if err := <-allocator.KeepAlive(s.ctx); err != nil {
			s.logger.Error("workerID keepalive failed, shutting down", clog.Error(err))
			s.cancel()
		}
	}()

	s.traceGen, err = idgen.NewGenerator(&idgen.GeneratorConfig{WorkerID: workerID})
	if err != nil {
		return xerrors.Wrapf(err, "failed to create trace id generator")
	}

	// 初始化仓储层
	if s.userRepo, err = repo.NewUserRepo(s.database, repo.WithUserRepoLogger(s.logger)); err != nil {
		return xerrors.Wrapf(err, "failed to create user repo")
	}
	if s.workspaceRepo, err = repo.NewWorkspaceRepo(s.database, repo.WithWorkspaceRepoLogger(s.logger)); err != nil {
		return xerrors.Wrapf(err, "failed to create workspace repo")
	}
	if s.channelRepo, err = repo.NewChannelRepo(s.database, repo.WithChannelRepoLogger(s.logger)); err != nil {
		return xerrors.Wrapf(err, "failed to create channel repo")
	}
	if s.messageRepo, err = repo.NewMessageRepo(s.database, repo.WithMessageRepoLogger(s.logger)); err != nil {
		return xerrors.Wrapf(err, "failed to create message repo")
	}
	if s.dmRepo, err = repo.NewDirectMessageRepo(s.database, repo.WithDirectMessageRepoLogger(s.logger)); err != nil {
		return xerrors.Wrapf(err, "failed to create direct message repo")
	}
	if s.notificationRepo, err = repo.NewNotificationRepo(s.database, repo.WithNotificationRepoLogger(s.logger)); err != nil {
		return xerrors.Wrapf(err, "failed to create notification repo")
	}
	if s.identityCache, err = repo.NewIdentityCache(s.redisConn, repo.WithIdentityCacheLogger(s.logger)); err != nil {
		return xerrors.Wrapf(err, "failed to create identity cache")
	}

	return nil
}

// initServices 初始化网关核心组件和服务层
func (s *Server) initServices() error {
	s.router = gateway.NewRouter(s.logger)
	s.presence = gateway.NewPresence(s.logger)
	s.connMgr = gateway.NewManager(s.logger)

	var fanOpts []fanout.Option
	if s.config.Fanout.QueueSize > 0 {
		fanOpts = append(fanOpts, fanout.WithQueueSize(s.config.Fanout.QueueSize))
	}
	if s.config.Fanout.Workers > 0 {
		fanOpts = append(fanOpts, fanout.WithWorkers(s.config.Fanout.Workers))
	}
	fan, err := fanout.New(s.notificationRepo, s.idGen, s.router, s.logger, fanOpts...)
	if err != nil {
		return xerrors.Wrapf(err, "failed to create fanout worker")
	}
	s.fan = fan

	s.chatSvc = service.NewChatService(
		s.userRepo,
		s.workspaceRepo,
		s.channelRepo,
		s.messageRepo,
		s.idGen,
		s.logger,
	)

	s.dmSvc = service.NewDMService(s.userRepo, s.dmRepo, s.idGen, s.logger)

	s.notifySvc = service.NewNotifyService(s.notificationRepo, s.router, s.logger)

	var identityOpts []service.IdentityOption
	if s.config.Auth.TokenTTL > 0 {
		identityOpts = append(identityOpts, service.WithTokenTTL(s.config.Auth.TokenTTL))
	}
	s.identitySvc = service.NewIdentityService(
		s.userRepo,
		s.identityCache,
		s.idGen,
		s.config.Auth.JWTSecret,
		s.logger,
		identityOpts...,
	)

	return nil
}

// initHTTPServer 装配 HTTP 路由和中间件
func (s *Server) initHTTPServer() error {
	dispatcher := gateway.NewDispatcher(
		s.router,
		s.presence,
		s.chatSvc,
		s.dmSvc,
		s.fan,
		s.logger,
	)

	wsHandler := gateway.NewWebSocket(
		s.identitySvc,
		dispatcher,
		s.connMgr,
		s.router,
		s.presence,
		s.config.WSConfig.ToGatewayConfig(),
		s.logger,
	)

	limiter, err := ratelimit.NewStandalone(nil, ratelimit.WithLogger(s.logger))
	if err != nil {
		return xerrors.Wrapf(err, "failed to create rate limiter")
	}
	middlewares := api.NewMiddlewares(s.logger, limiter, s.traceGen)

	apiHandler := api.NewHTTPHandler(
		s.chatSvc,
		s.dmSvc,
		s.notifySvc,
		s.identitySvc,
		s.router,
		s.fan,
		wsHandler,
		s.healthProbe,
		s.logger,
	)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	apiHandler.RegisterRoutes(engine, middlewares.RouteOptions()...)

	s.httpServer = &http.Server{
		Addr:         s.config.GetHTTPAddr(),
		Handler:      engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return nil
}

// Run 启动 HTTP 服务（非阻塞）
func (s *Server) Run() error {
	s.logger.Info("starting server",
		clog.String("name", s.config.Service.Name),
		clog.String("addr", s.httpServer.Addr),
	)

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return xerrors.Wrapf(err, "failed to listen on %s", s.httpServer.Addr)
	}
	s.listener = ln

	s.healthProbe.SetShutdown(false)
	s.healthProbe.SetReady(true)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server stopped unexpectedly", clog.Error(err))
		}
	}()

	s.logger.Info("server started", clog.String("addr", s.httpServer.Addr))
	return nil
}

// Close 优雅关闭：停止接收新请求，断开连接，排空通知队列，释放资源
func (s *Server) Close() error {
	s.logger.Info("shutting down server...")

	if s.healthProbe != nil {
		s.healthProbe.SetReady(false)
		s.healthProbe.SetShutdown(true)
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("http server shutdown error", clog.Error(err))
		}
	}

	if s.connMgr != nil {
		if err := s.connMgr.Close(); err != nil {
			s.logger.Error("connection manager close error", clog.Error(err))
		}
	}

	if s.fan != nil {
		if err := s.fan.Close(); err != nil {
			s.logger.Error("fanout close error", clog.Error(err))
		}
	}

	s.cancel()

	if s.database != nil {
		if err := s.database.Close(); err != nil {
			s.logger.Error("db close error", clog.Error(err))
		}
	}
	if s.redisConn != nil {
		if err := s.redisConn.Close(); err != nil {
			s.logger.Error("redis close error", clog.Error(err))
		}
	}
	if s.postgresConn != nil {
		if err := s.postgresConn.Close(); err != nil {
			s.logger.Error("postgres close error", clog.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := observability.Shutdown(ctx); err != nil {
		s.logger.Error("observability shutdown error", clog.Error(err))
	}

	s.logger.Info("server stopped")
	return nil
}
