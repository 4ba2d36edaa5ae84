package repo

import (
	"context"
	"fmt"

	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/db"
	"gorm.io/gorm"
)

// ChannelRepoOption 配置 ChannelRepo 的选项
type ChannelRepoOption func(*channelRepoOptions)

type channelRepoOptions struct {
	logger clog.Logger
}

// WithChannelRepoLogger 设置日志记录器
func WithChannelRepoLogger(logger clog.Logger) ChannelRepoOption {
	return func(o *channelRepoOptions) {
		o.logger = logger
	}
}

// channelRepo 实现 ChannelRepo 接口
type channelRepo struct {
	db     db.DB
	logger clog.Logger
}

// NewChannelRepo 创建 ChannelRepo 实例
func NewChannelRepo(database db.DB, opts ...ChannelRepoOption) (ChannelRepo, error) {
	if database == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}

	options := &channelRepoOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// 提供默认 logger
	var logger clog.Logger
	if options.logger != nil {
		logger = options.logger.WithNamespace("channel_repo")
	} else {
		var err error
		logger, err = clog.New(&clog.Config{
			Level:  "info",
			Format: "json",
			Output: "/dev/null",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create default logger: %w", err)
		}
		logger = logger.WithNamespace("channel_repo")
	}

	return &channelRepo{
		db:     database,
		logger: logger,
	}, nil
}

// CreateChannel 创建频道
func (r *channelRepo) CreateChannel(ctx context.Context, ch *model.Channel) error {
	if ch == nil {
		return fmt.Errorf("channel cannot be nil")
	}
	if ch.ID == 0 {
		return fmt.Errorf("channel id cannot be zero")
	}
	if ch.Name == "" {
		return fmt.Errorf("channel name cannot be empty")
	}
	if ch.WorkspaceID == 0 {
		return fmt.Errorf("workspace_id cannot be zero")
	}

	gormDB := r.db.DB(ctx)
	if err := gormDB.Create(ch).Error; err != nil {
		r.logger.Error("创建频道失败",
			clog.Int64("workspace_id", ch.WorkspaceID),
			clog.String("name", ch.Name),
			clog.Error(err))
		return fmt.Errorf("failed to create channel: %w", err)
	}
	return nil
}

// GetChannel 按 ID 获取频道
func (r *channelRepo) GetChannel(ctx context.Context, id int64) (*model.Channel, error) {
	if id == 0 {
		return nil, fmt.Errorf("channel id cannot be zero")
	}

	var ch model.Channel
	gormDB := r.db.DB(ctx)
	if err := gormDB.Where("id = ?", id).First(&ch).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("channel %d: %w", id, gorm.ErrRecordNotFound)
		}
		r.logger.Error("获取频道失败", clog.Int64("channel_id", id), clog.Error(err))
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}
	return &ch, nil
}

// ListChannels 列出工作区下的全部频道
func (r *channelRepo) ListChannels(ctx context.Context, workspaceID int64) ([]*model.Channel, error) {
	if workspaceID == 0 {
		return nil, fmt.Errorf("workspace_id cannot be zero")
	}

	var channels []*model.Channel
	gormDB := r.db.DB(ctx)
	if err := gormDB.Where("workspace_id = ?", workspaceID).
		Order("name ASC").
		Find(&channels).Error; err != nil {
		r.logger.Error("列出频道失败",
			clog.Int64("workspace_id", workspaceID),
			clog.Error(err))
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}
