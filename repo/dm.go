package repo

import (
	"context"
	"fmt"

	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/db"
)

// DirectMessageRepoOption 配置 DirectMessageRepo 的选项
type DirectMessageRepoOption func(*directMessageRepoOptions)

type directMessageRepoOptions struct {
	logger clog.Logger
}

// WithDirectMessageRepoLogger 设置日志记录器
func WithDirectMessageRepoLogger(logger clog.Logger) DirectMessageRepoOption {
	return func(o *directMessageRepoOptions) {
		o.logger = logger
	}
}

// directMessageRepo 实现 DirectMessageRepo 接口
type directMessageRepo struct {
	db     db.DB
	logger clog.Logger
}

// NewDirectMessageRepo 创建 DirectMessageRepo 实例
func NewDirectMessageRepo(database db.DB, opts ...DirectMessageRepoOption) (DirectMessageRepo, error) {
	if database == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}

	options := &directMessageRepoOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// 提供默认 logger
	var logger clog.Logger
	if options.logger != nil {
		logger = options.logger.WithNamespace("dm_repo")
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
		logger = logger.WithNamespace("dm_repo")
	}

	return &directMessageRepo{
		db:     database,
		logger: logger,
	}, nil
}

// SaveDirectMessage 保存私信
func (r *directMessageRepo) SaveDirectMessage(ctx context.Context, dm *model.DirectMessage) error {
	if dm == nil {
		return fmt.Errorf("direct message cannot be nil")
	}
	if dm.ID == 0 {
		return fmt.Errorf("direct message id cannot be zero")
	}
	if dm.SenderID == 0 || dm.RecipientID == 0 {
		return fmt.Errorf("sender_id and recipient_id cannot be zero")
	}

	gormDB := r.db.DB(ctx)
	if err := gormDB.Create(dm).Error; err != nil {
		r.logger.Error("保存私信失败",
			clog.Int64("sender_id", dm.SenderID),
			clog.Int64("recipient_id", dm.RecipientID),
			clog.Error(err))
		return fmt.Errorf("failed to save direct message: %w", err)
	}

	r.logger.Debug("保存私信成功",
		clog.Int64("dm_id", dm.ID),
		clog.Int64("sender_id", dm.SenderID),
		clog.Int64("recipient_id", dm.RecipientID))
	return nil
}

// GetConversation 拉取两个用户之间的私信
// 为了高效拿“最近 limit 条”，先倒序取，再在内存反转为升序输出。
func (r *directMessageRepo) GetConversation(ctx context.Context, userA, userB int64, limit int) ([]*model.DirectMessage, error) {
	if userA == 0 || userB == 0 {
		return nil, fmt.Errorf("user ids cannot be zero")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	var messages []*model.DirectMessage
	gormDB := r.db.DB(ctx)
	if err := gormDB.Where(
		"(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)",
		userA, userB, userB, userA).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		r.logger.Error("拉取私信会话失败",
			clog.Int64("user_a", userA),
			clog.Int64("user_b", userB),
			clog.Error(err))
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// ListPartnerIDs 列出与某用户有过私信往来的全部用户 ID
func (r *directMessageRepo) ListPartnerIDs(ctx context.Context, userID int64) ([]int64, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user id cannot be zero")
	}

	var ids []int64
	gormDB := r.db.DB(ctx)
	if err := gormDB.Raw(`
		SELECT DISTINCT CASE WHEN sender_id = ? THEN recipient_id ELSE sender_id END AS partner_id
		FROM t_direct_message
		WHERE sender_id = ? OR recipient_id = ?`, userID, userID, userID).
		Scan(&ids).Error; err != nil {
		r.logger.Error("列出私信对象失败", clog.Int64("user_id", userID), clog.Error(err))
		return nil, fmt.Errorf("failed to list partner ids: %w", err)
	}
	return ids, nil
}
