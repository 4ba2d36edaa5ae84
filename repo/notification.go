package repo

import (
	"context"
	"fmt"

	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/db"
)

// NotificationRepoOption 配置 NotificationRepo 的选项
type NotificationRepoOption func(*notificationRepoOptions)

type notificationRepoOptions struct {
	logger clog.Logger
}

// WithNotificationRepoLogger 设置日志记录器
func WithNotificationRepoLogger(logger clog.Logger) NotificationRepoOption {
	return func(o *notificationRepoOptions) {
		o.logger = logger
	}
}

// notificationRepo 实现 NotificationRepo 接口
type notificationRepo struct {
	db     db.DB
	logger clog.Logger
}

// NewNotificationRepo 创建 NotificationRepo 实例
func NewNotificationRepo(database db.DB, opts ...NotificationRepoOption) (NotificationRepo, error) {
	if database == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}

	options := &notificationRepoOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// 提供默认 logger
	var logger clog.Logger
	if options.logger != nil {
		logger = options.logger.WithNamespace("notification_repo")
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
		logger = logger.WithNamespace("notification_repo")
	}

	return &notificationRepo{
		db:     database,
		logger: logger,
	}, nil
}

// SaveNotification 保存通知
func (r *notificationRepo) SaveNotification(ctx context.Context, n *model.Notification) error {
	if n == nil {
		return fmt.Errorf("notification cannot be nil")
	}
	if n.ID == 0 {
		return fmt.Errorf("notification id cannot be zero")
	}
	if n.RecipientID == 0 {
		return fmt.Errorf("recipient_id cannot be zero")
	}
	if n.Kind == "" {
		return fmt.Errorf("kind cannot be empty")
	}

	gormDB := r.db.DB(ctx)
	if err := gormDB.Create(n).Error; err != nil {
		r.logger.Error("保存通知失败",
			clog.Int64("recipient_id", n.RecipientID),
			clog.String("kind", n.Kind),
			clog.Error(err))
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

// ListByRecipient 拉取某用户的通知
func (r *notificationRepo) ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]*model.Notification, error) {
	if recipientID == 0 {
		return nil, fmt.Errorf("recipient_id cannot be zero")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	var notifications []*model.Notification
	gormDB := r.db.DB(ctx)
	if err := gormDB.Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error; err != nil {
		r.logger.Error("拉取通知失败",
			clog.Int64("recipient_id", recipientID),
			clog.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

// ListUnread 拉取某用户的未读通知
func (r *notificationRepo) ListUnread(ctx context.Context, recipientID int64, limit int) ([]*model.Notification, error) {
	if recipientID == 0 {
		return nil, fmt.Errorf("recipient_id cannot be zero")
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	var notifications []*model.Notification
	gormDB := r.db.DB(ctx)
	if err := gormDB.Where("recipient_id = ? AND is_read = false", recipientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notifications).Error; err != nil {
		r.logger.Error("拉取未读通知失败",
			clog.Int64("recipient_id", recipientID),
			clog.Error(err))
		return nil, fmt.Errorf("failed to list unread notifications: %w", err)
	}
	return notifications, nil
}

// CountUnread 统计某用户的未读通知数
func (r *notificationRepo) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	if recipientID == 0 {
		return 0, fmt.Errorf("recipient_id cannot be zero")
	}

	var count int64
	gormDB := r.db.DB(ctx)
	if err := gormDB.Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = false", recipientID).
		Count(&count).Error; err != nil {
		r.logger.Error("统计未读通知失败",
			clog.Int64("recipient_id", recipientID),
			clog.Error(err))
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead 将单条通知置为已读
// 归属条件放在 WHERE 中，越权的标记请求不会产生任何写入
func (r *notificationRepo) MarkRead(ctx context.Context, id, recipientID int64) (bool, error) {
	if id == 0 || recipientID == 0 {
		return false, fmt.Errorf("id and recipient_id cannot be zero")
	}

	gormDB := r.db.DB(ctx)
	result := gormDB.Model(&model.Notification{}).
		Where("id = ? AND recipient_id = ? AND is_read = false", id, recipientID).
		Update("is_read", true)
	if result.Error != nil {
		r.logger.Error("标记通知已读失败",
			clog.Int64("notification_id", id),
			clog.Int64("recipient_id", recipientID),
			clog.Error(result.Error))
		return false, fmt.Errorf("failed to mark notification read: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// MarkAllRead 将某用户全部未读通知置为已读
func (r *notificationRepo) MarkAllRead(ctx context.Context, recipientID int64) (int64, error) {
	if recipientID == 0 {
		return 0, fmt.Errorf("recipient_id cannot be zero")
	}

	gormDB := r.db.DB(ctx)
	result := gormDB.Model(&model.Notification{}).
		Where("recipient_id = ? AND is_read = false", recipientID).
		Update("is_read", true)
	if result.Error != nil {
		r.logger.Error("标记全部已读失败",
			clog.Int64("recipient_id", recipientID),
			clog.Error(result.Error))
		return 0, fmt.Errorf("failed to mark all read: %w", result.Error)
	}
	return result.RowsAffected, nil
}
