package repo

import (
	"context"
	"fmt"

	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MessageRepoOption 配置 MessageRepo 的选项
type MessageRepoOption func(*messageRepoOptions)

type messageRepoOptions struct {
	logger clog.Logger
}

// WithMessageRepoLogger 设置日志记录器
func WithMessageRepoLogger(logger clog.Logger) MessageRepoOption {
	return func(o *messageRepoOptions) {
		o.logger = logger
	}
}

// messageRepo 实现 MessageRepo 接口
type messageRepo struct {
	db     db.DB
	logger clog.Logger
}

// NewMessageRepo 创建 MessageRepo 实例
func NewMessageRepo(database db.DB, opts ...MessageRepoOption) (MessageRepo, error) {
	if database == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}

	options := &messageRepoOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// 提供默认 logger
	var logger clog.Logger
	if options.logger != nil {
		logger = options.logger.WithNamespace("message_repo")
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
		logger = logger.WithNamespace("message_repo")
	}

	return &messageRepo{
		db:     database,
		logger: logger,
	}, nil
}

// SaveMessage 保存消息
// 线程回复在同一事务内以 SQL 原子递增父消息的 reply_count，
// 并发回复不会丢失计数（读改写会）。
func (r *messageRepo) SaveMessage(ctx context.Context, msg *model.Message) error {
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}
	if msg.ID == 0 {
		return fmt.Errorf("message id cannot be zero")
	}
	if msg.ChannelID == 0 {
		return fmt.Errorf("channel_id cannot be zero")
	}
	if msg.SenderID == 0 {
		return fmt.Errorf("sender_id cannot be zero")
	}

	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}

		if msg.ParentMessageID != nil {
			result := tx.Model(&model.Message{}).
				Where("id = ?", *msg.ParentMessageID).
				Update("reply_count", gorm.Expr("reply_count + 1"))
			if result.Error != nil {
				return fmt.Errorf("failed to bump reply count: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("parent message %d: %w", *msg.ParentMessageID, gorm.ErrRecordNotFound)
			}
		}
		return nil
	})

	if err != nil {
		r.logger.Error("保存消息失败",
			clog.Int64("channel_id", msg.ChannelID),
			clog.Int64("msg_id", msg.ID),
			clog.Error(err))
		return err
	}

	r.logger.Debug("保存消息成功",
		clog.Int64("channel_id", msg.ChannelID),
		clog.Int64("msg_id", msg.ID))
	return nil
}

// GetMessage 按 ID 获取消息
func (r *messageRepo) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	if id == 0 {
		return nil, fmt.Errorf("message id cannot be zero")
	}

	var msg model.Message
	gormDB := r.db.DB(ctx)
	if err := gormDB.Where("id = ?", id).First(&msg).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("message %d: %w", id, gorm.ErrRecordNotFound)
		}
		r.logger.Error("获取消息失败", clog.Int64("msg_id", id), clog.Error(err))
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &msg, nil
}

// DeleteMessage 删除消息及其反应
// 若被删消息是线程回复，同一事务内递减父消息的 reply_count
func (r *messageRepo) DeleteMessage(ctx context.Context, id int64) error {
	if id == 0 {
		return fmt.Errorf("message id cannot be zero")
	}

	err := r.db.Transaction(ctx, func(ctx context.Context, tx *gorm.DB) error {
		var msg model.Message
		if err := tx.Where("id = ?", id).First(&msg).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return fmt.Errorf("message %d: %w", id, gorm.ErrRecordNotFound)
			}
			return fmt.Errorf("failed to load message: %w", err)
		}

		if err := tx.Where("message_id = ?", id).Delete(&model.Reaction{}).Error; err != nil {
			return fmt.Errorf("failed to delete reactions: %w", err)
		}

		if err := tx.Where("id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return fmt.Errorf("failed to delete message: %w", err)
		}

		if msg.ParentMessageID != nil {
			if err := tx.Model(&model.Message{}).
				Where("id = ? AND reply_count > 0", *msg.ParentMessageID).
				Update("reply_count", gorm.Expr("reply_count - 1")).Error; err != nil {
				return fmt.Errorf("failed to drop reply count: %w", err)
			}
		}
		return nil
	})

	if err != nil {
		r.logger.Error("删除消息失败", clog.Int64("msg_id", id), clog.Error(err))
		return err
	}

	r.logger.Debug("删除消息成功", clog.Int64("msg_id", id))
	return nil
}

// ListChannelMessages 拉取频道顶层消息
// 为了高效拿“最近 limit 条”，先倒序取，再在内存反转为升序输出。
func (r *messageRepo) ListChannelMessages(ctx context.Context, channelID int64, limit int) ([]*model.Message, error) {
	if channelID == 0 {
		return nil, fmt.Errorf("channel_id cannot be zero")
	}
	if limit <= 0 {
		limit = 50 // 默认拉取50条
	}
	if limit > 500 {
		limit = 500 // 最大拉取500条
	}

	var messages []*model.Message
	gormDB := r.db.DB(ctx)
	if err := gormDB.Where("channel_id = ? AND parent_message_id IS NULL", channelID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error; err != nil {
		r.logger.Error("拉取频道消息失败",
			clog.Int64("channel_id", channelID),
			clog.Int("limit", limit),
			clog.Error(err))
		return nil, fmt.Errorf("failed to list channel messages: %w", err)
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// ListThreadReplies 拉取某条消息的线程回复
func (r *messageRepo) ListThreadReplies(ctx context.Context, parentID int64) ([]*model.Message, error) {
	if parentID == 0 {
		return nil, fmt.Errorf("parent message id cannot be zero")
	}

	var replies []*model.Message
	gormDB := r.db.DB(ctx)
	if err := gormDB.Where("parent_message_id = ?", parentID).
		Order("created_at ASC").
		Find(&replies).Error; err != nil {
		r.logger.Error("拉取线程回复失败",
			clog.Int64("parent_id", parentID),
			clog.Error(err))
		return nil, fmt.Errorf("failed to list thread replies: %w", err)
	}
	return replies, nil
}

// AddReaction 添加反应
// 幂等写入：唯一键冲突（message_id, user_id）时忽略并返回 false，
// 并发的两次添加只有一次生效。
func (r *messageRepo) AddReaction(ctx context.Context, reaction *model.Reaction) (bool, error) {
	if reaction == nil {
		return false, fmt.Errorf("reaction cannot be nil")
	}
	if reaction.MessageID == 0 || reaction.UserID == 0 {
		return false, fmt.Errorf("message_id and user_id cannot be zero")
	}

	gormDB := r.db.DB(ctx)
	result := gormDB.Clauses(clause.OnConflict{DoNothing: true}).Create(reaction)
	if result.Error != nil {
		r.logger.Error("添加反应失败",
			clog.Int64("msg_id", reaction.MessageID),
			clog.Int64("user_id", reaction.UserID),
			clog.Error(result.Error))
		return false, fmt.Errorf("failed to add reaction: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// RemoveReaction 移除反应
func (r *messageRepo) RemoveReaction(ctx context.Context, messageID, userID int64) (bool, error) {
	if messageID == 0 || userID == 0 {
		return false, fmt.Errorf("message_id and user_id cannot be zero")
	}

	gormDB := r.db.DB(ctx)
	result := gormDB.Where("message_id = ? AND user_id = ?", messageID, userID).
		Delete(&model.Reaction{})
	if result.Error != nil {
		r.logger.Error("移除反应失败",
			clog.Int64("msg_id", messageID),
			clog.Int64("user_id", userID),
			clog.Error(result.Error))
		return false, fmt.Errorf("failed to remove reaction: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// HasReaction 判断用户是否已对消息添加反应
func (r *messageRepo) HasReaction(ctx context.Context, messageID, userID int64) (bool, error) {
	if messageID == 0 || userID == 0 {
		return false, fmt.Errorf("message_id and user_id cannot be zero")
	}

	var count int64
	gormDB := r.db.DB(ctx)
	if err := gormDB.Model(&model.Reaction{}).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check reaction: %w", err)
	}
	return count > 0, nil
}

// CountReactions 统计消息的反应数
func (r *messageRepo) CountReactions(ctx context.Context, messageID int64) (int64, error) {
	if messageID == 0 {
		return 0, fmt.Errorf("message_id cannot be zero")
	}

	var count int64
	gormDB := r.db.DB(ctx)
	if err := gormDB.Model(&model.Reaction{}).
		Where("message_id = ?", messageID).
		Count(&count).Error; err != nil {
		r.logger.Error("统计反应数失败", clog.Int64("msg_id", messageID), clog.Error(err))
		return 0, fmt.Errorf("failed to count reactions: %w", err)
	}
	return count, nil
}

// CountReactionsBatch 批量统计反应数（避免 N+1 查询）
func (r *messageRepo) CountReactionsBatch(ctx context.Context, messageIDs []int64) (map[int64]int64, error) {
	counts := make(map[int64]int64, len(messageIDs))
	if len(messageIDs) == 0 {
		return counts, nil
	}

	type countRow struct {
		MessageID int64
		Total     int64
	}

	rows := make([]*countRow, 0, len(messageIDs))
	gormDB := r.db.DB(ctx)
	if err := gormDB.Model(&model.Reaction{}).
		Select("message_id, COUNT(*) as total").
		Where("message_id IN ?", messageIDs).
		Group("message_id").
		Scan(&rows).Error; err != nil {
		r.logger.Error("批量统计反应数失败", clog.Int("count", len(messageIDs)), clog.Error(err))
		return nil, fmt.Errorf("failed to count reactions: %w", err)
	}

	for _, row := range rows {
		counts[row.MessageID] = row.Total
	}
	return counts, nil
}
