package service

import (
	"context"

	"github.com/ceyewan/buzzlink/fanout"
	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/buzzlink/repo"
	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/xerrors"
)

// NotifyService 通知读取与已读状态管理
// 已读状态变化后向用户的计数主题推送最新未读数，
// 推送失败不影响操作结果（计数属尽力而为层）。
type NotifyService struct {
	notificationRepo repo.NotificationRepo
	publisher        fanout.Publisher
	logger           clog.Logger
}

// NewNotifyService 创建通知服务
func NewNotifyService(notificationRepo repo.NotificationRepo, publisher fanout.Publisher, logger clog.Logger) *NotifyService {
	return &NotifyService{
		notificationRepo: notificationRepo,
		publisher:        publisher,
		logger:           logger.WithNamespace("notify"),
	}
}

// List 拉取某用户的通知（时间降序）
func (s *NotifyService) List(ctx context.Context, recipientID int64, limit int) ([]*model.NotificationPayload, error) {
	notifications, err := s.notificationRepo.ListByRecipient(ctx, recipientID, limit)
	if err != nil {
		return nil, err
	}
	return toPayloads(notifications), nil
}

// ListUnread 拉取某用户的未读通知（时间降序）
func (s *NotifyService) ListUnread(ctx context.Context, recipientID int64, limit int) ([]*model.NotificationPayload, error) {
	notifications, err := s.notificationRepo.ListUnread(ctx, recipientID, limit)
	if err != nil {
		return nil, err
	}
	return toPayloads(notifications), nil
}

// CountUnread 统计某用户的未读通知数
func (s *NotifyService) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	return s.notificationRepo.CountUnread(ctx, recipientID)
}

// MarkRead 将单条通知置为已读
// 归属不匹配或通知不存在都返回 ErrNotFound，不向调用方泄露他人通知的存在性
func (s *NotifyService) MarkRead(ctx context.Context, notificationID, recipientID int64) error {
	ok, err := s.notificationRepo.MarkRead(ctx, notificationID, recipientID)
	if err != nil {
		return err
	}
	if !ok {
		return xerrors.Wrapf(ErrNotFound, "notification %d", notificationID)
	}
	s.pushUnreadCount(ctx, recipientID)
	return nil
}

// MarkAllRead 将某用户全部未读通知置为已读，返回影响条数
func (s *NotifyService) MarkAllRead(ctx context.Context, recipientID int64) (int64, error) {
	affected, err := s.notificationRepo.MarkAllRead(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		s.pushUnreadCount(ctx, recipientID)
	}
	return affected, nil
}

// pushUnreadCount 向用户的计数主题推送最新未读数，失败仅记录日志
func (s *NotifyService) pushUnreadCount(ctx context.Context, recipientID int64) {
	count, err := s.notificationRepo.CountUnread(ctx, recipientID)
	if err != nil {
		s.logger.WarnContext(ctx, "统计未读数失败",
			clog.Int64("recipient_id", recipientID),
			clog.Error(err))
		return
	}
	topic := model.TopicNotificationCount(recipientID)
	if err := s.publisher.Publish(topic, &model.UnreadCount{Count: count}); err != nil {
		s.logger.WarnContext(ctx, "推送未读数失败",
			clog.String("topic", topic),
			clog.Error(err))
	}
}

func toPayloads(notifications []*model.Notification) []*model.NotificationPayload {
	result := make([]*model.NotificationPayload, 0, len(notifications))
	for _, n := range notifications {
		result = append(result, &model.NotificationPayload{
			ID:              n.ID,
			Kind:            n.Kind,
			Text:            n.Text,
			ActorID:         n.ActorID,
			ChannelID:       n.ChannelID,
			MessageID:       n.MessageID,
			DirectMessageID: n.DirectMessageID,
			WorkspaceID:     n.WorkspaceID,
			IsRead:          n.IsRead,
			CreatedAt:       n.CreatedAt,
		})
	}
	return result
}
