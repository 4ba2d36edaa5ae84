package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ceyewan/buzzlink/fanout"
	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/buzzlink/repo"
	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/xerrors"
)

// ChatService 频道消息入站管道
// 顺序约束：持久化成功先于任何广播；通知扩散在广播之后由调用方入队。
type ChatService struct {
	userRepo      repo.UserRepo
	workspaceRepo repo.WorkspaceRepo
	channelRepo   repo.ChannelRepo
	messageRepo   repo.MessageRepo
	idGen         IDGenerator
	logger        clog.Logger
}

// NewChatService 创建聊天服务
func NewChatService(
	userRepo repo.UserRepo,
	workspaceRepo repo.WorkspaceRepo,
	channelRepo repo.ChannelRepo,
	messageRepo repo.MessageRepo,
	idGen IDGenerator,
	logger clog.Logger,
) *ChatService {
	return &ChatService{
		userRepo:      userRepo,
		workspaceRepo: workspaceRepo,
		channelRepo:   channelRepo,
		messageRepo:   messageRepo,
		idGen:         idGen,
		logger:        logger.WithNamespace("chat"),
	}
}

// SubmitChannelMessage 接收一条频道消息并持久化，返回规范广播形式
// 校验链：频道存在 -> 发送者存在 -> 发送者是工作区成员 -> 父消息（如有）在同一频道
func (s *ChatService) SubmitChannelMessage(
	ctx context.Context,
	channelID, senderID int64,
	content, msgType string,
	parentMessageID *int64,
) (*model.ChatMessage, error) {
	if content == "" {
		return nil, xerrors.New("content cannot be empty")
	}
	if msgType == "" {
		msgType = model.MessageTypeText
	}
	if msgType != model.MessageTypeText && msgType != model.MessageTypeFile {
		return nil, fmt.Errorf("unknown message type: %s", msgType)
	}

	channel, err := s.channelRepo.GetChannel(ctx, channelID)
	if err != nil {
		if IsNotFound(err) {
			return nil, xerrors.Wrapf(ErrNotFound, "channel %d", channelID)
		}
		return nil, err
	}

	sender, err := s.userRepo.GetUserByID(ctx, senderID)
	if err != nil {
		if IsNotFound(err) {
			return nil, xerrors.Wrapf(ErrNotFound, "sender %d", senderID)
		}
		return nil, err
	}

	isMember, err := s.workspaceRepo.IsMember(ctx, senderID, channel.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		s.logger.Warn("非成员尝试发送频道消息",
			clog.Int64("user_id", senderID),
			clog.Int64("channel_id", channelID))
		return nil, xerrors.Wrapf(ErrForbidden, "user %d is not a member of workspace %d", senderID, channel.WorkspaceID)
	}

	if parentMessageID != nil {
		parent, err := s.messageRepo.GetMessage(ctx, *parentMessageID)
		if err != nil {
			if IsNotFound(err) {
				return nil, xerrors.Wrapf(ErrNotFound, "parent message %d", *parentMessageID)
			}
			return nil, err
		}
		if parent.ChannelID != channelID {
			return nil, xerrors.Wrapf(ErrNotFound, "parent message %d is not in channel %d", *parentMessageID, channelID)
		}
	}

	msg := &model.Message{
		ID:              s.idGen.Next(),
		ChannelID:       channelID,
		SenderID:        senderID,
		Content:         content,
		Type:            msgType,
		ParentMessageID: parentMessageID,
		CreatedAt:       time.Now(),
	}
	if err := s.messageRepo.SaveMessage(ctx, msg); err != nil {
		return nil, err
	}

	s.logger.Info("频道消息已持久化",
		clog.Int64("msg_id", msg.ID),
		clog.Int64("channel_id", channelID),
		clog.Int64("sender_id", senderID))

	return &model.ChatMessage{
		ID:              msg.ID,
		ChannelID:       msg.ChannelID,
		SenderID:        senderID,
		SenderName:      sender.DisplayName,
		SenderAvatarURL: sender.AvatarURL,
		Content:         msg.Content,
		Type:            msg.Type,
		ParentMessageID: msg.ParentMessageID,
		ReplyCount:      0,
		ReactionCount:   0,
		CreatedAt:       msg.CreatedAt,
	}, nil
}

// BuildMessageFanout 计算一条已广播消息的通知受众
// 频道消息：工作区全部成员，排除发送者；
// 线程回复：仅父消息作者，自己回复自己不通知。
// 两种情况受众为空时返回 nil。
func (s *ChatService) BuildMessageFanout(ctx context.Context, msg *model.ChatMessage) (*fanout.Task, error) {
	if msg == nil {
		return nil, fmt.Errorf("message cannot be nil")
	}

	channel, err := s.channelRepo.GetChannel(ctx, msg.ChannelID)
	if err != nil {
		return nil, err
	}

	if msg.ParentMessageID != nil {
		parent, err := s.messageRepo.GetMessage(ctx, *msg.ParentMessageID)
		if err != nil {
			return nil, err
		}
		if parent.SenderID == msg.SenderID {
			return nil, nil
		}
		return &fanout.Task{
			Kind:        model.NotifyThreadReply,
			Text:        fmt.Sprintf("%s replied to your message", msg.SenderName),
			ActorID:     msg.SenderID,
			ActorName:   msg.SenderName,
			Recipients:  []int64{parent.SenderID},
			ChannelID:   &msg.ChannelID,
			MessageID:   &msg.ID,
			WorkspaceID: &channel.WorkspaceID,
		}, nil
	}

	memberIDs, err := s.workspaceRepo.ListMemberIDs(ctx, channel.WorkspaceID)
	if err != nil {
		return nil, err
	}
	recipients := make([]int64, 0, len(memberIDs))
	for _, id := range memberIDs {
		if id != msg.SenderID {
			recipients = append(recipients, id)
		}
	}
	if len(recipients) == 0 {
		return nil, nil
	}

	return &fanout.Task{
		Kind:        model.NotifyChannelMessage,
		Text:        fmt.Sprintf("%s posted in #%s", msg.SenderName, channel.Name),
		ActorID:     msg.SenderID,
		ActorName:   msg.SenderName,
		Recipients:  recipients,
		ChannelID:   &msg.ChannelID,
		MessageID:   &msg.ID,
		WorkspaceID: &channel.WorkspaceID,
	}, nil
}

// ToggleReaction 切换用户对消息的反应，严格自反：两次调用回到原状态
// 并发的同一切换由数据库唯一约束裁决，落败方按空操作处理，双方都拿到最新计数。
// 仅在本次确实新增了反应且不是自己给自己点时返回通知任务。
func (s *ChatService) ToggleReaction(ctx context.Context, messageID, userID int64) (*model.ReactionUpdate, *fanout.Task, error) {
	msg, err := s.messageRepo.GetMessage(ctx, messageID)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil, xerrors.Wrapf(ErrNotFound, "message %d", messageID)
		}
		return nil, nil, err
	}

	user, err := s.userRepo.GetUserByID(ctx, userID)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil, xerrors.Wrapf(ErrNotFound, "user %d", userID)
		}
		return nil, nil, err
	}

	has, err := s.messageRepo.HasReaction(ctx, messageID, userID)
	if err != nil {
		return nil, nil, err
	}

	var added bool
	if has {
		// 已有反应：本次是移除。并发移除时落败方 removed=false，同样算空操作。
		if _, err := s.messageRepo.RemoveReaction(ctx, messageID, userID); err != nil {
			return nil, nil, err
		}
		added = false
	} else {
		created, err := s.messageRepo.AddReaction(ctx, &model.Reaction{
			MessageID: messageID,
			UserID:    userID,
			Type:      "THUMBS_UP",
			CreatedAt: time.Now(),
		})
		if err != nil {
			return nil, nil, err
		}
		// created=false 表示并发添加已先行生效，本次按空操作收敛
		added = created
	}

	count, err := s.messageRepo.CountReactions(ctx, messageID)
	if err != nil {
		return nil, nil, err
	}

	update := &model.ReactionUpdate{
		MessageID:     messageID,
		ChannelID:     msg.ChannelID,
		UserID:        userID,
		ReactionCount: int(count),
		Added:         added,
	}

	// 取消反应以及自己给自己点赞都不产生通知
	if !added || msg.SenderID == userID {
		return update, nil, nil
	}

	return update, &fanout.Task{
		Kind:       model.NotifyReaction,
		Text:       fmt.Sprintf("%s reacted to your message", user.DisplayName),
		ActorID:    userID,
		ActorName:  user.DisplayName,
		Recipients: []int64{msg.SenderID},
		ChannelID:  &msg.ChannelID,
		MessageID:  &messageID,
	}, nil
}

// DeleteMessage 删除消息，仅管理员可执行
// 管理员属性是外部身份系统的声明，从存储读取，不做本地推断
func (s *ChatService) DeleteMessage(ctx context.Context, messageID, requestorID int64) (*model.MessageDeleted, error) {
	requestor, err := s.userRepo.GetUserByID(ctx, requestorID)
	if err != nil {
		if IsNotFound(err) {
			return nil, xerrors.Wrapf(ErrNotFound, "user %d", requestorID)
		}
		return nil, err
	}
	if !requestor.IsAdmin {
		s.logger.Warn("非管理员尝试删除消息",
			clog.Int64("user_id", requestorID),
			clog.Int64("msg_id", messageID))
		return nil, xerrors.Wrapf(ErrForbidden, "user %d is not an admin", requestorID)
	}

	msg, err := s.messageRepo.GetMessage(ctx, messageID)
	if err != nil {
		if IsNotFound(err) {
			return nil, xerrors.Wrapf(ErrNotFound, "message %d", messageID)
		}
		return nil, err
	}

	if err := s.messageRepo.DeleteMessage(ctx, messageID); err != nil {
		return nil, err
	}

	s.logger.Info("消息已删除",
		clog.Int64("msg_id", messageID),
		clog.Int64("admin_id", requestorID))

	return &model.MessageDeleted{
		MessageID: messageID,
		ChannelID: msg.ChannelID,
	}, nil
}

// ListChannelMessages 拉取频道最近的顶层消息，带发送者概要与派生计数
func (s *ChatService) ListChannelMessages(ctx context.Context, channelID, requestorID int64, limit int) ([]*model.ChatMessage, error) {
	channel, err := s.channelRepo.GetChannel(ctx, channelID)
	if err != nil {
		if IsNotFound(err) {
			return nil, xerrors.Wrapf(ErrNotFound, "channel %d", channelID)
		}
		return nil, err
	}

	isMember, err := s.workspaceRepo.IsMember(ctx, requestorID, channel.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, xerrors.Wrapf(ErrForbidden, "user %d is not a member of workspace %d", requestorID, channel.WorkspaceID)
	}

	messages, err := s.messageRepo.ListChannelMessages(ctx, channelID, limit)
	if err != nil {
		return nil, err
	}
	return s.decorate(ctx, messages)
}

// ListThreadReplies 拉取某条消息的线程回复
func (s *ChatService) ListThreadReplies(ctx context.Context, parentID, requestorID int64) ([]*model.ChatMessage, error) {
	parent, err := s.messageRepo.GetMessage(ctx, parentID)
	if err != nil {
		if IsNotFound(err) {
			return nil, xerrors.Wrapf(ErrNotFound, "message %d", parentID)
		}
		return nil, err
	}

	channel, err := s.channelRepo.GetChannel(ctx, parent.ChannelID)
	if err != nil {
		return nil, err
	}
	isMember, err := s.workspaceRepo.IsMember(ctx, requestorID, channel.WorkspaceID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, xerrors.Wrapf(ErrForbidden, "user %d is not a member of workspace %d", requestorID, channel.WorkspaceID)
	}

	replies, err := s.messageRepo.ListThreadReplies(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return s.decorate(ctx, replies)
}

// ListChannels 列出工作区下的全部频道，要求调用方是工作区成员
func (s *ChatService) ListChannels(ctx context.Context, workspaceID, requestorID int64) ([]*model.Channel, error) {
	if _, err := s.workspaceRepo.GetWorkspace(ctx, workspaceID); err != nil {
		if IsNotFound(err) {
			return nil, xerrors.Wrapf(ErrNotFound, "workspace %d", workspaceID)
		}
		return nil, err
	}

	isMember, err := s.workspaceRepo.IsMember(ctx, requestorID, workspaceID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, xerrors.Wrapf(ErrForbidden, "user %d is not a member of workspace %d", requestorID, workspaceID)
	}

	return s.channelRepo.ListChannels(ctx, workspaceID)
}

// GetWorkspaceBySlug 按 slug 获取工作区，非成员返回 Forbidden
func (s *ChatService) GetWorkspaceBySlug(ctx context.Context, slug string, requestorID int64) (*model.Workspace, error) {
	ws, err := s.workspaceRepo.GetWorkspaceBySlug(ctx, slug)
	if err != nil {
		if IsNotFound(err) {
			return nil, xerrors.Wrapf(ErrNotFound, "workspace %s", slug)
		}
		return nil, err
	}

	isMember, err := s.workspaceRepo.IsMember(ctx, requestorID, ws.ID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, xerrors.Wrapf(ErrForbidden, "user %d is not a member of workspace %d", requestorID, ws.ID)
	}

	return ws, nil
}

// decorate 将存储行转为规范广播形式：批量取发送者概要与反应计数
func (s *ChatService) decorate(ctx context.Context, messages []*model.Message) ([]*model.ChatMessage, error) {
	if len(messages) == 0 {
		return []*model.ChatMessage{}, nil
	}

	senderIDs := make([]int64, 0, len(messages))
	messageIDs := make([]int64, 0, len(messages))
	seen := make(map[int64]struct{}, len(messages))
	for _, m := range messages {
		messageIDs = append(messageIDs, m.ID)
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			senderIDs = append(senderIDs, m.SenderID)
		}
	}

	senders, err := s.userRepo.GetUsersByIDs(ctx, senderIDs)
	if err != nil {
		return nil, err
	}
	senderByID := make(map[int64]*model.User, len(senders))
	for _, u := range senders {
		senderByID[u.ID] = u
	}

	reactionCounts, err := s.messageRepo.CountReactionsBatch(ctx, messageIDs)
	if err != nil {
		return nil, err
	}

	result := make([]*model.ChatMessage, 0, len(messages))
	for _, m := range messages {
		cm := &model.ChatMessage{
			ID:              m.ID,
			ChannelID:       m.ChannelID,
			SenderID:        m.SenderID,
			Content:         m.Content,
			Type:            m.Type,
			ParentMessageID: m.ParentMessageID,
			ReplyCount:      m.ReplyCount,
			ReactionCount:   int(reactionCounts[m.ID]),
			CreatedAt:       m.CreatedAt,
		}
		if sender, ok := senderByID[m.SenderID]; ok {
			cm.SenderName = sender.DisplayName
			cm.SenderAvatarURL = sender.AvatarURL
		}
		result = append(result, cm)
	}
	return result, nil
}
