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

// DMService 私信入站管道
type DMService struct {
	userRepo repo.UserRepo
	dmRepo   repo.DirectMessageRepo
	idGen    IDGenerator
	logger   clog.Logger
}

// NewDMService 创建私信服务
func NewDMService(userRepo repo.UserRepo, dmRepo repo.DirectMessageRepo, idGen IDGenerator, logger clog.Logger) *DMService {
	return &DMService{
		userRepo: userRepo,
		dmRepo:   dmRepo,
		idGen:    idGen,
		logger:   logger.WithNamespace("dm"),
	}
}

// SendDirectMessage 持久化一条私信并返回规范广播形式与通知任务
// 自己给自己发私信合法，但不产生通知（task 为 nil）
func (s *DMService) SendDirectMessage(ctx context.Context, senderID, recipientID int64, content, msgType string) (*model.DirectMessagePayload, *fanout.Task, error) {
	if content == "" {
		return nil, nil, xerrors.New("content cannot be empty")
	}
	if msgType == "" {
		msgType = model.MessageTypeText
	}

	sender, err := s.userRepo.GetUserByID(ctx, senderID)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil, xerrors.Wrapf(ErrNotFound, "sender %d", senderID)
		}
		return nil, nil, err
	}
	recipient, err := s.userRepo.GetUserByID(ctx, recipientID)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil, xerrors.Wrapf(ErrNotFound, "recipient %d", recipientID)
		}
		return nil, nil, err
	}

	dm := &model.DirectMessage{
		ID:          s.idGen.Next(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		Type:        msgType,
		CreatedAt:   time.Now(),
	}
	if err := s.dmRepo.SaveDirectMessage(ctx, dm); err != nil {
		return nil, nil, err
	}

	s.logger.Info("私信已持久化",
		clog.Int64("dm_id", dm.ID),
		clog.Int64("sender_id", senderID),
		clog.Int64("recipient_id", recipientID))

	payload := &model.DirectMessagePayload{
		ID:            dm.ID,
		SenderID:      senderID,
		SenderName:    sender.DisplayName,
		RecipientID:   recipientID,
		RecipientName: recipient.DisplayName,
		Content:       dm.Content,
		Type:          dm.Type,
		CreatedAt:     dm.CreatedAt,
	}

	if senderID == recipientID {
		return payload, nil, nil
	}

	task := &fanout.Task{
		Kind:            model.NotifyDirectMessage,
		Text:            fmt.Sprintf("%s sent you a message", sender.DisplayName),
		ActorID:         senderID,
		ActorName:       sender.DisplayName,
		Recipients:      []int64{recipientID},
		DirectMessageID: &dm.ID,
	}
	return payload, task, nil
}

// GetConversation 拉取两个用户之间的私信历史（时间升序）
// 仅会话双方可读
func (s *DMService) GetConversation(ctx context.Context, requestorID, partnerID int64, limit int) ([]*model.DirectMessagePayload, error) {
	if _, err := s.userRepo.GetUserByID(ctx, partnerID); err != nil {
		if IsNotFound(err) {
			return nil, xerrors.Wrapf(ErrNotFound, "user %d", partnerID)
		}
		return nil, err
	}

	dms, err := s.dmRepo.GetConversation(ctx, requestorID, partnerID, limit)
	if err != nil {
		return nil, err
	}
	if len(dms) == 0 {
		return []*model.DirectMessagePayload{}, nil
	}

	users, err := s.userRepo.GetUsersByIDs(ctx, []int64{requestorID, partnerID})
	if err != nil {
		return nil, err
	}
	nameByID := make(map[int64]string, len(users))
	for _, u := range users {
		nameByID[u.ID] = u.DisplayName
	}

	result := make([]*model.DirectMessagePayload, 0, len(dms))
	for _, dm := range dms {
		result = append(result, &model.DirectMessagePayload{
			ID:            dm.ID,
			SenderID:      dm.SenderID,
			SenderName:    nameByID[dm.SenderID],
			RecipientID:   dm.RecipientID,
			RecipientName: nameByID[dm.RecipientID],
			Content:       dm.Content,
			Type:          dm.Type,
			CreatedAt:     dm.CreatedAt,
		})
	}
	return result, nil
}

// ListConversations 列出与某用户有过私信往来的全部对端概要
func (s *DMService) ListConversations(ctx context.Context, userID int64) ([]*model.User, error) {
	partnerIDs, err := s.dmRepo.ListPartnerIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(partnerIDs) == 0 {
		return []*model.User{}, nil
	}
	return s.userRepo.GetUsersByIDs(ctx, partnerIDs)
}
