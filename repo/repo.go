package repo

import (
	"context"

	"github.com/ceyewan/buzzlink/model"
)

// UserRepo 用户数据访问接口
type UserRepo interface {
	// CreateUser 创建新用户
	CreateUser(ctx context.Context, user *model.User) error
	// GetUserByID 按内部 ID 获取用户
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	// GetUserByClerkID 按外部身份 ID 获取用户
	GetUserByClerkID(ctx context.Context, clerkID string) (*model.User, error)
	// GetUserByEmail 按邮箱获取用户（开发登录）
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// GetUsersByIDs 批量获取用户（避免 N+1 查询）
	GetUsersByIDs(ctx context.Context, ids []int64) ([]*model.User, error)
	// UpdateUser 更新用户信息
	UpdateUser(ctx context.Context, user *model.User) error
}

// WorkspaceRepo 工作区与成员数据访问接口
type WorkspaceRepo interface {
	// CreateWorkspace 创建工作区
	CreateWorkspace(ctx context.Context, ws *model.Workspace) error
	// GetWorkspace 按 ID 获取工作区
	GetWorkspace(ctx context.Context, id int64) (*model.Workspace, error)
	// GetWorkspaceBySlug 按 slug 获取工作区
	GetWorkspaceBySlug(ctx context.Context, slug string) (*model.Workspace, error)
	// AddMember 添加工作区成员（重复加入时幂等）
	AddMember(ctx context.Context, member *model.WorkspaceMember) error
	// IsMember 判断用户是否为工作区成员
	IsMember(ctx context.Context, userID, workspaceID int64) (bool, error)
	// ListMemberIDs 枚举工作区全部成员的用户 ID（通知受众）
	ListMemberIDs(ctx context.Context, workspaceID int64) ([]int64, error)
}

// ChannelRepo 频道数据访问接口
type ChannelRepo interface {
	// CreateChannel 创建频道
	CreateChannel(ctx context.Context, ch *model.Channel) error
	// GetChannel 按 ID 获取频道
	GetChannel(ctx context.Context, id int64) (*model.Channel, error)
	// ListChannels 列出工作区下的全部频道
	ListChannels(ctx context.Context, workspaceID int64) ([]*model.Channel, error)
}

// MessageRepo 频道消息与反应数据访问接口
type MessageRepo interface {
	// SaveMessage 保存消息；若为线程回复，同一事务内原子递增父消息的回复数
	SaveMessage(ctx context.Context, msg *model.Message) error
	// GetMessage 按 ID 获取消息
	GetMessage(ctx context.Context, id int64) (*model.Message, error)
	// DeleteMessage 删除消息及其反应；若为线程回复，递减父消息回复数
	DeleteMessage(ctx context.Context, id int64) error
	// ListChannelMessages 拉取频道顶层消息（时间升序返回）
	ListChannelMessages(ctx context.Context, channelID int64, limit int) ([]*model.Message, error)
	// ListThreadReplies 拉取某条消息的线程回复（时间升序）
	ListThreadReplies(ctx context.Context, parentID int64) ([]*model.Message, error)
	// AddReaction 添加反应；唯一键冲突时返回 false（并发去重）
	AddReaction(ctx context.Context, reaction *model.Reaction) (bool, error)
	// RemoveReaction 移除反应；记录不存在时返回 false
	RemoveReaction(ctx context.Context, messageID, userID int64) (bool, error)
	// HasReaction 判断用户是否已对消息添加反应
	HasReaction(ctx context.Context, messageID, userID int64) (bool, error)
	// CountReactions 统计消息的反应数
	CountReactions(ctx context.Context, messageID int64) (int64, error)
	// CountReactionsBatch 批量统计反应数（避免 N+1 查询）
	CountReactionsBatch(ctx context.Context, messageIDs []int64) (map[int64]int64, error)
}

// DirectMessageRepo 私信数据访问接口
type DirectMessageRepo interface {
	// SaveDirectMessage 保存私信
	SaveDirectMessage(ctx context.Context, dm *model.DirectMessage) error
	// GetConversation 拉取两个用户之间的私信（时间升序）
	GetConversation(ctx context.Context, userA, userB int64, limit int) ([]*model.DirectMessage, error)
	// ListPartnerIDs 列出与某用户有过私信往来的全部用户 ID
	ListPartnerIDs(ctx context.Context, userID int64) ([]int64, error)
}

// NotificationRepo 通知数据访问接口
type NotificationRepo interface {
	// SaveNotification 保存通知
	SaveNotification(ctx context.Context, n *model.Notification) error
	// ListByRecipient 拉取某用户的通知（时间降序）
	ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]*model.Notification, error)
	// ListUnread 拉取某用户的未读通知（时间降序）
	ListUnread(ctx context.Context, recipientID int64, limit int) ([]*model.Notification, error)
	// CountUnread 统计某用户的未读通知数
	CountUnread(ctx context.Context, recipientID int64) (int64, error)
	// MarkRead 将单条通知置为已读；归属不匹配或已读时返回 false
	MarkRead(ctx context.Context, id, recipientID int64) (bool, error)
	// MarkAllRead 将某用户全部未读通知置为已读，返回影响行数
	MarkAllRead(ctx context.Context, recipientID int64) (int64, error)
}
