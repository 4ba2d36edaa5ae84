package model

import (
	"time"
)

// ============================================================================
// 持久化模型（PostgreSQL）
// 以下结构体的 GORM tag 是数据库表结构的唯一真相来源 (Single Source of Truth)。
// 表结构通过 `go run main.go -module init` 调用 GORM AutoMigrate 自动创建/更新。
//
// 索引总览：
//
//	表                     索引名                    列                                类型       用途
//	────────────────────── ──────────────────────── ───────────────────────────────── ────────── ─────────────────────────────────
//	t_user                 PK                       id                                主键       按用户 ID 精确查询
//	t_user                 uniq_clerk_id            clerk_id                          唯一       按外部身份 ID 解析内部用户
//	t_workspace            PK                       id                                主键       —
//	t_workspace            uniq_slug                slug                              唯一       按 slug 精确查询工作区
//	t_workspace_member     PK                       id                                自增主键   —
//	t_workspace_member     uniq_user_workspace      (user_id, workspace_id)           唯一复合   防重复加入 / 判断成员资格
//	t_workspace_member     idx_member_workspace     workspace_id                      普通       按工作区查全部成员（通知受众）
//	t_channel              PK                       id                                主键       —
//	t_channel              uniq_ws_name             (workspace_id, name)              唯一复合   工作区内频道名唯一
//	t_message              PK                       id                                主键       按消息 ID 精确查询
//	t_message              idx_channel_created      (channel_id, created_at)          复合       按频道拉取历史消息（时间排序）
//	t_message              idx_parent               parent_message_id                 普通       按父消息查线程回复
//	t_reaction             PK                       id                                自增主键   —
//	t_reaction             uniq_message_user        (message_id, user_id)             唯一复合   反应切换的幂等保证（并发去重）
//	t_direct_message       PK                       id                                主键       —
//	t_direct_message       idx_sender_created       (sender_id, created_at)           复合       按发送方拉取会话
//	t_direct_message       idx_recipient_created    (recipient_id, created_at)        复合       按接收方拉取会话
//	t_notification         PK                       id                                主键       —
//	t_notification         idx_recipient_read       (recipient_id, is_read)           复合       查询某用户未读通知 / 计算未读数
//	t_workspace_invitation PK                       id                                自增主键   —
//	t_workspace_invitation uniq_token               token                             唯一       按邀请令牌精确查询
//
// ============================================================================

// User 用户表
// 索引：PK(id) + uniq_clerk_id(clerk_id)
//   - clerk_id 是外部身份提供方（Clerk）下发的不透明 ID，唯一约束保证
//     同一外部身份只映射到一个内部用户
type User struct {
	ID          int64  `gorm:"primaryKey;column:id;type:bigint;autoIncrement:false"`
	ClerkID     string `gorm:"column:clerk_id;type:varchar(128);not null;uniqueIndex:uniq_clerk_id"`
	DisplayName string `gorm:"column:display_name;type:varchar(128);not null"`
	Email       string `gorm:"column:email;type:varchar(255)"`
	AvatarURL   string `gorm:"column:avatar_url;type:varchar(512)"`
	Password    string `gorm:"column:password;type:varchar(128)"` // bcrypt 哈希，仅开发登录使用
	IsAdmin     bool   `gorm:"column:is_admin;type:boolean;default:false"`
	IsBanned    bool   `gorm:"column:is_banned;type:boolean;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Workspace 工作区表
// 索引：PK(id) + uniq_slug(slug)
type Workspace struct {
	ID          int64  `gorm:"primaryKey;column:id;type:bigint;autoIncrement:false"`
	Slug        string `gorm:"column:slug;type:varchar(64);not null;uniqueIndex:uniq_slug"`
	Name        string `gorm:"column:name;type:varchar(128);not null"`
	Description string `gorm:"column:description;type:varchar(512)"`
	OwnerID     int64  `gorm:"column:owner_id;type:bigint;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkspaceMember 工作区成员表
// 索引：PK(id) + uniq_user_workspace(user_id, workspace_id) + idx_member_workspace(workspace_id)
//   - uniq_user_workspace：同一用户在同一工作区只有一条成员记录
//   - idx_member_workspace：频道消息通知需要枚举工作区全部成员
type WorkspaceMember struct {
	ID          int64  `gorm:"primaryKey;column:id;autoIncrement"`
	UserID      int64  `gorm:"column:user_id;type:bigint;not null;uniqueIndex:uniq_user_workspace,priority:1"`
	WorkspaceID int64  `gorm:"column:workspace_id;type:bigint;not null;uniqueIndex:uniq_user_workspace,priority:2;index:idx_member_workspace"`
	Role        string `gorm:"column:role;type:varchar(16);not null;default:MEMBER"` // OWNER / ADMIN / MEMBER
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Channel 频道表
// 索引：PK(id) + uniq_ws_name(workspace_id, name)
type Channel struct {
	ID          int64  `gorm:"primaryKey;column:id;type:bigint;autoIncrement:false"`
	WorkspaceID int64  `gorm:"column:workspace_id;type:bigint;not null;uniqueIndex:uniq_ws_name,priority:1"`
	Name        string `gorm:"column:name;type:varchar(64);not null;uniqueIndex:uniq_ws_name,priority:2"`
	Description string `gorm:"column:description;type:varchar(512)"`
	CreatedBy   int64  `gorm:"column:created_by;type:bigint"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Message 频道消息表
// 索引：PK(id) + idx_channel_created(channel_id, created_at) + idx_parent(parent_message_id)
//   - idx_channel_created：按频道拉取历史消息
//     典型查询: WHERE channel_id = ? AND parent_message_id IS NULL ORDER BY created_at LIMIT ?
//   - idx_parent：按父消息拉取线程回复
type Message struct {
	ID              int64  `gorm:"primaryKey;column:id;type:bigint;autoIncrement:false"`
	ChannelID       int64  `gorm:"column:channel_id;type:bigint;not null;index:idx_channel_created,priority:1"`
	SenderID        int64  `gorm:"column:sender_id;type:bigint;not null"`
	Content         string `gorm:"column:content;type:text;not null"`
	Type            string `gorm:"column:type;type:varchar(16);not null;default:TEXT"` // TEXT / FILE
	ParentMessageID *int64 `gorm:"column:parent_message_id;type:bigint;index:idx_parent"`
	ReplyCount      int    `gorm:"column:reply_count;type:int;not null;default:0"`
	CreatedAt       time.Time `gorm:"column:created_at;index:idx_channel_created,priority:2"`
	UpdatedAt       time.Time
}

// Reaction 消息反应表
// 索引：PK(id) + uniq_message_user(message_id, user_id)
//   - uniq_message_user：唯一约束，并发的同一用户同一消息的添加操作
//     只会有一条插入成功，落败方按"反应已存在"处理
type Reaction struct {
	ID        int64  `gorm:"primaryKey;column:id;autoIncrement"`
	MessageID int64  `gorm:"column:message_id;type:bigint;not null;uniqueIndex:uniq_message_user,priority:1"`
	UserID    int64  `gorm:"column:user_id;type:bigint;not null;uniqueIndex:uniq_message_user,priority:2"`
	Type      string `gorm:"column:type;type:varchar(32);not null;default:THUMBS_UP"`
	CreatedAt time.Time
}

// DirectMessage 私信表
// 索引：PK(id) + idx_sender_created(sender_id, created_at) + idx_recipient_created(recipient_id, created_at)
//   - 双向索引：会话视图需要同时按发送方与接收方过滤
//     典型查询: WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?) ORDER BY created_at
type DirectMessage struct {
	ID          int64  `gorm:"primaryKey;column:id;type:bigint;autoIncrement:false"`
	SenderID    int64  `gorm:"column:sender_id;type:bigint;not null;index:idx_sender_created,priority:1"`
	RecipientID int64  `gorm:"column:recipient_id;type:bigint;not null;index:idx_recipient_created,priority:1"`
	Content     string `gorm:"column:content;type:text;not null"`
	Type        string `gorm:"column:type;type:varchar(16);not null;default:TEXT"`
	CreatedAt   time.Time `gorm:"column:created_at;index:idx_sender_created,priority:2;index:idx_recipient_created,priority:2"`
}

// Notification 通知表
// 索引：PK(id) + idx_recipient_read(recipient_id, is_read)
//   - idx_recipient_read：查询某用户未读通知 / 计算未读数
//     典型查询: WHERE recipient_id = ? AND is_read = false ORDER BY created_at DESC
type Notification struct {
	ID              int64  `gorm:"primaryKey;column:id;type:bigint;autoIncrement:false"`
	RecipientID     int64  `gorm:"column:recipient_id;type:bigint;not null;index:idx_recipient_read,priority:1"`
	Kind            string `gorm:"column:kind;type:varchar(32);not null"`
	Text            string `gorm:"column:text;type:varchar(512);not null"`
	ActorID         int64  `gorm:"column:actor_id;type:bigint"`
	ChannelID       *int64 `gorm:"column:channel_id;type:bigint"`
	MessageID       *int64 `gorm:"column:message_id;type:bigint"`
	DirectMessageID *int64 `gorm:"column:direct_message_id;type:bigint"`
	WorkspaceID     *int64 `gorm:"column:workspace_id;type:bigint"`
	IsRead          bool   `gorm:"column:is_read;type:boolean;not null;default:false;index:idx_recipient_read,priority:2"`
	CreatedAt       time.Time
}

// WorkspaceInvitation 工作区邀请表
// 索引：PK(id) + uniq_token(token)
// 仅作为存储契约保留：邀请的业务流程（接受/过期/邮件）不在本系统范围内，
// 但 WORKSPACE_INVITE 类型的通知需要引用邀请记录。
type WorkspaceInvitation struct {
	ID          int64  `gorm:"primaryKey;column:id;autoIncrement"`
	Email       string `gorm:"column:email;type:varchar(255);not null"`
	WorkspaceID int64  `gorm:"column:workspace_id;type:bigint;not null"`
	InviterID   int64  `gorm:"column:inviter_id;type:bigint;not null"`
	Role        string `gorm:"column:role;type:varchar(16);not null;default:MEMBER"`
	Status      string `gorm:"column:status;type:varchar(16);not null;default:PENDING"` // PENDING / ACCEPTED / DECLINED
	Token       string `gorm:"column:token;type:varchar(64);not null;uniqueIndex:uniq_token"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ============================================================================
// 表名映射
// ============================================================================

func (User) TableName() string                { return "t_user" }
func (Workspace) TableName() string           { return "t_workspace" }
func (WorkspaceMember) TableName() string     { return "t_workspace_member" }
func (Channel) TableName() string             { return "t_channel" }
func (Message) TableName() string             { return "t_message" }
func (Reaction) TableName() string            { return "t_reaction" }
func (DirectMessage) TableName() string       { return "t_direct_message" }
func (Notification) TableName() string        { return "t_notification" }
func (WorkspaceInvitation) TableName() string { return "t_workspace_invitation" }

// ============================================================================
// 常量
// ============================================================================

// 消息类型
const (
	MessageTypeText = "TEXT"
	MessageTypeFile = "FILE"
)

// 工作区成员角色
const (
	RoleOwner  = "OWNER"
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

// 通知类型
const (
	NotifyChannelMessage  = "CHANNEL_MESSAGE"
	NotifyDirectMessage   = "DIRECT_MESSAGE"
	NotifyThreadReply     = "THREAD_REPLY"
	NotifyReaction = "REACTION"
	// NotifyMention 为客户端约定预留的枚举值，@提及解析尚未接入扩散流程
	NotifyMention         = "MENTION"
	NotifyWorkspaceInvite = "WORKSPACE_INVITE"
)

// 邀请状态
const (
	InviteStatusPending  = "PENDING"
	InviteStatusAccepted = "ACCEPTED"
	InviteStatusDeclined = "DECLINED"
)

// AllModels 返回所有需要 AutoMigrate 的模型列表
func AllModels() []any {
	return []any{
		&User{},
		&Workspace{},
		&WorkspaceMember{},
		&Channel{},
		&Message{},
		&Reaction{},
		&DirectMessage{},
		&Notification{},
		&WorkspaceInvitation{},
	}
}
