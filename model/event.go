package model

import "time"

// ============================================================================
// 广播载荷（非持久化）
// 所有通过主题路由下发给客户端的事件均使用以下规范结构，
// JSON 序列化一次，多个订阅者共享同一份字节。
// ============================================================================

// ChatMessage 频道消息的规范广播形式
// 持久化成功后由入站管道构造，包含发送者概要与派生计数
type ChatMessage struct {
	ID              int64     `json:"id,string"`
	ChannelID       int64     `json:"channelId,string"`
	SenderID        int64     `json:"senderId,string"`
	SenderName      string    `json:"senderName"`
	SenderAvatarURL string    `json:"senderAvatarUrl,omitempty"`
	Content         string    `json:"content"`
	Type            string    `json:"type"`
	ParentMessageID *int64    `json:"parentMessageId,string,omitempty"`
	ReplyCount      int       `json:"replyCount"`
	ReactionCount   int       `json:"reactionCount"`
	CreatedAt       time.Time `json:"createdAt"`
}

// DirectMessagePayload 私信的规范广播形式
type DirectMessagePayload struct {
	ID            int64     `json:"id,string"`
	SenderID      int64     `json:"senderId,string"`
	SenderName    string    `json:"senderName"`
	RecipientID   int64     `json:"recipientId,string"`
	RecipientName string    `json:"recipientName"`
	Content       string    `json:"content"`
	Type          string    `json:"type"`
	CreatedAt     time.Time `json:"createdAt"`
}

// TypingSignal 输入状态信号，纯转发，不落库
// ChannelID 为 nil 时表示私信输入状态
type TypingSignal struct {
	ChannelID   *int64 `json:"channelId,string,omitempty"`
	UserID      int64  `json:"userId,string"`
	DisplayName string `json:"displayName"`
	IsTyping    bool   `json:"isTyping"`
}

// PresenceSnapshot 频道在线状态快照
// Users 是生成时刻的副本，消费方可安全迭代
type PresenceSnapshot struct {
	ChannelID int64   `json:"channelId,string"`
	UserIDs   []int64 `json:"userIds"`
	Count     int     `json:"count"`
}

// NotificationPayload 通知的下发形式
type NotificationPayload struct {
	ID              int64     `json:"id,string"`
	Kind            string    `json:"kind"`
	Text            string    `json:"text"`
	ActorID         int64     `json:"actorId,string"`
	ActorName       string    `json:"actorName,omitempty"`
	ChannelID       *int64    `json:"channelId,string,omitempty"`
	MessageID       *int64    `json:"messageId,string,omitempty"`
	DirectMessageID *int64    `json:"directMessageId,string,omitempty"`
	WorkspaceID     *int64    `json:"workspaceId,string,omitempty"`
	IsRead          bool      `json:"isRead"`
	CreatedAt       time.Time `json:"createdAt"`
}

// UnreadCount 未读数推送，随通知写入或已读状态变化下发
type UnreadCount struct {
	Count int64 `json:"count"`
}

// ReactionUpdate 反应计数变化的广播形式
type ReactionUpdate struct {
	MessageID     int64 `json:"messageId,string"`
	ChannelID     int64 `json:"channelId,string"`
	UserID        int64 `json:"userId,string"`
	ReactionCount int   `json:"reactionCount"`
	Added         bool  `json:"added"`
}

// MessageDeleted 消息删除事件
type MessageDeleted struct {
	MessageID int64 `json:"messageId,string"`
	ChannelID int64 `json:"channelId,string"`
}
