package model

import "fmt"

// 主题命名是客户端与服务端的共同契约：
// 订阅操作携带的主题字符串必须与这里的构造结果一致。

// TopicChannel 频道消息主题
func TopicChannel(channelID int64) string {
	return fmt.Sprintf("channel.%d", channelID)
}

// TopicChannelTyping 频道输入状态主题
func TopicChannelTyping(channelID int64) string {
	return fmt.Sprintf("channel.%d.typing", channelID)
}

// TopicChannelPresence 频道在线状态主题
func TopicChannelPresence(channelID int64) string {
	return fmt.Sprintf("channel.%d.presence", channelID)
}

// TopicDM 私信主题
func TopicDM(userID int64) string {
	return fmt.Sprintf("dm.%d", userID)
}

// TopicDMTyping 私信输入状态主题
func TopicDMTyping(userID int64) string {
	return fmt.Sprintf("dm.%d.typing", userID)
}

// TopicNotifications 用户通知主题
func TopicNotifications(userID int64) string {
	return fmt.Sprintf("user.%d.notifications", userID)
}

// TopicNotificationCount 用户未读数主题
func TopicNotificationCount(userID int64) string {
	return fmt.Sprintf("user.%d.notifications.count", userID)
}
