package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ceyewan/buzzlink/fanout"
	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/buzzlink/observability"
	"github.com/ceyewan/buzzlink/service"
	"github.com/ceyewan/genesis/clog"
)

// Dispatcher 帧分发器
// 网关是单纯的会话适配层：这里不做业务决策，只把帧解码成对服务层的调用，
// 并按固定顺序编排副作用：持久化成功 -> 广播 -> 通知入队。
type Dispatcher struct {
	router   *Router
	presence *Presence
	chatSvc  *service.ChatService
	dmSvc    *service.DMService
	fanout   *fanout.Fanout
	logger   clog.Logger
}

// NewDispatcher 创建帧分发器
func NewDispatcher(
	router *Router,
	presence *Presence,
	chatSvc *service.ChatService,
	dmSvc *service.DMService,
	fanoutWorker *fanout.Fanout,
	logger clog.Logger,
) *Dispatcher {
	return &Dispatcher{
		router:   router,
		presence: presence,
		chatSvc:  chatSvc,
		dmSvc:    dmSvc,
		fanout:   fanoutWorker,
		logger:   logger.WithNamespace("dispatcher"),
	}
}

// HandlePacket 实现 PacketHandler 接口
func (d *Dispatcher) HandlePacket(ctx context.Context, conn *Conn, packet *Packet) error {
	switch packet.Type {
	case PacketPulse:
		return conn.Send(NewPongPacket(packet.Seq))
	case PacketSubscribe:
		return d.handleSubscribe(conn, packet)
	case PacketUnsubscribe:
		return d.handleUnsubscribe(conn, packet)
	case PacketChatJoin:
		return d.handleChatJoin(conn, packet)
	case PacketChatLeave:
		return d.handleChatLeave(conn, packet)
	case PacketChatTyping:
		return d.handleChatTyping(conn, packet)
	case PacketChatSend:
		return d.handleChatSend(ctx, conn, packet)
	case PacketDMSend:
		return d.handleDMSend(ctx, conn, packet)
	case PacketDMTyping:
		return d.handleDMTyping(conn, packet)
	default:
		conn.Send(NewErrorPacket(packet.Seq, fmt.Sprintf("unknown packet type: %s", packet.Type)))
		return fmt.Errorf("unknown packet type: %s", packet.Type)
	}
}

// handleSubscribe 处理主题订阅
func (d *Dispatcher) handleSubscribe(conn *Conn, packet *Packet) error {
	if err := validateTopic(packet.Topic, conn.UserID()); err != nil {
		conn.Send(NewErrorPacket(packet.Seq, err.Error()))
		return err
	}
	d.router.Subscribe(packet.Topic, conn)
	return conn.Send(NewAckPacket(packet.Seq, 0, ""))
}

// handleUnsubscribe 处理取消订阅
func (d *Dispatcher) handleUnsubscribe(conn *Conn, packet *Packet) error {
	if packet.Topic == "" {
		conn.Send(NewErrorPacket(packet.Seq, "topic cannot be empty"))
		return fmt.Errorf("topic cannot be empty")
	}
	d.router.Unsubscribe(packet.Topic, conn)
	return conn.Send(NewAckPacket(packet.Seq, 0, ""))
}

// handleChatJoin 用户加入频道在线集合，并向该频道广播最新快照
func (d *Dispatcher) handleChatJoin(conn *Conn, packet *Packet) error {
	var req ChatJoinRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		conn.Send(NewErrorPacket(packet.Seq, "invalid payload"))
		return fmt.Errorf("failed to decode join request: %w", err)
	}

	d.presence.Join(req.ChannelID, conn.UserID())
	d.publishPresence(req.ChannelID)
	return conn.Send(NewAckPacket(packet.Seq, 0, ""))
}

// handleChatLeave 用户离开频道在线集合
func (d *Dispatcher) handleChatLeave(conn *Conn, packet *Packet) error {
	var req ChatJoinRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		conn.Send(NewErrorPacket(packet.Seq, "invalid payload"))
		return fmt.Errorf("failed to decode leave request: %w", err)
	}

	d.presence.Leave(req.ChannelID, conn.UserID())
	d.publishPresence(req.ChannelID)
	return conn.Send(NewAckPacket(packet.Seq, 0, ""))
}

// handleChatTyping 频道输入状态，纯转发，不落库不确认
func (d *Dispatcher) handleChatTyping(conn *Conn, packet *Packet) error {
	var req ChatTypingRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return fmt.Errorf("failed to decode typing request: %w", err)
	}

	return d.router.Publish(model.TopicChannelTyping(req.ChannelID), &model.TypingSignal{
		ChannelID:   &req.ChannelID,
		UserID:      conn.UserID(),
		DisplayName: conn.DisplayName(),
		IsTyping:    req.IsTyping,
	})
}

// handleChatSend 频道消息入站
// 持久化成功才确认和广播；通知扩散排在广播之后，由后台 worker 完成
func (d *Dispatcher) handleChatSend(ctx context.Context, conn *Conn, packet *Packet) error {
	var req ChatSendRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		conn.Send(NewErrorPacket(packet.Seq, "invalid payload"))
		return fmt.Errorf("failed to decode chat send request: %w", err)
	}

	msg, err := d.chatSvc.SubmitChannelMessage(ctx, req.ChannelID, conn.UserID(), req.Content, req.Type, req.ParentMessageID)
	if err != nil {
		conn.Send(NewAckPacket(packet.Seq, 0, ackError(err)))
		return err
	}
	observability.RecordMessageReceived(ctx)

	if err := conn.Send(NewAckPacket(packet.Seq, msg.ID, "")); err != nil {
		d.logger.Warn("发送确认失败",
			clog.Int64("msg_id", msg.ID),
			clog.Error(err))
	}

	if err := d.router.Publish(model.TopicChannel(msg.ChannelID), msg); err != nil {
		d.logger.Error("广播频道消息失败",
			clog.Int64("msg_id", msg.ID),
			clog.Error(err))
	}

	d.enqueueFanout(ctx, msg)
	return nil
}

// handleDMSend 私信入站
// 广播到双方的私信主题：接收方收到新消息，发送方的其他端看到自己发出的消息
func (d *Dispatcher) handleDMSend(ctx context.Context, conn *Conn, packet *Packet) error {
	var req DMSendRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		conn.Send(NewErrorPacket(packet.Seq, "invalid payload"))
		return fmt.Errorf("failed to decode dm send request: %w", err)
	}

	payload, task, err := d.dmSvc.SendDirectMessage(ctx, conn.UserID(), req.RecipientID, req.Content, req.Type)
	if err != nil {
		conn.Send(NewAckPacket(packet.Seq, 0, ackError(err)))
		return err
	}
	observability.RecordMessageReceived(ctx)

	if err := conn.Send(NewAckPacket(packet.Seq, payload.ID, "")); err != nil {
		d.logger.Warn("发送确认失败",
			clog.Int64("dm_id", payload.ID),
			clog.Error(err))
	}

	if err := d.router.Publish(model.TopicDM(payload.RecipientID), payload); err != nil {
		d.logger.Error("广播私信失败", clog.Int64("dm_id", payload.ID), clog.Error(err))
	}
	if payload.SenderID != payload.RecipientID {
		if err := d.router.Publish(model.TopicDM(payload.SenderID), payload); err != nil {
			d.logger.Error("广播私信失败", clog.Int64("dm_id", payload.ID), clog.Error(err))
		}
	}

	if task != nil {
		if err := d.fanout.Enqueue(task); err != nil {
			d.logger.Warn("通知任务入队失败",
				clog.Int64("dm_id", payload.ID),
				clog.Error(err))
		}
	}
	return nil
}

// handleDMTyping 私信输入状态，纯转发
func (d *Dispatcher) handleDMTyping(conn *Conn, packet *Packet) error {
	var req DMTypingRequest
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return fmt.Errorf("failed to decode dm typing request: %w", err)
	}

	return d.router.Publish(model.TopicDMTyping(req.RecipientID), &model.TypingSignal{
		UserID:      conn.UserID(),
		DisplayName: conn.DisplayName(),
		IsTyping:    req.IsTyping,
	})
}

// enqueueFanout 计算受众并入队通知任务，尽力而为
func (d *Dispatcher) enqueueFanout(ctx context.Context, msg *model.ChatMessage) {
	task, err := d.chatSvc.BuildMessageFanout(ctx, msg)
	if err != nil {
		d.logger.Warn("计算通知受众失败",
			clog.Int64("msg_id", msg.ID),
			clog.Error(err))
		return
	}
	if task == nil {
		return
	}
	if err := d.fanout.Enqueue(task); err != nil {
		d.logger.Warn("通知任务入队失败",
			clog.Int64("msg_id", msg.ID),
			clog.Error(err))
	}
}

// PublishPresence 向频道的在线状态主题广播最新快照
// 连接断开清理后由网关对受影响的频道逐一调用
func (d *Dispatcher) PublishPresence(channelID int64) {
	d.publishPresence(channelID)
}

func (d *Dispatcher) publishPresence(channelID int64) {
	users, count := d.presence.Snapshot(channelID)
	if err := d.router.Publish(model.TopicChannelPresence(channelID), &model.PresenceSnapshot{
		ChannelID: channelID,
		UserIDs:   users,
		Count:     count,
	}); err != nil {
		d.logger.Warn("广播在线状态失败",
			clog.Int64("channel_id", channelID),
			clog.Error(err))
	}
}

// ackError 把服务层错误转为面向客户端的确认文案
func ackError(err error) string {
	switch {
	case service.IsNotFound(err):
		return "not found"
	case service.IsForbidden(err):
		return "forbidden"
	default:
		return "internal error"
	}
}

// validateTopic 校验订阅请求的主题
// 频道类主题对任何已认证用户开放；私信与通知类主题只允许本人订阅
func validateTopic(topic string, userID int64) error {
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}
	parts := strings.Split(topic, ".")

	switch parts[0] {
	case "channel":
		if len(parts) == 2 || (len(parts) == 3 && (parts[2] == "typing" || parts[2] == "presence")) {
			if _, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				return nil
			}
		}
	case "dm":
		if len(parts) == 2 || (len(parts) == 3 && parts[2] == "typing") {
			if id, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				if id != userID {
					return fmt.Errorf("cannot subscribe to another user's topic")
				}
				return nil
			}
		}
	case "user":
		if (len(parts) == 3 && parts[2] == "notifications") ||
			(len(parts) == 4 && parts[2] == "notifications" && parts[3] == "count") {
			if id, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				if id != userID {
					return fmt.Errorf("cannot subscribe to another user's topic")
				}
				return nil
			}
		}
	}
	return fmt.Errorf("invalid topic: %s", topic)
}
