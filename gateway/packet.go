package gateway

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// 线上协议
// JSON 标签变体：每个帧带 type 字段标明载荷形状，网关按 type 显式分发。
// ============================================================================

// 入站帧类型
const (
	PacketPulse       = "pulse"
	PacketSubscribe   = "subscribe"
	PacketUnsubscribe = "unsubscribe"
	PacketChatSend    = "chat.send"
	PacketChatTyping  = "chat.typing"
	PacketChatJoin    = "chat.join"
	PacketChatLeave   = "chat.leave"
	PacketDMSend      = "dm.send"
	PacketDMTyping    = "dm.typing"
)

// 出站帧类型
const (
	PacketPong  = "pong"
	PacketAck   = "ack"
	PacketEvent = "event"
	PacketError = "error"
)

// Packet WebSocket 帧
// Seq 由客户端生成，用于把 ack 对应回请求；Topic 仅事件帧与订阅操作携带
type Packet struct {
	Type  string          `json:"type"`
	Seq   string          `json:"seq,omitempty"`
	Topic string          `json:"topic,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodePacket 解码入站帧
func DecodePacket(data []byte) (*Packet, error) {
	var packet Packet
	if err := json.Unmarshal(data, &packet); err != nil {
		return nil, fmt.Errorf("failed to decode packet: %w", err)
	}
	if packet.Type == "" {
		return nil, fmt.Errorf("packet type cannot be empty")
	}
	return &packet, nil
}

// EncodePacket 编码出站帧
func EncodePacket(packet *Packet) ([]byte, error) {
	if packet == nil {
		return nil, fmt.Errorf("packet cannot be nil")
	}
	data, err := json.Marshal(packet)
	if err != nil {
		return nil, fmt.Errorf("failed to encode packet: %w", err)
	}
	return data, nil
}

// ============================================================================
// 入站载荷
// ============================================================================

// ChatSendRequest 发送频道消息
type ChatSendRequest struct {
	ChannelID       int64  `json:"channelId,string"`
	Content         string `json:"content"`
	Type            string `json:"type,omitempty"`
	ParentMessageID *int64 `json:"parentMessageId,string,omitempty"`
}

// ChatTypingRequest 频道输入状态
type ChatTypingRequest struct {
	ChannelID int64 `json:"channelId,string"`
	IsTyping  bool  `json:"isTyping"`
}

// ChatJoinRequest 加入/离开频道在线集合
type ChatJoinRequest struct {
	ChannelID int64 `json:"channelId,string"`
}

// DMSendRequest 发送私信
type DMSendRequest struct {
	RecipientID int64  `json:"recipientId,string"`
	Content     string `json:"content"`
	Type        string `json:"type,omitempty"`
}

// DMTypingRequest 私信输入状态
type DMTypingRequest struct {
	RecipientID int64 `json:"recipientId,string"`
	IsTyping    bool  `json:"isTyping"`
}

// ============================================================================
// 出站载荷与构造函数
// ============================================================================

// AckData 请求确认
type AckData struct {
	ID    int64  `json:"id,string,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewPongPacket 心跳响应帧
func NewPongPacket(seq string) *Packet {
	return &Packet{Type: PacketPong, Seq: seq}
}

// NewAckPacket 确认帧，id 为服务端生成的资源 ID，errMsg 非空表示请求失败
func NewAckPacket(seq string, id int64, errMsg string) *Packet {
	data, _ := json.Marshal(&AckData{ID: id, Error: errMsg})
	return &Packet{Type: PacketAck, Seq: seq, Data: data}
}

// NewEventPacket 事件帧，payload 是路由器序列化好的事件
func NewEventPacket(topic string, payload []byte) *Packet {
	return &Packet{Type: PacketEvent, Topic: topic, Data: payload}
}

// NewErrorPacket 错误帧
func NewErrorPacket(seq string, errMsg string) *Packet {
	data, _ := json.Marshal(&AckData{Error: errMsg})
	return &Packet{Type: PacketError, Seq: seq, Data: data}
}
