package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ceyewan/buzzlink/observability"
	"github.com/ceyewan/genesis/clog"
)

// Subscriber 主题订阅方
// Deliver 必须是非阻塞的：慢订阅者由实现方丢弃本次投递并返回错误
type Subscriber interface {
	// ID 订阅方的唯一标识
	ID() string
	// Deliver 投递一条已序列化的事件
	Deliver(topic string, payload []byte) error
}

// Router 进程内主题路由器
// 纯转发，不理解业务载荷：发布方给出主题与事件，路由器序列化一次后
// 投递给当时的全部订阅者。没有订阅者的发布是空操作。
// 同一发布方对同一主题的发布顺序在每个订阅者处保持。
type Router struct {
	mu     sync.RWMutex
	topics map[string]map[string]Subscriber // topic -> subscriber id -> subscriber
	index  map[string]map[string]struct{}   // subscriber id -> topics
	logger clog.Logger
}

// NewRouter 创建主题路由器
func NewRouter(logger clog.Logger) *Router {
	return &Router{
		topics: make(map[string]map[string]Subscriber),
		index:  make(map[string]map[string]struct{}),
		logger: logger.WithNamespace("router"),
	}
}

// Subscribe 订阅主题，重复订阅幂等
func (r *Router) Subscribe(topic string, sub Subscriber) {
	if topic == "" || sub == nil {
		return
	}

	r.mu.Lock()
	subs, ok := r.topics[topic]
	if !ok {
		subs = make(map[string]Subscriber)
		r.topics[topic] = subs
	}
	subs[sub.ID()] = sub

	topics, ok := r.index[sub.ID()]
	if !ok {
		topics = make(map[string]struct{})
		r.index[sub.ID()] = topics
	}
	topics[topic] = struct{}{}
	r.mu.Unlock()

	r.logger.Debug("订阅主题",
		clog.String("topic", topic),
		clog.String("subscriber", sub.ID()))
}

// Unsubscribe 取消订阅，未订阅时为空操作
func (r *Router) Unsubscribe(topic string, sub Subscriber) {
	if topic == "" || sub == nil {
		return
	}

	r.mu.Lock()
	if subs, ok := r.topics[topic]; ok {
		delete(subs, sub.ID())
		if len(subs) == 0 {
			delete(r.topics, topic)
		}
	}
	if topics, ok := r.index[sub.ID()]; ok {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(r.index, sub.ID())
		}
	}
	r.mu.Unlock()
}

// UnsubscribeAll 移除某订阅方的全部订阅，连接断开时调用
func (r *Router) UnsubscribeAll(sub Subscriber) {
	if sub == nil {
		return
	}

	r.mu.Lock()
	topics, ok := r.index[sub.ID()]
	if ok {
		for topic := range topics {
			if subs, exists := r.topics[topic]; exists {
				delete(subs, sub.ID())
				if len(subs) == 0 {
					delete(r.topics, topic)
				}
			}
		}
		delete(r.index, sub.ID())
	}
	r.mu.Unlock()
}

// Publish 发布事件到主题
// 序列化失败返回错误；单个订阅者投递失败只记日志，不影响其他订阅者，
// 也不向发布方传播。
func (r *Router) Publish(topic string, event any) error {
	if topic == "" {
		return fmt.Errorf("topic cannot be empty")
	}

	r.mu.RLock()
	subs := r.topics[topic]
	snapshot := make([]Subscriber, 0, len(subs))
	for _, sub := range subs {
		snapshot = append(snapshot, sub)
	}
	r.mu.RUnlock()

	// 没有订阅者：空操作
	if len(snapshot) == 0 {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	delivered := 0
	for _, sub := range snapshot {
		if err := sub.Deliver(topic, payload); err != nil {
			// 瞬时投递失败：丢弃本次投递，订阅者依赖拉取接口追平
			r.logger.Warn("投递事件失败",
				clog.String("topic", topic),
				clog.String("subscriber", sub.ID()),
				clog.Error(err))
			observability.RecordBroadcastDropped(context.Background())
			continue
		}
		delivered++
	}
	observability.RecordBroadcastDelivered(context.Background(), delivered)
	return nil
}

// SubscriberCount 返回主题当前的订阅者数
func (r *Router) SubscriberCount(topic string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}
