package gateway

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/genesis/clog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSubscriber 记录收到的投递，deliverErr 非空时模拟慢订阅者丢弃
type fakeSubscriber struct {
	id         string
	mu         sync.Mutex
	topics     []string
	payloads   [][]byte
	deliverErr error
}

func (s *fakeSubscriber) ID() string { return s.id }

func (s *fakeSubscriber) Deliver(topic string, payload []byte) error {
	if s.deliverErr != nil {
		return s.deliverErr
	}
	s.mu.Lock()
	s.topics = append(s.topics, topic)
	s.payloads = append(s.payloads, payload)
	s.mu.Unlock()
	return nil
}

func (s *fakeSubscriber) received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.payloads...)
}

func TestRouter_PublishToSubscribers(t *testing.T) {
	r := NewRouter(clog.Discard())
	subA := &fakeSubscriber{id: "a"}
	subB := &fakeSubscriber{id: "b"}
	r.Subscribe("channel.1", subA)
	r.Subscribe("channel.1", subB)

	err := r.Publish("channel.1", &model.PresenceSnapshot{ChannelID: 1, UserIDs: []int64{7}, Count: 1})
	require.NoError(t, err)

	require.Len(t, subA.received(), 1)
	require.Len(t, subB.received(), 1)
	// 两个订阅者收到同一份序列化结果
	assert.Equal(t, subA.received()[0], subB.received()[0])

	var snapshot model.PresenceSnapshot
	require.NoError(t, json.Unmarshal(subA.received()[0], &snapshot))
	assert.Equal(t, int64(1), snapshot.ChannelID)
	assert.Equal(t, 1, snapshot.Count)
}

func TestRouter_PublishWithoutSubscribersIsNoop(t *testing.T) {
	r := NewRouter(clog.Discard())
	err := r.Publish("channel.404", &model.UnreadCount{Count: 1})
	require.NoError(t, err, "没有订阅者的发布是成功的空操作")
}

func TestRouter_PerPublisherOrderPreserved(t *testing.T) {
	r := NewRouter(clog.Discard())
	sub := &fakeSubscriber{id: "a"}
	r.Subscribe("channel.1", sub)

	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, r.Publish("channel.1", &model.UnreadCount{Count: int64(i)}))
	}

	payloads := sub.received()
	require.Len(t, payloads, n)
	for i, payload := range payloads {
		var count model.UnreadCount
		require.NoError(t, json.Unmarshal(payload, &count))
		require.Equal(t, int64(i), count.Count, "同一发布方的发布顺序必须保持")
	}
}

func TestRouter_SlowSubscriberDoesNotBlockOthers(t *testing.T) {
	r := NewRouter(clog.Discard())
	slow := &fakeSubscriber{id: "slow", deliverErr: fmt.Errorf("send buffer full")}
	fast := &fakeSubscriber{id: "fast"}
	r.Subscribe("channel.1", slow)
	r.Subscribe("channel.1", fast)

	err := r.Publish("channel.1", &model.UnreadCount{Count: 1})
	require.NoError(t, err, "单个订阅者投递失败不向发布方传播")
	require.Len(t, fast.received(), 1)
}

func TestRouter_Unsubscribe(t *testing.T) {
	r := NewRouter(clog.Discard())
	sub := &fakeSubscriber{id: "a"}
	r.Subscribe("channel.1", sub)
	require.Equal(t, 1, r.SubscriberCount("channel.1"))

	r.Unsubscribe("channel.1", sub)
	require.Zero(t, r.SubscriberCount("channel.1"))

	require.NoError(t, r.Publish("channel.1", &model.UnreadCount{}))
	require.Empty(t, sub.received())

	// 重复取消是空操作
	r.Unsubscribe("channel.1", sub)
}

func TestRouter_UnsubscribeAll(t *testing.T) {
	r := NewRouter(clog.Discard())
	sub := &fakeSubscriber{id: "a"}
	other := &fakeSubscriber{id: "b"}
	r.Subscribe("channel.1", sub)
	r.Subscribe("dm.7", sub)
	r.Subscribe("user.7.notifications", sub)
	r.Subscribe("channel.1", other)

	r.UnsubscribeAll(sub)

	assert.Equal(t, 1, r.SubscriberCount("channel.1"), "其他订阅者不受影响")
	assert.Zero(t, r.SubscriberCount("dm.7"))
	assert.Zero(t, r.SubscriberCount("user.7.notifications"))
}

func TestRouter_ConcurrentSubscribePublish(t *testing.T) {
	r := NewRouter(clog.Discard())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			sub := &fakeSubscriber{id: fmt.Sprintf("sub-%d", n)}
			for j := 0; j < 50; j++ {
				r.Subscribe("channel.1", sub)
				r.Publish("channel.1", &model.UnreadCount{Count: int64(j)})
				r.UnsubscribeAll(sub)
			}
		}(i)
	}
	wg.Wait()

	require.Zero(t, r.SubscriberCount("channel.1"))
}
