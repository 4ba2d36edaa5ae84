package fanout

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/genesis/clog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testIDGen struct {
	counter int64
}

func (g *testIDGen) Next() int64 {
	return atomic.AddInt64(&g.counter, 1)
}

// memNotificationRepo 进程内通知存储，记录每个接收方收到的通知
type memNotificationRepo struct {
	mu    sync.Mutex
	saved map[int64][]*model.Notification
}

func newMemNotificationRepo() *memNotificationRepo {
	return &memNotificationRepo{saved: make(map[int64][]*model.Notification)}
}

func (r *memNotificationRepo) SaveNotification(ctx context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *n
	r.saved[n.RecipientID] = append(r.saved[n.RecipientID], &copied)
	return nil
}
func (r *memNotificationRepo) ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]*model.Notification, error) {
	return nil, nil
}
func (r *memNotificationRepo) ListUnread(ctx context.Context, recipientID int64, limit int) ([]*model.Notification, error) {
	return nil, nil
}
func (r *memNotificationRepo) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.saved[recipientID])), nil
}
func (r *memNotificationRepo) MarkRead(ctx context.Context, id, recipientID int64) (bool, error) {
	return false, nil
}
func (r *memNotificationRepo) MarkAllRead(ctx context.Context, recipientID int64) (int64, error) {
	return 0, nil
}

func (r *memNotificationRepo) savedFor(recipientID int64) []*model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.Notification(nil), r.saved[recipientID]...)
}

// recordingPublisher 记录发布的 (topic, event)
type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
}

func (p *recordingPublisher) Publish(topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) topicCount(topic string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, t := range p.topics {
		if t == topic {
			count++
		}
	}
	return count
}

func TestFanout_DeliversToAllRecipients(t *testing.T) {
	notifRepo := newMemNotificationRepo()
	pub := &recordingPublisher{}
	f, err := New(notifRepo, &testIDGen{}, pub, clog.Discard(), WithWorkers(2))
	require.NoError(t, err)
	defer f.Close()

	channelID := int64(100)
	err = f.Enqueue(&Task{
		Kind:       model.NotifyChannelMessage,
		Text:       "Alice posted in #general",
		ActorID:    7,
		ActorName:  "Alice",
		Recipients: []int64{8, 9},
		ChannelID:  &channelID,
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(notifRepo.savedFor(8)) == 1 && len(notifRepo.savedFor(9)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	saved := notifRepo.savedFor(8)[0]
	assert.NotZero(t, saved.ID)
	assert.Equal(t, model.NotifyChannelMessage, saved.Kind)
	assert.Equal(t, int64(7), saved.ActorID)
	require.NotNil(t, saved.ChannelID)
	assert.Equal(t, channelID, *saved.ChannelID)

	// 每个接收方各收到一条通知推送和一条未读数推送
	require.Eventually(t, func() bool {
		return pub.topicCount(model.TopicNotifications(8)) == 1 &&
			pub.topicCount(model.TopicNotificationCount(8)) == 1 &&
			pub.topicCount(model.TopicNotifications(9)) == 1 &&
			pub.topicCount(model.TopicNotificationCount(9)) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFanout_EmptyRecipientsIsNoop(t *testing.T) {
	notifRepo := newMemNotificationRepo()
	f, err := New(notifRepo, &testIDGen{}, &recordingPublisher{}, clog.Discard())
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Enqueue(&Task{Kind: model.NotifyReaction}))
	assert.Zero(t, f.QueueSize())
}

func TestFanout_QueueFullRejectsWithoutBlocking(t *testing.T) {
	// 容量 1 的队列加阻塞的 repo 逼出队列满
	blocker := make(chan struct{})
	slowRepo := &blockingNotificationRepo{inner: newMemNotificationRepo(), release: blocker}

	f, err := New(slowRepo, &testIDGen{}, &recordingPublisher{}, clog.Discard(),
		WithQueueSize(1), WithWorkers(1))
	require.NoError(t, err)

	// 第一条任务占住 worker，第二条占满队列，第三条必须立即被拒绝
	require.NoError(t, f.Enqueue(&Task{Kind: "a", Recipients: []int64{1}}))
	require.Eventually(t, func() bool { return slowRepo.entered.Load() }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, f.Enqueue(&Task{Kind: "b", Recipients: []int64{1}}))

	done := make(chan error, 1)
	go func() { done <- f.Enqueue(&Task{Kind: "c", Recipients: []int64{1}}) }()
	select {
	case err := <-done:
		require.Error(t, err, "队列满时必须立即拒绝而不是阻塞")
	case <-time.After(time.Second):
		t.Fatal("入队阻塞了消息主流程")
	}

	close(blocker)
	f.Close()
}

// blockingNotificationRepo 第一次 SaveNotification 时阻塞，直到 release 关闭
type blockingNotificationRepo struct {
	inner   *memNotificationRepo
	release chan struct{}
	entered atomic.Bool
	once    sync.Once
}

func (r *blockingNotificationRepo) SaveNotification(ctx context.Context, n *model.Notification) error {
	r.once.Do(func() {
		r.entered.Store(true)
		<-r.release
	})
	return r.inner.SaveNotification(ctx, n)
}
func (r *blockingNotificationRepo) ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]*model.Notification, error) {
	return r.inner.ListByRecipient(ctx, recipientID, limit)
}
func (r *blockingNotificationRepo) ListUnread(ctx context.Context, recipientID int64, limit int) ([]*model.Notification, error) {
	return r.inner.ListUnread(ctx, recipientID, limit)
}
func (r *blockingNotificationRepo) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	return r.inner.CountUnread(ctx, recipientID)
}
func (r *blockingNotificationRepo) MarkRead(ctx context.Context, id, recipientID int64) (bool, error) {
	return r.inner.MarkRead(ctx, id, recipientID)
}
func (r *blockingNotificationRepo) MarkAllRead(ctx context.Context, recipientID int64) (int64, error) {
	return r.inner.MarkAllRead(ctx, recipientID)
}

func TestFanout_SaveFailureDoesNotStopOtherRecipients(t *testing.T) {
	notifRepo := newMemNotificationRepo()
	pub := &recordingPublisher{}
	f, err := New(&flakyNotificationRepo{inner: notifRepo, failFor: 8}, &testIDGen{}, pub, clog.Discard())
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, f.Enqueue(&Task{
		Kind:       model.NotifyChannelMessage,
		Text:       "hello",
		ActorID:    7,
		Recipients: []int64{8, 9},
	}))

	require.Eventually(t, func() bool {
		return len(notifRepo.savedFor(9)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Empty(t, notifRepo.savedFor(8))
	assert.Zero(t, pub.topicCount(model.TopicNotifications(8)), "落库失败的接收方不推送")
}

// flakyNotificationRepo 对特定接收方的落库固定失败
type flakyNotificationRepo struct {
	inner   *memNotificationRepo
	failFor int64
}

func (r *flakyNotificationRepo) SaveNotification(ctx context.Context, n *model.Notification) error {
	if n.RecipientID == r.failFor {
		return fmt.Errorf("storage unavailable")
	}
	return r.inner.SaveNotification(ctx, n)
}
func (r *flakyNotificationRepo) ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]*model.Notification, error) {
	return r.inner.ListByRecipient(ctx, recipientID, limit)
}
func (r *flakyNotificationRepo) ListUnread(ctx context.Context, recipientID int64, limit int) ([]*model.Notification, error) {
	return r.inner.ListUnread(ctx, recipientID, limit)
}
func (r *flakyNotificationRepo) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	return r.inner.CountUnread(ctx, recipientID)
}
func (r *flakyNotificationRepo) MarkRead(ctx context.Context, id, recipientID int64) (bool, error) {
	return r.inner.MarkRead(ctx, id, recipientID)
}
func (r *flakyNotificationRepo) MarkAllRead(ctx context.Context, recipientID int64) (int64, error) {
	return r.inner.MarkAllRead(ctx, recipientID)
}

func TestFanout_EnqueueAfterCloseReturnsError(t *testing.T) {
	notifRepo := newMemNotificationRepo()
	f, err := New(notifRepo, &testIDGen{}, &recordingPublisher{}, clog.Discard())
	require.NoError(t, err)

	require.NoError(t, f.Close())

	err = f.Enqueue(&Task{Kind: model.NotifyChannelMessage, Recipients: []int64{1}})
	require.Error(t, err)

	// Close 幂等
	require.NoError(t, f.Close())
}

func TestFanout_CloseRacingEnqueueDoesNotPanic(t *testing.T) {
	notifRepo := newMemNotificationRepo()
	f, err := New(notifRepo, &testIDGen{}, &recordingPublisher{}, clog.Discard(), WithWorkers(2))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				// 关闭后入队只允许返回错误，不允许 panic
				_ = f.Enqueue(&Task{Kind: model.NotifyChannelMessage, Recipients: []int64{1}})
			}
		}()
	}

	require.NoError(t, f.Close())
	wg.Wait()
}

func TestFanout_CloseDrainsAcceptedTasks(t *testing.T) {
	notifRepo := newMemNotificationRepo()
	f, err := New(notifRepo, &testIDGen{}, &recordingPublisher{}, clog.Discard(), WithWorkers(1))
	require.NoError(t, err)

	const accepted = 50
	for i := 0; i < accepted; i++ {
		require.NoError(t, f.Enqueue(&Task{
			Kind:       model.NotifyChannelMessage,
			Recipients: []int64{42},
		}))
	}

	require.NoError(t, f.Close())

	// 已入队的任务在关闭前全部处理完
	assert.Len(t, notifRepo.savedFor(42), accepted)
}
