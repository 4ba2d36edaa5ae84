package fanout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/buzzlink/observability"
	"github.com/ceyewan/buzzlink/repo"
	"github.com/ceyewan/genesis/clog"
)

// Task 一次通知扩散任务
// Recipients 已经是最终受众：排除动作发起者的规则由入队方执行
type Task struct {
	Kind            string
	Text            string
	ActorID         int64
	ActorName       string
	Recipients      []int64
	ChannelID       *int64
	MessageID       *int64
	DirectMessageID *int64
	WorkspaceID     *int64
}

// Publisher 事件发布方，由进程内主题路由器实现
type Publisher interface {
	Publish(topic string, event any) error
}

// IDGenerator 发号器，为通知记录分配全局唯一的 int64 ID
type IDGenerator interface {
	Next() int64
}

// Fanout 通知扩散工作器
// 有界队列 + 固定数量的 worker：消息主流程只做一次非阻塞入队，
// 通知落库与推送全部在 worker 协程里完成，尽力而为，失败只记日志。
type Fanout struct {
	queue            chan *Task
	notificationRepo repo.NotificationRepo
	idGen            IDGenerator
	publisher        Publisher
	logger           clog.Logger
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup

	// mu 保护 closed 与队列关闭的互斥：入队持读锁，Close 持写锁，
	// 保证关闭后不会再有协程向已关闭的队列发送
	mu     sync.RWMutex
	closed bool
}

// Option 配置选项
type Option func(*options)

type options struct {
	queueSize int
	workers   int
}

// WithQueueSize 设置队列容量
func WithQueueSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.queueSize = size
		}
	}
}

// WithWorkers 设置 worker 数量
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// New 创建通知扩散工作器并启动 worker
func New(
	notificationRepo repo.NotificationRepo,
	idGen IDGenerator,
	publisher Publisher,
	logger clog.Logger,
	opts ...Option,
) (*Fanout, error) {
	if notificationRepo == nil {
		return nil, fmt.Errorf("notification repo cannot be nil")
	}
	if idGen == nil {
		return nil, fmt.Errorf("id generator cannot be nil")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher cannot be nil")
	}

	options := &options{
		queueSize: 1024,
		workers:   4,
	}
	for _, opt := range opts {
		opt(options)
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &Fanout{
		queue:            make(chan *Task, options.queueSize),
		notificationRepo: notificationRepo,
		idGen:            idGen,
		publisher:        publisher,
		logger:           logger.WithNamespace("fanout"),
		ctx:              ctx,
		cancel:           cancel,
	}

	for i := 0; i < options.workers; i++ {
		f.wg.Add(1)
		go f.workerLoop()
	}

	return f, nil
}

// Enqueue 将扩散任务加入队列（非阻塞）
// 队列满时返回错误，调用方记日志后继续：通知是尽力而为的旁路，
// 不允许反压到消息主流程。
func (f *Fanout) Enqueue(task *Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if len(task.Recipients) == 0 {
		return nil
	}

	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return fmt.Errorf("fanout closed")
	}

	select {
	case f.queue <- task:
		observability.SetFanoutQueueDepth(context.Background(), len(f.queue))
		return nil
	default:
		return fmt.Errorf("fanout queue full")
	}
}

// workerLoop 持续从队列取任务并处理
// 关闭时把队列里已接收的任务全部处理完再退出
func (f *Fanout) workerLoop() {
	defer f.wg.Done()

	for task := range f.queue {
		f.process(task)
	}
}

// process 处理单个扩散任务
// 每个接收方独立处理：落库、推送通知、推送最新未读数。
// 任何一步失败都只影响该接收方本次投递，不中断其他接收方。
func (f *Fanout) process(task *Task) {
	ctx, cancel := context.WithTimeout(f.ctx, 5*time.Second)
	defer cancel()

	for _, recipientID := range task.Recipients {
		n := &model.Notification{
			ID:              f.idGen.Next(),
			RecipientID:     recipientID,
			Kind:            task.Kind,
			Text:            task.Text,
			ActorID:         task.ActorID,
			ChannelID:       task.ChannelID,
			MessageID:       task.MessageID,
			DirectMessageID: task.DirectMessageID,
			WorkspaceID:     task.WorkspaceID,
			CreatedAt:       time.Now(),
		}

		if err := f.notificationRepo.SaveNotification(ctx, n); err != nil {
			f.logger.Error("保存通知失败",
				clog.Int64("recipient_id", recipientID),
				clog.String("kind", task.Kind),
				clog.Error(err))
			observability.RecordFanoutFailed(ctx)
			continue
		}
		observability.RecordFanoutNotification(ctx)

		payload := &model.NotificationPayload{
			ID:              n.ID,
			Kind:            n.Kind,
			Text:            n.Text,
			ActorID:         n.ActorID,
			ActorName:       task.ActorName,
			ChannelID:       n.ChannelID,
			MessageID:       n.MessageID,
			DirectMessageID: n.DirectMessageID,
			WorkspaceID:     n.WorkspaceID,
			CreatedAt:       n.CreatedAt,
		}
		if err := f.publisher.Publish(model.TopicNotifications(recipientID), payload); err != nil {
			f.logger.Warn("推送通知失败",
				clog.Int64("recipient_id", recipientID),
				clog.Error(err))
		}

		count, err := f.notificationRepo.CountUnread(ctx, recipientID)
		if err != nil {
			f.logger.Warn("统计未读数失败",
				clog.Int64("recipient_id", recipientID),
				clog.Error(err))
			continue
		}
		if err := f.publisher.Publish(model.TopicNotificationCount(recipientID), &model.UnreadCount{Count: count}); err != nil {
			f.logger.Warn("推送未读数失败",
				clog.Int64("recipient_id", recipientID),
				clog.Error(err))
		}
	}
}

// QueueSize 返回当前队列长度
func (f *Fanout) QueueSize() int {
	return len(f.queue)
}

// Close 停止接收新任务，等待 worker 处理完队列中剩余任务后退出，幂等
func (f *Fanout) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.queue)
	f.mu.Unlock()

	f.wg.Wait()
	f.cancel()
	return nil
}
