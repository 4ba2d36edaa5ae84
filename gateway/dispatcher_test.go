package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ceyewan/buzzlink/fanout"
	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/buzzlink/service"
	"github.com/ceyewan/genesis/clog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTopic(t *testing.T) {
	const userID = int64(7)

	allowed := []string{
		"channel.1",
		"channel.1.typing",
		"channel.1.presence",
		"dm.7",
		"dm.7.typing",
		"user.7.notifications",
		"user.7.notifications.count",
	}
	for _, topic := range allowed {
		assert.NoError(t, validateTopic(topic, userID), topic)
	}

	denied := []string{
		"",
		"channel",
		"channel.abc",
		"channel.1.unknown",
		"dm.8", // 他人的私信主题
		"dm.8.typing",
		"user.8.notifications", // 他人的通知主题
		"user.8.notifications.count",
		"user.7.mailbox",
		"random.topic",
	}
	for _, topic := range denied {
		assert.Error(t, validateTopic(topic, userID), topic)
	}
}

func TestDecodePacket(t *testing.T) {
	t.Run("正常帧", func(t *testing.T) {
		raw := []byte(`{"type":"chat.send","seq":"42","data":{"channelId":"100","content":"hi"}}`)
		packet, err := DecodePacket(raw)
		require.NoError(t, err)
		assert.Equal(t, PacketChatSend, packet.Type)
		assert.Equal(t, "42", packet.Seq)

		var req ChatSendRequest
		require.NoError(t, json.Unmarshal(packet.Data, &req))
		assert.Equal(t, int64(100), req.ChannelID)
		assert.Equal(t, "hi", req.Content)
		assert.Nil(t, req.ParentMessageID)
	})

	t.Run("缺少类型字段", func(t *testing.T) {
		_, err := DecodePacket([]byte(`{"seq":"1"}`))
		require.Error(t, err)
	})

	t.Run("非法 JSON", func(t *testing.T) {
		_, err := DecodePacket([]byte(`not-json`))
		require.Error(t, err)
	})
}

func TestAckPacketRoundTrip(t *testing.T) {
	data, err := EncodePacket(NewAckPacket("42", 123456789012345678, ""))
	require.NoError(t, err)

	packet, err := DecodePacket(data)
	require.NoError(t, err)
	assert.Equal(t, PacketAck, packet.Type)
	assert.Equal(t, "42", packet.Seq)

	var ack AckData
	require.NoError(t, json.Unmarshal(packet.Data, &ack))
	// int64 以字符串编码，避免 JS 侧精度丢失
	assert.Contains(t, string(packet.Data), `"123456789012345678"`)
	assert.Equal(t, int64(123456789012345678), ack.ID)
	assert.Empty(t, ack.Error)
}

// ============================================================================
// 分发器行为测试：副作用顺序为 持久化成功 -> 广播 -> 通知入队
// ============================================================================

type dtIDGen struct {
	counter int64
}

func (g *dtIDGen) Next() int64 {
	return atomic.AddInt64(&g.counter, 1)
}

type dtUserRepo struct{}

func (r *dtUserRepo) CreateUser(ctx context.Context, user *model.User) error { return nil }
func (r *dtUserRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return &model.User{ID: id, DisplayName: fmt.Sprintf("user-%d", id)}, nil
}
func (r *dtUserRepo) GetUserByClerkID(ctx context.Context, clerkID string) (*model.User, error) {
	return nil, service.ErrNotFound
}
func (r *dtUserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, service.ErrNotFound
}
func (r *dtUserRepo) GetUsersByIDs(ctx context.Context, ids []int64) ([]*model.User, error) {
	users := make([]*model.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, &model.User{ID: id, DisplayName: fmt.Sprintf("user-%d", id)})
	}
	return users, nil
}
func (r *dtUserRepo) UpdateUser(ctx context.Context, user *model.User) error { return nil }

type dtWorkspaceRepo struct {
	listMemberIDsFn func(ctx context.Context, workspaceID int64) ([]int64, error)
}

func (r *dtWorkspaceRepo) CreateWorkspace(ctx context.Context, ws *model.Workspace) error { return nil }
func (r *dtWorkspaceRepo) GetWorkspace(ctx context.Context, id int64) (*model.Workspace, error) {
	return &model.Workspace{ID: id}, nil
}
func (r *dtWorkspaceRepo) GetWorkspaceBySlug(ctx context.Context, slug string) (*model.Workspace, error) {
	return nil, service.ErrNotFound
}
func (r *dtWorkspaceRepo) AddMember(ctx context.Context, member *model.WorkspaceMember) error {
	return nil
}
func (r *dtWorkspaceRepo) IsMember(ctx context.Context, userID, workspaceID int64) (bool, error) {
	return true, nil
}
func (r *dtWorkspaceRepo) ListMemberIDs(ctx context.Context, workspaceID int64) ([]int64, error) {
	if r.listMemberIDsFn != nil {
		return r.listMemberIDsFn(ctx, workspaceID)
	}
	return nil, nil
}

type dtChannelRepo struct{}

func (r *dtChannelRepo) CreateChannel(ctx context.Context, ch *model.Channel) error { return nil }
func (r *dtChannelRepo) GetChannel(ctx context.Context, id int64) (*model.Channel, error) {
	return &model.Channel{ID: id, WorkspaceID: 1, Name: "general"}, nil
}
func (r *dtChannelRepo) ListChannels(ctx context.Context, workspaceID int64) ([]*model.Channel, error) {
	return nil, nil
}

type dtMessageRepo struct {
	saveMessageFn func(ctx context.Context, msg *model.Message) error
}

func (r *dtMessageRepo) SaveMessage(ctx context.Context, msg *model.Message) error {
	if r.saveMessageFn != nil {
		return r.saveMessageFn(ctx, msg)
	}
	return nil
}
func (r *dtMessageRepo) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	return nil, service.ErrNotFound
}
func (r *dtMessageRepo) DeleteMessage(ctx context.Context, id int64) error { return nil }
func (r *dtMessageRepo) ListChannelMessages(ctx context.Context, channelID int64, limit int) ([]*model.Message, error) {
	return nil, nil
}
func (r *dtMessageRepo) ListThreadReplies(ctx context.Context, parentID int64) ([]*model.Message, error) {
	return nil, nil
}
func (r *dtMessageRepo) AddReaction(ctx context.Context, reaction *model.Reaction) (bool, error) {
	return true, nil
}
func (r *dtMessageRepo) RemoveReaction(ctx context.Context, messageID, userID int64) (bool, error) {
	return true, nil
}
func (r *dtMessageRepo) HasReaction(ctx context.Context, messageID, userID int64) (bool, error) {
	return false, nil
}
func (r *dtMessageRepo) CountReactions(ctx context.Context, messageID int64) (int64, error) {
	return 0, nil
}
func (r *dtMessageRepo) CountReactionsBatch(ctx context.Context, messageIDs []int64) (map[int64]int64, error) {
	return map[int64]int64{}, nil
}

type dtDMRepo struct{}

func (r *dtDMRepo) SaveDirectMessage(ctx context.Context, dm *model.DirectMessage) error { return nil }
func (r *dtDMRepo) GetConversation(ctx context.Context, userA, userB int64, limit int) ([]*model.DirectMessage, error) {
	return nil, nil
}
func (r *dtDMRepo) ListPartnerIDs(ctx context.Context, userID int64) ([]int64, error) {
	return nil, nil
}

type dtNotificationRepo struct {
	mu    sync.Mutex
	saved map[int64]int
}

func (r *dtNotificationRepo) SaveNotification(ctx context.Context, n *model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved == nil {
		r.saved = make(map[int64]int)
	}
	r.saved[n.RecipientID]++
	return nil
}
func (r *dtNotificationRepo) ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]*model.Notification, error) {
	return nil, nil
}
func (r *dtNotificationRepo) ListUnread(ctx context.Context, recipientID int64, limit int) ([]*model.Notification, error) {
	return nil, nil
}
func (r *dtNotificationRepo) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(r.saved[recipientID]), nil
}
func (r *dtNotificationRepo) MarkRead(ctx context.Context, id, recipientID int64) (bool, error) {
	return false, nil
}
func (r *dtNotificationRepo) MarkAllRead(ctx context.Context, recipientID int64) (int64, error) {
	return 0, nil
}

func (r *dtNotificationRepo) savedCountFor(recipientID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved[recipientID]
}

func (r *dtNotificationRepo) totalSaved() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, n := range r.saved {
		total += n
	}
	return total
}

func newTestDispatcher(t *testing.T, msgRepo *dtMessageRepo, wsRepo *dtWorkspaceRepo, notifRepo *dtNotificationRepo) (*Dispatcher, *Router, *fanout.Fanout) {
	t.Helper()

	router := NewRouter(clog.Discard())
	chatSvc := service.NewChatService(&dtUserRepo{}, wsRepo, &dtChannelRepo{}, msgRepo, &dtIDGen{}, clog.Discard())
	dmSvc := service.NewDMService(&dtUserRepo{}, &dtDMRepo{}, &dtIDGen{}, clog.Discard())

	fan, err := fanout.New(notifRepo, &dtIDGen{}, router, clog.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { fan.Close() })

	d := NewDispatcher(router, NewPresence(clog.Discard()), chatSvc, dmSvc, fan, clog.Discard())
	return d, router, fan
}

func TestDispatcher_FailedPersistSuppressesBroadcastAndFanout(t *testing.T) {
	msgRepo := &dtMessageRepo{
		saveMessageFn: func(ctx context.Context, msg *model.Message) error {
			return fmt.Errorf("storage down")
		},
	}
	wsRepo := &dtWorkspaceRepo{
		listMemberIDsFn: func(ctx context.Context, workspaceID int64) ([]int64, error) {
			return []int64{7, 8}, nil
		},
	}
	notifRepo := &dtNotificationRepo{}
	d, router, fan := newTestDispatcher(t, msgRepo, wsRepo, notifRepo)

	sub := &fakeSubscriber{id: "watcher"}
	router.Subscribe(model.TopicChannel(100), sub)
	conn := newTestConn(t, 7, d)

	data, err := json.Marshal(&ChatSendRequest{ChannelID: 100, Content: "hello"})
	require.NoError(t, err)

	err = d.HandlePacket(context.Background(), conn, &Packet{Type: PacketChatSend, Seq: "1", Data: data})
	require.Error(t, err)

	assert.Empty(t, sub.received(), "持久化失败不允许广播")
	require.NoError(t, fan.Close())
	assert.Zero(t, notifRepo.totalSaved(), "持久化失败不允许通知扩散")
}

func TestDispatcher_PersistPrecedesBroadcast(t *testing.T) {
	var persisted atomic.Bool
	sub := &fakeSubscriber{id: "watcher"}
	msgRepo := &dtMessageRepo{
		saveMessageFn: func(ctx context.Context, msg *model.Message) error {
			if len(sub.received()) != 0 {
				return fmt.Errorf("broadcast happened before persist")
			}
			persisted.Store(true)
			return nil
		},
	}
	wsRepo := &dtWorkspaceRepo{
		listMemberIDsFn: func(ctx context.Context, workspaceID int64) ([]int64, error) {
			return []int64{7, 8}, nil
		},
	}
	notifRepo := &dtNotificationRepo{}
	d, router, _ := newTestDispatcher(t, msgRepo, wsRepo, notifRepo)

	router.Subscribe(model.TopicChannel(100), sub)
	conn := newTestConn(t, 7, d)

	data, err := json.Marshal(&ChatSendRequest{ChannelID: 100, Content: "hello"})
	require.NoError(t, err)

	require.NoError(t, d.HandlePacket(context.Background(), conn, &Packet{Type: PacketChatSend, Seq: "1", Data: data}))

	require.True(t, persisted.Load())
	require.Len(t, sub.received(), 1, "持久化成功后向频道主题广播一次")

	// 通知在广播之后由后台 worker 完成，发送者被排除
	require.Eventually(t, func() bool {
		return notifRepo.savedCountFor(8) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, notifRepo.savedCountFor(7))
}
