package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ceyewan/buzzlink/model"
)

// 测试替身：按需通过 fn 钩子注入行为，未注入的方法返回零值

type testIDGen struct {
	counter int64
}

func (g *testIDGen) Next() int64 {
	return atomic.AddInt64(&g.counter, 1)
}

type testUserRepo struct {
	getUserByIDFn      func(ctx context.Context, id int64) (*model.User, error)
	getUserByClerkIDFn func(ctx context.Context, clerkID string) (*model.User, error)
	getUserByEmailFn   func(ctx context.Context, email string) (*model.User, error)
	getUsersByIDsFn    func(ctx context.Context, ids []int64) ([]*model.User, error)
	createUserFn       func(ctx context.Context, user *model.User) error
	updateUserFn       func(ctx context.Context, user *model.User) error
}

func (r *testUserRepo) CreateUser(ctx context.Context, user *model.User) error {
	if r.createUserFn != nil {
		return r.createUserFn(ctx, user)
	}
	return nil
}
func (r *testUserRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	if r.getUserByIDFn != nil {
		return r.getUserByIDFn(ctx, id)
	}
	return &model.User{ID: id, DisplayName: fmt.Sprintf("user-%d", id)}, nil
}
func (r *testUserRepo) GetUserByClerkID(ctx context.Context, clerkID string) (*model.User, error) {
	if r.getUserByClerkIDFn != nil {
		return r.getUserByClerkIDFn(ctx, clerkID)
	}
	return nil, ErrNotFound
}
func (r *testUserRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if r.getUserByEmailFn != nil {
		return r.getUserByEmailFn(ctx, email)
	}
	return nil, ErrNotFound
}
func (r *testUserRepo) GetUsersByIDs(ctx context.Context, ids []int64) ([]*model.User, error) {
	if r.getUsersByIDsFn != nil {
		return r.getUsersByIDsFn(ctx, ids)
	}
	users := make([]*model.User, 0, len(ids))
	for _, id := range ids {
		users = append(users, &model.User{ID: id, DisplayName: fmt.Sprintf("user-%d", id)})
	}
	return users, nil
}
func (r *testUserRepo) UpdateUser(ctx context.Context, user *model.User) error {
	if r.updateUserFn != nil {
		return r.updateUserFn(ctx, user)
	}
	return nil
}

type testWorkspaceRepo struct {
	isMemberFn           func(ctx context.Context, userID, workspaceID int64) (bool, error)
	listMemberIDsFn      func(ctx context.Context, workspaceID int64) ([]int64, error)
	getWorkspaceFn       func(ctx context.Context, id int64) (*model.Workspace, error)
	getWorkspaceBySlugFn func(ctx context.Context, slug string) (*model.Workspace, error)
}

func (r *testWorkspaceRepo) CreateWorkspace(ctx context.Context, ws *model.Workspace) error {
	return nil
}
func (r *testWorkspaceRepo) GetWorkspace(ctx context.Context, id int64) (*model.Workspace, error) {
	if r.getWorkspaceFn != nil {
		return r.getWorkspaceFn(ctx, id)
	}
	return &model.Workspace{ID: id}, nil
}
func (r *testWorkspaceRepo) GetWorkspaceBySlug(ctx context.Context, slug string) (*model.Workspace, error) {
	if r.getWorkspaceBySlugFn != nil {
		return r.getWorkspaceBySlugFn(ctx, slug)
	}
	return nil, ErrNotFound
}
func (r *testWorkspaceRepo) AddMember(ctx context.Context, member *model.WorkspaceMember) error {
	return nil
}
func (r *testWorkspaceRepo) IsMember(ctx context.Context, userID, workspaceID int64) (bool, error) {
	if r.isMemberFn != nil {
		return r.isMemberFn(ctx, userID, workspaceID)
	}
	return true, nil
}
func (r *testWorkspaceRepo) ListMemberIDs(ctx context.Context, workspaceID int64) ([]int64, error) {
	if r.listMemberIDsFn != nil {
		return r.listMemberIDsFn(ctx, workspaceID)
	}
	return nil, nil
}

type testChannelRepo struct {
	getChannelFn   func(ctx context.Context, id int64) (*model.Channel, error)
	listChannelsFn func(ctx context.Context, workspaceID int64) ([]*model.Channel, error)
}

func (r *testChannelRepo) CreateChannel(ctx context.Context, ch *model.Channel) error { return nil }
func (r *testChannelRepo) GetChannel(ctx context.Context, id int64) (*model.Channel, error) {
	if r.getChannelFn != nil {
		return r.getChannelFn(ctx, id)
	}
	return &model.Channel{ID: id, WorkspaceID: 1, Name: "general"}, nil
}
func (r *testChannelRepo) ListChannels(ctx context.Context, workspaceID int64) ([]*model.Channel, error) {
	if r.listChannelsFn != nil {
		return r.listChannelsFn(ctx, workspaceID)
	}
	return nil, nil
}

type testMessageRepo struct {
	mu sync.Mutex

	saveCalled   bool
	deleteCalled bool

	getMessageFn          func(ctx context.Context, id int64) (*model.Message, error)
	saveMessageFn         func(ctx context.Context, msg *model.Message) error
	addReactionFn         func(ctx context.Context, reaction *model.Reaction) (bool, error)
	removeReactionFn      func(ctx context.Context, messageID, userID int64) (bool, error)
	hasReactionFn         func(ctx context.Context, messageID, userID int64) (bool, error)
	countReactionsFn      func(ctx context.Context, messageID int64) (int64, error)
	listChannelMessagesFn func(ctx context.Context, channelID int64, limit int) ([]*model.Message, error)
	listThreadRepliesFn   func(ctx context.Context, parentID int64) ([]*model.Message, error)
}

func (r *testMessageRepo) SaveMessage(ctx context.Context, msg *model.Message) error {
	r.mu.Lock()
	r.saveCalled = true
	r.mu.Unlock()
	if r.saveMessageFn != nil {
		return r.saveMessageFn(ctx, msg)
	}
	return nil
}
func (r *testMessageRepo) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	if r.getMessageFn != nil {
		return r.getMessageFn(ctx, id)
	}
	return nil, ErrNotFound
}
func (r *testMessageRepo) DeleteMessage(ctx context.Context, id int64) error {
	r.mu.Lock()
	r.deleteCalled = true
	r.mu.Unlock()
	return nil
}
func (r *testMessageRepo) ListChannelMessages(ctx context.Context, channelID int64, limit int) ([]*model.Message, error) {
	if r.listChannelMessagesFn != nil {
		return r.listChannelMessagesFn(ctx, channelID, limit)
	}
	return nil, nil
}
func (r *testMessageRepo) ListThreadReplies(ctx context.Context, parentID int64) ([]*model.Message, error) {
	if r.listThreadRepliesFn != nil {
		return r.listThreadRepliesFn(ctx, parentID)
	}
	return nil, nil
}
func (r *testMessageRepo) AddReaction(ctx context.Context, reaction *model.Reaction) (bool, error) {
	if r.addReactionFn != nil {
		return r.addReactionFn(ctx, reaction)
	}
	return true, nil
}
func (r *testMessageRepo) RemoveReaction(ctx context.Context, messageID, userID int64) (bool, error) {
	if r.removeReactionFn != nil {
		return r.removeReactionFn(ctx, messageID, userID)
	}
	return true, nil
}
func (r *testMessageRepo) HasReaction(ctx context.Context, messageID, userID int64) (bool, error) {
	if r.hasReactionFn != nil {
		return r.hasReactionFn(ctx, messageID, userID)
	}
	return false, nil
}
func (r *testMessageRepo) CountReactions(ctx context.Context, messageID int64) (int64, error) {
	if r.countReactionsFn != nil {
		return r.countReactionsFn(ctx, messageID)
	}
	return 0, nil
}
func (r *testMessageRepo) CountReactionsBatch(ctx context.Context, messageIDs []int64) (map[int64]int64, error) {
	return map[int64]int64{}, nil
}

type testDMRepo struct {
	saveDirectMessageFn func(ctx context.Context, dm *model.DirectMessage) error
	getConversationFn   func(ctx context.Context, userA, userB int64, limit int) ([]*model.DirectMessage, error)
	listPartnerIDsFn    func(ctx context.Context, userID int64) ([]int64, error)
}

func (r *testDMRepo) SaveDirectMessage(ctx context.Context, dm *model.DirectMessage) error {
	if r.saveDirectMessageFn != nil {
		return r.saveDirectMessageFn(ctx, dm)
	}
	return nil
}
func (r *testDMRepo) GetConversation(ctx context.Context, userA, userB int64, limit int) ([]*model.DirectMessage, error) {
	if r.getConversationFn != nil {
		return r.getConversationFn(ctx, userA, userB, limit)
	}
	return nil, nil
}
func (r *testDMRepo) ListPartnerIDs(ctx context.Context, userID int64) ([]int64, error) {
	if r.listPartnerIDsFn != nil {
		return r.listPartnerIDsFn(ctx, userID)
	}
	return nil, nil
}

type testNotificationRepo struct {
	countUnreadFn func(ctx context.Context, recipientID int64) (int64, error)
	markReadFn    func(ctx context.Context, id, recipientID int64) (bool, error)
	markAllReadFn func(ctx context.Context, recipientID int64) (int64, error)
}

func (r *testNotificationRepo) SaveNotification(ctx context.Context, n *model.Notification) error {
	return nil
}
func (r *testNotificationRepo) ListByRecipient(ctx context.Context, recipientID int64, limit int) ([]*model.Notification, error) {
	return nil, nil
}
func (r *testNotificationRepo) ListUnread(ctx context.Context, recipientID int64, limit int) ([]*model.Notification, error) {
	return nil, nil
}
func (r *testNotificationRepo) CountUnread(ctx context.Context, recipientID int64) (int64, error) {
	if r.countUnreadFn != nil {
		return r.countUnreadFn(ctx, recipientID)
	}
	return 0, nil
}
func (r *testNotificationRepo) MarkRead(ctx context.Context, id, recipientID int64) (bool, error) {
	if r.markReadFn != nil {
		return r.markReadFn(ctx, id, recipientID)
	}
	return false, nil
}
func (r *testNotificationRepo) MarkAllRead(ctx context.Context, recipientID int64) (int64, error) {
	if r.markAllReadFn != nil {
		return r.markAllReadFn(ctx, recipientID)
	}
	return 0, nil
}

// testIdentityCache 进程内 map 实现，替代 Redis
type testIdentityCache struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newTestIdentityCache() *testIdentityCache {
	return &testIdentityCache{users: make(map[string]*model.User)}
}

func (c *testIdentityCache) SetUser(ctx context.Context, user *model.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *user
	c.users[user.ClerkID] = &copied
	return nil
}
func (c *testIdentityCache) GetUser(ctx context.Context, clerkID string) (*model.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	user, ok := c.users[clerkID]
	if !ok {
		return nil, fmt.Errorf("cache miss: %s", clerkID)
	}
	copied := *user
	return &copied, nil
}
func (c *testIdentityCache) DeleteUser(ctx context.Context, clerkID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, clerkID)
	return nil
}
func (c *testIdentityCache) Close() error { return nil }

// recordingPublisher 记录发布的 (topic, event)，供断言
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

func (p *recordingPublisher) published() ([]string, []any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.topics...), append([]any(nil), p.events...)
}
