package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ceyewan/buzzlink/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDM(senderID, recipientID int64, content string) *model.DirectMessage {
	return &model.DirectMessage{
		ID:          time.Now().UnixNano(),
		SenderID:    senderID,
		RecipientID: recipientID,
		Content:     content,
		Type:        model.MessageTypeText,
		CreatedAt:   time.Now(),
	}
}

func TestDirectMessageRepo_Conversation(t *testing.T) {
	database, cleanup := setupTestContext(t)
	defer cleanup()

	repo, err := NewDirectMessageRepo(database, WithDirectMessageRepoLogger(getTestLogger(t)))
	require.NoError(t, err)

	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	// 1 <-> 2 双向消息，以及 1 -> 3 的无关消息
	for i := 1; i <= 4; i++ {
		var dm *model.DirectMessage
		if i%2 == 0 {
			dm = newTestDM(2, 1, fmt.Sprintf("from 2: %d", i))
		} else {
			dm = newTestDM(1, 2, fmt.Sprintf("from 1: %d", i))
		}
		dm.ID = time.Now().UnixNano() + int64(i)
		dm.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.SaveDirectMessage(ctx, dm))
	}
	other := newTestDM(1, 3, "unrelated")
	require.NoError(t, repo.SaveDirectMessage(ctx, other))

	t.Run("双向消息按时间升序返回", func(t *testing.T) {
		messages, err := repo.GetConversation(ctx, 1, 2, 10)
		require.NoError(t, err)
		assert.Len(t, messages, 4)
		for i := 1; i < len(messages); i++ {
			assert.True(t, !messages[i].CreatedAt.Before(messages[i-1].CreatedAt))
		}
	})

	t.Run("参数顺序不影响结果", func(t *testing.T) {
		a, err := repo.GetConversation(ctx, 1, 2, 10)
		require.NoError(t, err)
		b, err := repo.GetConversation(ctx, 2, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, len(a), len(b))
	})

	t.Run("列出私信对象", func(t *testing.T) {
		partners, err := repo.ListPartnerIDs(ctx, 1)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{2, 3}, partners)

		partners, err = repo.ListPartnerIDs(ctx, 3)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{1}, partners)
	})

	t.Run("保存零值接收方应失败", func(t *testing.T) {
		dm := newTestDM(1, 0, "test")
		err := repo.SaveDirectMessage(ctx, dm)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "recipient_id cannot be zero")
	})
}
