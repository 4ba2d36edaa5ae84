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

func newTestNotification(recipientID, actorID int64, kind string) *model.Notification {
	return &model.Notification{
		ID:          time.Now().UnixNano(),
		RecipientID: recipientID,
		Kind:        kind,
		Text:        "someone posted in a channel",
		ActorID:     actorID,
		CreatedAt:   time.Now(),
	}
}

func TestNotificationRepo_SaveAndList(t *testing.T) {
	database, cleanup := setupTestContext(t)
	defer cleanup()

	repo, err := NewNotificationRepo(database, WithNotificationRepoLogger(getTestLogger(t)))
	require.NoError(t, err)

	ctx := context.Background()

	t.Run("保存并按时间降序拉取", func(t *testing.T) {
		base := time.Now().Add(-time.Hour)
		for i := 1; i <= 3; i++ {
			n := newTestNotification(100, 200, model.NotifyChannelMessage)
			n.ID = time.Now().UnixNano() + int64(i)
			n.Text = fmt.Sprintf("notification %d", i)
			n.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			require.NoError(t, repo.SaveNotification(ctx, n))
		}

		list, err := repo.ListByRecipient(ctx, 100, 10)
		require.NoError(t, err)
		assert.Len(t, list, 3)
		assert.Equal(t, "notification 3", list[0].Text)
	})

	t.Run("保存空kind应失败", func(t *testing.T) {
		n := newTestNotification(100, 200, "")
		err := repo.SaveNotification(ctx, n)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "kind cannot be empty")
	})

	t.Run("保存nil通知应失败", func(t *testing.T) {
		err := repo.SaveNotification(ctx, nil)
		assert.Error(t, err)
	})
}

func TestNotificationRepo_ReadState(t *testing.T) {
	database, cleanup := setupTestContext(t)
	defer cleanup()

	repo, err := NewNotificationRepo(database, WithNotificationRepoLogger(getTestLogger(t)))
	require.NoError(t, err)

	ctx := context.Background()
	recipientID := int64(300)

	ids := make([]int64, 0, 4)
	for i := 1; i <= 4; i++ {
		n := newTestNotification(recipientID, 400, model.NotifyThreadReply)
		n.ID = time.Now().UnixNano() + int64(i)
		require.NoError(t, repo.SaveNotification(ctx, n))
		ids = append(ids, n.ID)
	}

	t.Run("未读数与未读列表一致", func(t *testing.T) {
		count, err := repo.CountUnread(ctx, recipientID)
		require.NoError(t, err)
		assert.Equal(t, int64(4), count)

		unread, err := repo.ListUnread(ctx, recipientID, 10)
		require.NoError(t, err)
		assert.Len(t, unread, 4)
	})

	t.Run("标记单条已读", func(t *testing.T) {
		ok, err := repo.MarkRead(ctx, ids[0], recipientID)
		require.NoError(t, err)
		assert.True(t, ok)

		count, err := repo.CountUnread(ctx, recipientID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		// 重复标记无效果
		ok, err = repo.MarkRead(ctx, ids[0], recipientID)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("归属不匹配的标记不生效", func(t *testing.T) {
		ok, err := repo.MarkRead(ctx, ids[1], 999)
		require.NoError(t, err)
		assert.False(t, ok)

		count, err := repo.CountUnread(ctx, recipientID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})

	t.Run("标记全部已读", func(t *testing.T) {
		affected, err := repo.MarkAllRead(ctx, recipientID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), affected)

		count, err := repo.CountUnread(ctx, recipientID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), count)
	})
}
