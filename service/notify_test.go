package service

import (
	"context"
	"testing"

	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/genesis/clog"
	"github.com/stretchr/testify/require"
)

func TestNotifyService_MarkRead_PushesFreshCount(t *testing.T) {
	notifRepo := &testNotificationRepo{
		markReadFn: func(ctx context.Context, id, recipientID int64) (bool, error) {
			return true, nil
		},
		countUnreadFn: func(ctx context.Context, recipientID int64) (int64, error) {
			return 4, nil
		},
	}
	pub := &recordingPublisher{}
	svc := NewNotifyService(notifRepo, pub, clog.Discard())

	err := svc.MarkRead(context.Background(), 1, 7)
	require.NoError(t, err)

	topics, events := pub.published()
	require.Len(t, topics, 1)
	require.Equal(t, model.TopicNotificationCount(7), topics[0])
	count, ok := events[0].(*model.UnreadCount)
	require.True(t, ok)
	require.Equal(t, int64(4), count.Count)
}

func TestNotifyService_MarkRead_NotFoundOnOwnershipMismatch(t *testing.T) {
	notifRepo := &testNotificationRepo{
		markReadFn: func(ctx context.Context, id, recipientID int64) (bool, error) {
			// 归属不匹配或通知不存在
			return false, nil
		},
	}
	pub := &recordingPublisher{}
	svc := NewNotifyService(notifRepo, pub, clog.Discard())

	err := svc.MarkRead(context.Background(), 1, 7)
	require.Error(t, err)
	require.True(t, IsNotFound(err))

	topics, _ := pub.published()
	require.Empty(t, topics, "失败时不推送计数")
}

func TestNotifyService_MarkAllRead(t *testing.T) {
	t.Run("有未读时推送计数", func(t *testing.T) {
		notifRepo := &testNotificationRepo{
			markAllReadFn: func(ctx context.Context, recipientID int64) (int64, error) {
				return 3, nil
			},
		}
		pub := &recordingPublisher{}
		svc := NewNotifyService(notifRepo, pub, clog.Discard())

		affected, err := svc.MarkAllRead(context.Background(), 7)
		require.NoError(t, err)
		require.Equal(t, int64(3), affected)

		topics, events := pub.published()
		require.Len(t, topics, 1)
		count := events[0].(*model.UnreadCount)
		require.Zero(t, count.Count)
	})

	t.Run("没有未读时静默", func(t *testing.T) {
		pub := &recordingPublisher{}
		svc := NewNotifyService(&testNotificationRepo{}, pub, clog.Discard())

		affected, err := svc.MarkAllRead(context.Background(), 7)
		require.NoError(t, err)
		require.Zero(t, affected)

		topics, _ := pub.published()
		require.Empty(t, topics)
	})
}
