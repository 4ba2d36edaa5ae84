package repo

import (
	"context"
	"testing"
	"time"

	"github.com/ceyewan/buzzlink/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityCache(t *testing.T) {
	redisConn := getTestRedis(t)
	defer cleanupRedisData(t, redisConn)

	cache, err := NewIdentityCache(redisConn,
		WithIdentityCacheLogger(getTestLogger(t)),
		WithIdentityCacheTTL(time.Minute))
	require.NoError(t, err)

	ctx := context.Background()

	user := &model.User{
		ID:          time.Now().UnixNano(),
		ClerkID:     "clerk_test_001",
		DisplayName: "Alice",
		Email:       "alice@example.com",
	}

	t.Run("写入后可读取", func(t *testing.T) {
		require.NoError(t, cache.SetUser(ctx, user))

		got, err := cache.GetUser(ctx, "clerk_test_001")
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, "Alice", got.DisplayName)
	})

	t.Run("删除后读取失败", func(t *testing.T) {
		require.NoError(t, cache.DeleteUser(ctx, "clerk_test_001"))

		_, err := cache.GetUser(ctx, "clerk_test_001")
		assert.Error(t, err)
	})

	t.Run("不存在的key读取失败", func(t *testing.T) {
		_, err := cache.GetUser(ctx, "clerk_never_seen")
		assert.Error(t, err)
	})

	t.Run("空clerk_id应失败", func(t *testing.T) {
		err := cache.SetUser(ctx, &model.User{ID: 1})
		assert.Error(t, err)

		_, err = cache.GetUser(ctx, "")
		assert.Error(t, err)
	})
}
