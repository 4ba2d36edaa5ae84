package repo

import (
	"context"
	"testing"
	"time"

	"github.com/ceyewan/buzzlink/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkspaceRepo_Members(t *testing.T) {
	database, cleanup := setupTestContext(t)
	defer cleanup()

	repo, err := NewWorkspaceRepo(database, WithWorkspaceRepoLogger(getTestLogger(t)))
	require.NoError(t, err)

	ctx := context.Background()

	ws := &model.Workspace{
		ID:      time.Now().UnixNano(),
		Slug:    "acme",
		Name:    "Acme Inc",
		OwnerID: 1,
	}
	require.NoError(t, repo.CreateWorkspace(ctx, ws))

	t.Run("按slug查询工作区", func(t *testing.T) {
		found, err := repo.GetWorkspaceBySlug(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, ws.ID, found.ID)

		_, err = repo.GetWorkspaceBySlug(ctx, "missing")
		assert.Error(t, err)
	})

	t.Run("添加成员并枚举", func(t *testing.T) {
		for _, userID := range []int64{1, 2, 3} {
			require.NoError(t, repo.AddMember(ctx, &model.WorkspaceMember{
				UserID:      userID,
				WorkspaceID: ws.ID,
				Role:        model.RoleMember,
			}))
		}

		ids, err := repo.ListMemberIDs(ctx, ws.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []int64{1, 2, 3}, ids)
	})

	t.Run("重复加入幂等", func(t *testing.T) {
		require.NoError(t, repo.AddMember(ctx, &model.WorkspaceMember{
			UserID:      2,
			WorkspaceID: ws.ID,
			Role:        model.RoleMember,
		}))

		ids, err := repo.ListMemberIDs(ctx, ws.ID)
		require.NoError(t, err)
		assert.Len(t, ids, 3)
	})

	t.Run("成员资格判断", func(t *testing.T) {
		ok, err := repo.IsMember(ctx, 2, ws.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.IsMember(ctx, 999, ws.ID)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
