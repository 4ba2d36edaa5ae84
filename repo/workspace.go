package repo

import (
	"context"
	"fmt"

	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkspaceRepoOption 配置 WorkspaceRepo 的选项
type WorkspaceRepoOption func(*workspaceRepoOptions)

type workspaceRepoOptions struct {
	logger clog.Logger
}

// WithWorkspaceRepoLogger 设置日志记录器
func WithWorkspaceRepoLogger(logger clog.Logger) WorkspaceRepoOption {
	return func(o *workspaceRepoOptions) {
		o.logger = logger
	}
}

// workspaceRepo 实现 WorkspaceRepo 接口
type workspaceRepo struct {
	db     db.DB
	logger clog.Logger
}

// NewWorkspaceRepo 创建 WorkspaceRepo 实例
func NewWorkspaceRepo(database db.DB, opts ...WorkspaceRepoOption) (WorkspaceRepo, error) {
	if database == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}

	options := &workspaceRepoOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// 提供默认 logger
	var logger clog.Logger
	if options.logger != nil {
		logger = options.logger.WithNamespace("workspace_repo")
	} else {
		var err error
		logger, err = clog.New(&clog.Config{
			Level:  "info",
			Format: "json",
			Output: "/dev/null",
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create default logger: %w", err)
		}
		logger = logger.WithNamespace("workspace_repo")
	}

	return &workspaceRepo{
		db:     database,
		logger: logger,
	}, nil
}

// CreateWorkspace 创建工作区
func (r *workspaceRepo) CreateWorkspace(ctx context.Context, ws *model.Workspace) error {
	if ws == nil {
		return fmt.Errorf("workspace cannot be nil")
	}
	if ws.ID == 0 {
		return fmt.Errorf("workspace id cannot be zero")
	}
	if ws.Slug == "" {
		return fmt.Errorf("workspace slug cannot be empty")
	}

	gormDB := r.db.DB(ctx)
	if err := gormDB.Create(ws).Error; err != nil {
		r.logger.Error("创建工作区失败",
			clog.String("slug", ws.Slug),
			clog.Error(err))
		return fmt.Errorf("failed to create workspace: %w", err)
	}
	return nil
}

// GetWorkspace 按 ID 获取工作区
func (r *workspaceRepo) GetWorkspace(ctx context.Context, id int64) (*model.Workspace, error) {
	if id == 0 {
		return nil, fmt.Errorf("workspace id cannot be zero")
	}

	var ws model.Workspace
	gormDB := r.db.DB(ctx)
	if err := gormDB.Where("id = ?", id).First(&ws).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("workspace %d: %w", id, gorm.ErrRecordNotFound)
		}
		r.logger.Error("获取工作区失败", clog.Int64("workspace_id", id), clog.Error(err))
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return &ws, nil
}

// GetWorkspaceBySlug 按 slug 获取工作区
func (r *workspaceRepo) GetWorkspaceBySlug(ctx context.Context, slug string) (*model.Workspace, error) {
	if slug == "" {
		return nil, fmt.Errorf("workspace slug cannot be empty")
	}

	var ws model.Workspace
	gormDB := r.db.DB(ctx)
	if err := gormDB.Where("slug = ?", slug).First(&ws).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("workspace slug=%s: %w", slug, gorm.ErrRecordNotFound)
		}
		r.logger.Error("按 slug 获取工作区失败", clog.String("slug", slug), clog.Error(err))
		return nil, fmt.Errorf("failed to get workspace by slug: %w", err)
	}
	return &ws, nil
}

// AddMember 添加工作区成员
// 幂等写入：唯一键冲突（user_id, workspace_id）时忽略
func (r *workspaceRepo) AddMember(ctx context.Context, member *model.WorkspaceMember) error {
	if member == nil {
		return fmt.Errorf("member cannot be nil")
	}
	if member.UserID == 0 || member.WorkspaceID == 0 {
		return fmt.Errorf("user_id and workspace_id cannot be zero")
	}

	gormDB := r.db.DB(ctx)
	if err := gormDB.Clauses(clause.OnConflict{DoNothing: true}).Create(member).Error; err != nil {
		r.logger.Error("添加工作区成员失败",
			clog.Int64("user_id", member.UserID),
			clog.Int64("workspace_id", member.WorkspaceID),
			clog.Error(err))
		return fmt.Errorf("failed to add workspace member: %w", err)
	}
	return nil
}

// IsMember 判断用户是否为工作区成员
func (r *workspaceRepo) IsMember(ctx context.Context, userID, workspaceID int64) (bool, error) {
	if userID == 0 || workspaceID == 0 {
		return false, fmt.Errorf("user_id and workspace_id cannot be zero")
	}

	var count int64
	gormDB := r.db.DB(ctx)
	if err := gormDB.Model(&model.WorkspaceMember{}).
		Where("user_id = ? AND workspace_id = ?", userID, workspaceID).
		Count(&count).Error; err != nil {
		r.logger.Error("查询成员资格失败",
			clog.Int64("user_id", userID),
			clog.Int64("workspace_id", workspaceID),
			clog.Error(err))
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return count > 0, nil
}

// ListMemberIDs 枚举工作区全部成员的用户 ID
func (r *workspaceRepo) ListMemberIDs(ctx context.Context, workspaceID int64) ([]int64, error) {
	if workspaceID == 0 {
		return nil, fmt.Errorf("workspace_id cannot be zero")
	}

	var ids []int64
	gormDB := r.db.DB(ctx)
	if err := gormDB.Model(&model.WorkspaceMember{}).
		Where("workspace_id = ?", workspaceID).
		Pluck("user_id", &ids).Error; err != nil {
		r.logger.Error("枚举工作区成员失败",
			clog.Int64("workspace_id", workspaceID),
			clog.Error(err))
		return nil, fmt.Errorf("failed to list member ids: %w", err)
	}
	return ids, nil
}
