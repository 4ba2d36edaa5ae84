package repo

import (
	"context"
	"fmt"

	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/db"
	"gorm.io/gorm"
)

// UserRepoOption 配置 UserRepo 的选项
type UserRepoOption func(*userRepoOptions)

type userRepoOptions struct {
	logger clog.Logger
}

// WithUserRepoLogger 设置日志记录器
func WithUserRepoLogger(logger clog.Logger) UserRepoOption {
	return func(o *userRepoOptions) {
		o.logger = logger
	}
}

// userRepo 实现 UserRepo 接口
type userRepo struct {
	db     db.DB
	logger clog.Logger
}

// NewUserRepo 创建 UserRepo 实例
func NewUserRepo(database db.DB, opts ...UserRepoOption) (UserRepo, error) {
	if database == nil {
		return nil, fmt.Errorf("database cannot be nil")
	}

	options := &userRepoOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// 提供默认 logger
	var logger clog.Logger
	if options.logger != nil {
		logger = options.logger.WithNamespace("user_repo")
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
		logger = logger.WithNamespace("user_repo")
	}

	return &userRepo{
		db:     database,
		logger: logger,
	}, nil
}

// CreateUser 创建新用户
func (r *userRepo) CreateUser(ctx context.Context, user *model.User) error {
	if user == nil {
		return fmt.Errorf("user cannot be nil")
	}
	if user.ID == 0 {
		return fmt.Errorf("user id cannot be zero")
	}
	if user.ClerkID == "" {
		return fmt.Errorf("clerk_id cannot be empty")
	}

	gormDB := r.db.DB(ctx)
	if err := gormDB.Create(user).Error; err != nil {
		r.logger.Error("创建用户失败",
			clog.String("clerk_id", user.ClerkID),
			clog.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Debug("创建用户成功",
		clog.Int64("user_id", user.ID),
		clog.String("clerk_id", user.ClerkID))
	return nil
}

// GetUserByID 按内部 ID 获取用户
func (r *userRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	if id == 0 {
		return nil, fmt.Errorf("user id cannot be zero")
	}

	var user model.User
	gormDB := r.db.DB(ctx)
	if err := gormDB.Where("id = ?", id).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user %d: %w", id, gorm.ErrRecordNotFound)
		}
		r.logger.Error("获取用户失败", clog.Int64("user_id", id), clog.Error(err))
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetUserByClerkID 按外部身份 ID 获取用户
func (r *userRepo) GetUserByClerkID(ctx context.Context, clerkID string) (*model.User, error) {
	if clerkID == "" {
		return nil, fmt.Errorf("clerk_id cannot be empty")
	}

	var user model.User
	gormDB := r.db.DB(ctx)
	if err := gormDB.Where("clerk_id = ?", clerkID).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user clerk_id=%s: %w", clerkID, gorm.ErrRecordNotFound)
		}
		r.logger.Error("按 clerk_id 获取用户失败", clog.String("clerk_id", clerkID), clog.Error(err))
		return nil, fmt.Errorf("failed to get user by clerk_id: %w", err)
	}
	return &user, nil
}

// GetUserByEmail 按邮箱获取用户
func (r *userRepo) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if email == "" {
		return nil, fmt.Errorf("email cannot be empty")
	}

	var user model.User
	gormDB := r.db.DB(ctx)
	if err := gormDB.Where("email = ?", email).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("user email=%s: %w", email, gorm.ErrRecordNotFound)
		}
		r.logger.Error("按邮箱获取用户失败", clog.String("email", email), clog.Error(err))
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

// GetUsersByIDs 批量获取用户
func (r *userRepo) GetUsersByIDs(ctx context.Context, ids []int64) ([]*model.User, error) {
	if len(ids) == 0 {
		return []*model.User{}, nil
	}

	var users []*model.User
	gormDB := r.db.DB(ctx)
	if err := gormDB.Where("id IN ?", ids).Find(&users).Error; err != nil {
		r.logger.Error("批量获取用户失败", clog.Int("count", len(ids)), clog.Error(err))
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	return users, nil
}

// UpdateUser 更新用户信息
func (r *userRepo) UpdateUser(ctx context.Context, user *model.User) error {
	if user == nil {
		return fmt.Errorf("user cannot be nil")
	}
	if user.ID == 0 {
		return fmt.Errorf("user id cannot be zero")
	}

	gormDB := r.db.DB(ctx)
	if err := gormDB.Save(user).Error; err != nil {
		r.logger.Error("更新用户失败", clog.Int64("user_id", user.ID), clog.Error(err))
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}
