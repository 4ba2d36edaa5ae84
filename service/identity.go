package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/buzzlink/repo"
	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/xerrors"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// IdentityService 身份解析与开发登录
// 外部身份系统（Clerk）是账号真相来源，本服务只做外部 ID 到内部用户的
// 映射与缓存；dev 登录发放本地 HS256 JWT，仅用于没有外部身份系统的部署。
type IdentityService struct {
	userRepo      repo.UserRepo
	identityCache repo.IdentityCache
	idGen         IDGenerator
	jwtSecret     []byte
	tokenTTL      time.Duration
	logger        clog.Logger
}

// IdentityOption IdentityService 配置选项
type IdentityOption func(*IdentityService)

// WithTokenTTL 设置本地 JWT 的有效期
func WithTokenTTL(ttl time.Duration) IdentityOption {
	return func(s *IdentityService) {
		s.tokenTTL = ttl
	}
}

// NewIdentityService 创建身份服务
func NewIdentityService(
	userRepo repo.UserRepo,
	identityCache repo.IdentityCache,
	idGen IDGenerator,
	jwtSecret string,
	logger clog.Logger,
	opts ...IdentityOption,
) *IdentityService {
	s := &IdentityService{
		userRepo:      userRepo,
		identityCache: identityCache,
		idGen:         idGen,
		jwtSecret:     []byte(jwtSecret),
		tokenTTL:      24 * time.Hour,
		logger:        logger.WithNamespace("identity"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SyncUser 按外部身份 ID 同步用户：不存在则创建，存在则更新资料
// 资料变化后失效缓存，下次 Resolve 回源取最新数据
func (s *IdentityService) SyncUser(ctx context.Context, clerkID, displayName, email, avatarURL string) (*model.User, error) {
	if clerkID == "" {
		return nil, xerrors.New("clerk_id cannot be empty")
	}
	if displayName == "" {
		return nil, xerrors.New("display_name cannot be empty")
	}

	user, err := s.userRepo.GetUserByClerkID(ctx, clerkID)
	if err != nil {
		if !IsNotFound(err) {
			return nil, err
		}
		user = &model.User{
			ID:          s.idGen.Next(),
			ClerkID:     clerkID,
			DisplayName: displayName,
			Email:       email,
			AvatarURL:   avatarURL,
		}
		if err := s.userRepo.CreateUser(ctx, user); err != nil {
			return nil, err
		}
		s.logger.Info("新用户已创建",
			clog.Int64("user_id", user.ID),
			clog.String("clerk_id", clerkID))
		return user, nil
	}

	if user.DisplayName == displayName && user.Email == email && user.AvatarURL == avatarURL {
		return user, nil
	}

	user.DisplayName = displayName
	user.Email = email
	user.AvatarURL = avatarURL
	if err := s.userRepo.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	if err := s.identityCache.DeleteUser(ctx, clerkID); err != nil {
		s.logger.WarnContext(ctx, "失效身份缓存失败",
			clog.String("clerk_id", clerkID),
			clog.Error(err))
	}
	return user, nil
}

// Resolve 将外部身份 ID 解析为内部用户
// 缓存优先，未命中回源数据库并回填；封禁用户返回 ErrForbidden，
// 与"用户不存在"（ErrNotFound）区分，调用方据此决定 401 还是 403。
func (s *IdentityService) Resolve(ctx context.Context, clerkID string) (*model.User, error) {
	if clerkID == "" {
		return nil, xerrors.New("clerk_id cannot be empty")
	}

	if user, err := s.identityCache.GetUser(ctx, clerkID); err == nil {
		if user.IsBanned {
			return nil, xerrors.Wrapf(ErrForbidden, "user %d is banned", user.ID)
		}
		return user, nil
	}

	user, err := s.userRepo.GetUserByClerkID(ctx, clerkID)
	if err != nil {
		if IsNotFound(err) {
			return nil, xerrors.Wrapf(ErrNotFound, "clerk_id %s", clerkID)
		}
		return nil, err
	}
	if err := s.identityCache.SetUser(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "回填身份缓存失败",
			clog.String("clerk_id", clerkID),
			clog.Error(err))
	}
	if user.IsBanned {
		return nil, xerrors.Wrapf(ErrForbidden, "user %d is banned", user.ID)
	}
	return user, nil
}

// Login 开发登录：校验邮箱和密码，发放本地 JWT
// 无论用户不存在还是密码错误都返回同样的错误，避免账号枚举
func (s *IdentityService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	if email == "" || password == "" {
		return "", nil, xerrors.New("email and password are required")
	}

	user, err := s.userRepo.GetUserByEmail(ctx, email)
	if err != nil {
		if IsNotFound(err) {
			return "", nil, xerrors.Wrapf(ErrForbidden, "invalid credentials")
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		s.logger.Warn("登录密码校验失败", clog.String("email", email))
		return "", nil, xerrors.Wrapf(ErrForbidden, "invalid credentials")
	}
	if user.IsBanned {
		return "", nil, xerrors.Wrapf(ErrForbidden, "user %d is banned", user.ID)
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   user.ClerkID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		Issuer:    "buzzlink",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.logger.Info("用户登录成功", clog.Int64("user_id", user.ID))
	return token, user, nil
}

// ValidateToken 校验本地 JWT 并解析出用户
func (s *IdentityService) ValidateToken(ctx context.Context, tokenString string) (*model.User, error) {
	if tokenString == "" {
		return nil, xerrors.New("token cannot be empty")
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, xerrors.Wrapf(ErrForbidden, "invalid token: %v", err)
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return nil, xerrors.Wrapf(ErrForbidden, "invalid token claims")
	}

	return s.Resolve(ctx, claims.Subject)
}
