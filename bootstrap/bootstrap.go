// Package bootstrap 提供数据库初始化能力：AutoMigrate 建表 + Seed 种子数据。
// 通过 `go run main.go -module init` 调用，幂等可重复执行。
package bootstrap

import (
	"context"
	"fmt"

	"github.com/ceyewan/buzzlink/model"
	"github.com/ceyewan/genesis/clog"
	"github.com/ceyewan/genesis/config"
	"github.com/ceyewan/genesis/connector"
	"github.com/ceyewan/genesis/db"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// 种子数据使用固定的小 ID，线上数据走 Snowflake 大 ID，不会冲突
const (
	seedWorkspaceID = 1
	seedChannelID   = 1
	seedAdminID     = 1
)

// Config 初始化所需的配置（复用 buzzlink.yaml）
type Config struct {
	Log        clog.Config                `mapstructure:"log"`
	PostgreSQL connector.PostgreSQLConfig `mapstructure:"postgres"`
	Admin      AdminConfig                `mapstructure:"admin"`
}

// AdminConfig 管理员初始化配置
type AdminConfig struct {
	Email       string `mapstructure:"email"`
	Password    string `mapstructure:"password"`
	DisplayName string `mapstructure:"display_name"`
}

// Run 执行数据库初始化：建表 + 种子数据
func Run() error {
	// 1. 加载配置（复用 buzzlink.yaml）
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. 初始化日志
	logger, _ := clog.New(&cfg.Log)

	logger.Info("starting database initialization...")

	// 3. 连接 PostgreSQL
	postgresConn, err := connector.NewPostgreSQL(&cfg.PostgreSQL, connector.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("postgresql connector: %w", err)
	}
	defer postgresConn.Close()

	dbInstance, err := db.New(&db.Config{Driver: "postgresql"}, db.WithPostgreSQLConnector(postgresConn), db.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("db init: %w", err)
	}
	defer dbInstance.Close()

	ctx := context.Background()
	gormDB := dbInstance.DB(ctx)

	// 4. AutoMigrate 建表 + 索引
	logger.Info("running AutoMigrate...")
	if err := gormDB.AutoMigrate(model.AllModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	logger.Info("AutoMigrate completed")

	// 5. Seed 种子数据
	logger.Info("seeding initial data...")
	if err := seed(gormDB, &cfg.Admin, logger); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	logger.Info("seed completed")

	logger.Info("database initialization finished successfully")
	return nil
}

// seed 插入种子数据（幂等）
func seed(gormDB *gorm.DB, adminCfg *AdminConfig, logger clog.Logger) error {
	// 1. 创建默认工作区
	workspace := &model.Workspace{
		ID:      seedWorkspaceID,
		Slug:    "buzzlink",
		Name:    "Buzzlink",
		OwnerID: seedAdminID,
	}
	result := gormDB.Where("slug = ?", workspace.Slug).FirstOrCreate(workspace)
	if result.Error != nil {
		return fmt.Errorf("seed default workspace: %w", result.Error)
	}
	logger.Info("default workspace ready", clog.String("slug", workspace.Slug))

	// 2. 创建默认频道
	channel := &model.Channel{
		ID:          seedChannelID,
		WorkspaceID: workspace.ID,
		Name:        "general",
		Description: "Default channel",
		CreatedBy:   seedAdminID,
	}
	result = gormDB.Where("workspace_id = ? AND name = ?", channel.WorkspaceID, channel.Name).FirstOrCreate(channel)
	if result.Error != nil {
		return fmt.Errorf("seed default channel: %w", result.Error)
	}
	logger.Info("default channel ready", clog.String("name", channel.Name))

	// 3. 创建管理员账号
	if adminCfg.Email == "" || adminCfg.Password == "" {
		logger.Info("admin seed skipped: missing email or password in config")
		return nil
	}
	displayName := adminCfg.DisplayName
	if displayName == "" {
		displayName = "管理员"
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(adminCfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	admin := &model.User{
		ID:          seedAdminID,
		ClerkID:     "admin",
		DisplayName: displayName,
		Email:       adminCfg.Email,
		Password:    string(hashedPassword),
		IsAdmin:     true,
	}
	result = gormDB.Where("clerk_id = ?", admin.ClerkID).FirstOrCreate(admin)
	if result.Error != nil {
		return fmt.Errorf("seed admin user: %w", result.Error)
	}
	logger.Info("admin user ready", clog.String("email", admin.Email))

	// 4. 将管理员加入默认工作区
	member := &model.WorkspaceMember{
		UserID:      admin.ID,
		WorkspaceID: workspace.ID,
		Role:        model.RoleOwner,
	}
	result = gormDB.Where("user_id = ? AND workspace_id = ?", member.UserID, member.WorkspaceID).FirstOrCreate(member)
	if result.Error != nil {
		return fmt.Errorf("seed admin workspace member: %w", result.Error)
	}
	logger.Info("admin joined default workspace", clog.String("email", adminCfg.Email))

	return nil
}

// loadConfig 加载配置（复用 buzzlink.yaml）
func loadConfig() (*Config, error) {
	loader, err := config.New(&config.Config{
		Name:      "buzzlink",
		FileType:  "yaml",
		Paths:     []string{"./configs"},
		EnvPrefix: "BUZZLINK",
	})
	if err != nil {
		return nil, err
	}

	if err := loader.Load(context.Background()); err != nil {
		return nil, err
	}

	var cfg Config
	if err := loader.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
