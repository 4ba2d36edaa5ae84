package service

import (
	"errors"

	"github.com/ceyewan/genesis/xerrors"
	"gorm.io/gorm"
)

// 业务错误分类
// 调用方（HTTP 层 / WebSocket 分发器）据此映射响应：
// NotFound -> 404，Forbidden -> 403，其余为 500
var (
	// ErrNotFound 引用的实体不存在
	ErrNotFound = xerrors.New("not found")
	// ErrForbidden 调用方身份没有执行该操作的权限
	ErrForbidden = xerrors.New("forbidden")
	// ErrConflict 并发写入冲突（调用方通常按空操作处理）
	ErrConflict = xerrors.New("conflict")
)

// IsNotFound 判断错误是否属于"实体不存在"
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}

// IsForbidden 判断错误是否属于"无权限"
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
