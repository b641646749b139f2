// Package chatstore 对话历史存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在子包中：mongostore/
//   - 初始化时通过依赖注入传入实现
//
// Client（resilient.go）在 Store 之上提供重试 + 结果缓存 + 写失效的
// 弹性门面，业务代码应通过 Client 访问远端存储。
package chatstore

import (
	"context"
	"errors"

	"entropy-gateway/internal/shared/model"

	"github.com/containerd/errdefs"
)

// ============================================================================
// 存储接口定义
// ============================================================================

// Store 远端文档存储接口
//
// 实现方保证 Query 按 timestamp 降序返回；BatchDelete 的 ids 数量
// 不得超过 MaxBatchSize（远端存储的单批硬上限），拆分由 Client 负责。
type Store interface {
	// Insert 写入一条记录
	Insert(ctx context.Context, rec *model.ChatRecord) error

	// Query 按过滤条件查询，timestamp 降序，限制返回条数
	Query(ctx context.Context, f QueryFilter) ([]*model.ChatRecord, error)

	// Delete 按 ID 删除单条记录
	Delete(ctx context.Context, id string) error

	// BatchDelete 批量删除，单批原子提交，len(ids) <= MaxBatchSize
	BatchDelete(ctx context.Context, ids []string) error

	// Reconnect 尝试重建与远端的连接（重试前调用）
	Reconnect(ctx context.Context) error

	Close() error
}

// ============================================================================
// 领域错误
// ============================================================================

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("chatstore: record not found")

	// ErrDuplicate 唯一键冲突（INSERT 重复 ID）
	ErrDuplicate = errors.New("chatstore: record already exists")
)

// Retriable 判断错误是否值得重试
//
// 错误分类：
//   - Transient（网络不可达、远端 unavailable/failed-precondition、超时）→ 自动重试
//   - Permanent（参数校验、权限、记录不存在）→ 立即上抛，不重试
//
// 未知错误按 Transient 处理，与远端存储"默认可重试"的语义一致。
func Retriable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDuplicate):
		return false
	case errdefs.IsInvalidArgument(err), errdefs.IsPermissionDenied(err),
		errdefs.IsUnauthorized(err), errdefs.IsNotFound(err):
		return false
	case errdefs.IsUnavailable(err), errdefs.IsDeadlineExceeded(err),
		errdefs.IsFailedPrecondition(err):
		return true
	}
	return true
}
