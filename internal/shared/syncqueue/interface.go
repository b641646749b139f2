// Package syncqueue 离线写任务队列抽象接口
//
// 聊天写入在存储不可用时落入本地队列，由同步 worker
// 按入队顺序重放。当前由 SQLite / PostgreSQL 实现。
package syncqueue

import (
	"context"
	"errors"

	"entropy-gateway/internal/shared/model"
)

// ============================================================================
// 错误定义
// ============================================================================

var (
	// ErrNotFound 任务不存在
	ErrNotFound = errors.New("sync task not found")
)

// ============================================================================
// 队列接口定义
// ============================================================================

// Queue 离线写任务队列接口
type Queue interface {
	// Enqueue 将写任务加入队列尾部
	Enqueue(ctx context.Context, task *model.WriteTask) error

	// Pending 按入队顺序返回所有待处理任务（最早的在前）
	Pending(ctx context.Context) ([]*model.WriteTask, error)

	// Delete 删除已成功重放的任务
	Delete(ctx context.Context, id string) error

	// IncrementAttempts 重放失败后递增任务的尝试次数
	IncrementAttempts(ctx context.Context, id string) error

	// Len 返回待处理任务数量
	Len(ctx context.Context) (int64, error)

	Close() error
}
