// Package syncqueue 队列 mock 实现
package syncqueue

import (
	"context"
	"sync"

	"entropy-gateway/internal/shared/model"
)

// ============================================================================
// MemQueue - 内存队列实现（用于测试）
// ============================================================================

// MemQueue 内存版离线写任务队列
type MemQueue struct {
	mu    sync.Mutex
	tasks []*model.WriteTask

	// 调用计数（用于测试断言）
	EnqueueCalls int
	DeleteCalls  int
}

// NewMemQueue 创建内存队列
func NewMemQueue() *MemQueue {
	return &MemQueue{}
}

func (q *MemQueue) Enqueue(ctx context.Context, task *model.WriteTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.EnqueueCalls++

	cp := *task
	q.tasks = append(q.tasks, &cp)
	return nil
}

func (q *MemQueue) Pending(ctx context.Context) ([]*model.WriteTask, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*model.WriteTask, 0, len(q.tasks))
	for _, t := range q.tasks {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (q *MemQueue) Delete(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.DeleteCalls++

	for i, t := range q.tasks {
		if t.ID == id {
			q.tasks = append(q.tasks[:i], q.tasks[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (q *MemQueue) IncrementAttempts(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range q.tasks {
		if t.ID == id {
			t.Attempts++
			return nil
		}
	}
	return ErrNotFound
}

func (q *MemQueue) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.tasks)), nil
}

func (q *MemQueue) Close() error {
	return nil
}

var _ Queue = (*MemQueue)(nil)
