// Package sqlite SQLite 离线写任务队列实现
//
// 适用于开发、测试和单机部署场景。
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"entropy-gateway/internal/shared/model"
	"entropy-gateway/internal/shared/syncqueue"
)

// Queue SQLite 队列
type Queue struct {
	db *sql.DB
}

// schema 建表语句。seq 单调递增保证重放顺序与入队顺序一致
const schema = `
CREATE TABLE IF NOT EXISTS sync_tasks (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id VARCHAR(64) NOT NULL UNIQUE,
    endpoint TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0
);
`

// Open 创建 SQLite 队列
// dsn 示例: "file:sync.db?cache=shared&mode=rwc" 或 ":memory:"
func Open(dsn string) (*Queue, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	// SQLite 优化设置
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to migrate sync_tasks: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	return &Queue{db: db}, nil
}

// Enqueue 入队写任务
func (q *Queue) Enqueue(ctx context.Context, task *model.WriteTask) error {
	createdAt := task.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := q.db.ExecContext(ctx,
		`INSERT INTO sync_tasks (id, endpoint, payload, created_at, attempts) VALUES (?, ?, ?, ?, ?)`,
		task.ID, task.Endpoint, string(task.Payload), createdAt, task.Attempts)
	if err != nil {
		return fmt.Errorf("failed to enqueue sync task: %w", err)
	}
	return nil
}

// Pending 按入队顺序返回所有待处理任务
func (q *Queue) Pending(ctx context.Context) ([]*model.WriteTask, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, endpoint, payload, created_at, attempts FROM sync_tasks ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.WriteTask
	for rows.Next() {
		var t model.WriteTask
		var payload string
		if err := rows.Scan(&t.ID, &t.Endpoint, &payload, &t.CreatedAt, &t.Attempts); err != nil {
			return nil, fmt.Errorf("failed to scan sync task: %w", err)
		}
		t.Payload = []byte(payload)
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// Delete 删除任务
func (q *Queue) Delete(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM sync_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete sync task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return syncqueue.ErrNotFound
	}
	return nil
}

// IncrementAttempts 递增任务的尝试次数
func (q *Queue) IncrementAttempts(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `UPDATE sync_tasks SET attempts = attempts + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to update sync task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return syncqueue.ErrNotFound
	}
	return nil
}

// Len 返回待处理任务数量
func (q *Queue) Len(ctx context.Context) (int64, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_tasks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sync tasks: %w", err)
	}
	return n, nil
}

// Close 关闭数据库连接
func (q *Queue) Close() error {
	return q.db.Close()
}

var _ syncqueue.Queue = (*Queue)(nil)
