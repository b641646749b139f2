// Package postgres PostgreSQL 离线写任务队列实现
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"entropy-gateway/internal/shared/model"
	"entropy-gateway/internal/shared/syncqueue"
)

// Queue PostgreSQL 队列
type Queue struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sync_tasks (
    seq BIGSERIAL PRIMARY KEY,
    id VARCHAR(64) NOT NULL UNIQUE,
    endpoint TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    attempts INTEGER NOT NULL DEFAULT 0
);
`

// Open 创建 PostgreSQL 队列
func Open(databaseURL string) (*Queue, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to migrate sync_tasks: %w", err)
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
		`INSERT INTO sync_tasks (id, endpoint, payload, created_at, attempts) VALUES ($1, $2, $3, $4, $5)`,
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
	res, err := q.db.ExecContext(ctx, `DELETE FROM sync_tasks WHERE id = $1`, id)
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
	res, err := q.db.ExecContext(ctx, `UPDATE sync_tasks SET attempts = attempts + 1 WHERE id = $1`, id)
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
