// Package sqlite SQLite 响应缓存实现
//
// 网关重启后缓存内容仍然可用，离线兜底依赖这一点。
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"entropy-gateway/internal/shared/respcache"
)

// Store SQLite 响应缓存
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS cached_responses (
    cache_name VARCHAR(128) NOT NULL,
    key TEXT NOT NULL,
    status INTEGER NOT NULL,
    headers TEXT NOT NULL,
    body BLOB NOT NULL,
    stored_at DATETIME NOT NULL,
    PRIMARY KEY (cache_name, key)
);
`

// Open 创建 SQLite 响应缓存
// dsn 示例: "file:respcache.db?cache=shared&mode=rwc"
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to migrate cached_responses: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite: %w", err)
	}

	return &Store{db: db}, nil
}

// Get 读取缓存的响应
func (s *Store) Get(ctx context.Context, cacheName, key string) (*respcache.Response, error) {
	var (
		resp    respcache.Response
		headers string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT status, headers, body, stored_at FROM cached_responses WHERE cache_name = ? AND key = ?`,
		cacheName, key).Scan(&resp.Status, &headers, &resp.Body, &resp.StoredAt)
	if err == sql.ErrNoRows {
		return nil, respcache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached response: %w", err)
	}

	resp.Header = make(http.Header)
	if err := json.Unmarshal([]byte(headers), &resp.Header); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached headers: %w", err)
	}
	return &resp, nil
}

// Put 写入响应，同名 key 覆盖
func (s *Store) Put(ctx context.Context, cacheName, key string, resp *respcache.Response) error {
	headers, err := json.Marshal(resp.Header)
	if err != nil {
		return fmt.Errorf("failed to marshal response headers: %w", err)
	}

	storedAt := resp.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cached_responses (cache_name, key, status, headers, body, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (cache_name, key) DO UPDATE SET
		   status = excluded.status, headers = excluded.headers,
		   body = excluded.body, stored_at = excluded.stored_at`,
		cacheName, key, resp.Status, string(headers), resp.Body, storedAt)
	if err != nil {
		return fmt.Errorf("failed to put cached response: %w", err)
	}
	return nil
}

// Delete 删除单个条目
func (s *Store) Delete(ctx context.Context, cacheName, key string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cached_responses WHERE cache_name = ? AND key = ?`, cacheName, key)
	if err != nil {
		return fmt.Errorf("failed to delete cached response: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return respcache.ErrNotFound
	}
	return nil
}

// Keys 列出某个缓存空间内的所有 key
func (s *Store) Keys(ctx context.Context, cacheName string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM cached_responses WHERE cache_name = ?`, cacheName)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan cache key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Purge 删除不在 keepNames 中的所有缓存空间
func (s *Store) Purge(ctx context.Context, keepNames []string) error {
	if len(keepNames) == 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM cached_responses`)
		return err
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keepNames)), ",")
	args := make([]any, len(keepNames))
	for i, n := range keepNames {
		args[i] = n
	}

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM cached_responses WHERE cache_name NOT IN (%s)`, placeholders),
		args...)
	if err != nil {
		return fmt.Errorf("failed to purge caches: %w", err)
	}
	return nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	return s.db.Close()
}

var _ respcache.Store = (*Store)(nil)
