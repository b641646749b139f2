// Package respcache HTTP 响应缓存抽象接口
//
// 按命名缓存空间存放完整 HTTP 响应（状态码、头、体），
// 供静态资源与动态接口的缓存策略使用。缓存名带版本号，
// 升级时通过 Purge 清理旧版本。当前由 SQLite 实现。
package respcache

import (
	"context"
	"errors"
)

// ============================================================================
// 错误定义
// ============================================================================

var (
	// ErrNotFound 缓存中不存在对应条目
	ErrNotFound = errors.New("cached response not found")
)

// ============================================================================
// 缓存接口定义
// ============================================================================

// Store 响应缓存接口
type Store interface {
	// Get 读取缓存的响应
	Get(ctx context.Context, cacheName, key string) (*Response, error)

	// Put 写入响应，同名 key 覆盖
	Put(ctx context.Context, cacheName, key string, resp *Response) error

	// Delete 删除单个条目
	Delete(ctx context.Context, cacheName, key string) error

	// Keys 列出某个缓存空间内的所有 key
	Keys(ctx context.Context, cacheName string) ([]string, error)

	// Purge 删除不在 keepNames 中的所有缓存空间
	Purge(ctx context.Context, keepNames []string) error

	Close() error
}
