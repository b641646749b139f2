// Package chatstore 对话历史存储层类型定义
package chatstore

import (
	"fmt"
	"time"

	"entropy-gateway/internal/shared/model"
)

// ============================================================================
// 查询类型
// ============================================================================

// QueryFilter 历史查询过滤条件
type QueryFilter struct {
	// UserID 记录归属用户，必填
	UserID string

	// Type 对话类型，空值表示全部类型
	Type model.ChatType

	// Limit 最大返回条数
	Limit int
}

// ============================================================================
// 常量
// ============================================================================

const (
	// MaxBatchSize 远端存储单批写操作硬上限
	MaxBatchSize = 500

	// MaxRetries 远端操作最大尝试次数
	MaxRetries = 3

	// RetryBaseDelay 重试基础延迟，实际延迟 = RetryBaseDelay * 尝试序号
	RetryBaseDelay = 1 * time.Second

	// ResultCacheSize 查询结果缓存容量
	ResultCacheSize = 50

	// ResultCacheTTL 查询结果缓存有效期
	ResultCacheTTL = 5 * time.Minute

	// DefaultQueryLimit 默认查询条数
	DefaultQueryLimit = 50

	// cacheSweepInterval 过期条目机会式清理的最小间隔
	cacheSweepInterval = time.Minute
)

// cacheKey 构造查询缓存键：userID:type|all:limit
func cacheKey(f QueryFilter) string {
	typ := "all"
	if f.Type != "" {
		typ = string(f.Type)
	}
	return fmt.Sprintf("%s:%s:%d", f.UserID, typ, f.Limit)
}
