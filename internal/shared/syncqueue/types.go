// Package syncqueue 队列相关类型与常量
package syncqueue

// ============================================================================
// 常量定义
// ============================================================================

const (
	// DefaultMaxAttempts 默认最大重放次数，0 表示不设上限。
	// 写任务代表用户数据，默认不因失败次数而丢弃
	DefaultMaxAttempts = 0
)
