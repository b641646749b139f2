// Package model 定义核心数据模型
//
// writetask.go 包含离线写入任务的数据模型定义。
package model

import (
	"encoding/json"
	"time"
)

// ============================================================================
// WriteTask - 离线写入任务
// ============================================================================

// WriteTask 离线写入任务
//
// 当写请求因网络不可达失败时入队持久化，连接恢复后由 syncworker
// 按入队顺序重放。重放成功（2xx）后删除，失败则留待下一次同步事件。
type WriteTask struct {
	ID        string          `json:"id"`
	Endpoint  string          `json:"endpoint"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`

	// Attempts 已重放次数，用于可配置的重试上限（0 表示不限）
	Attempts int `json:"attempts"`
}

// ============================================================================
// OperationSnapshot - 进行中操作快照
// ============================================================================

// OperationSnapshot 聚合加载状态快照，推送给 UI 端
type OperationSnapshot struct {
	Loading  bool      `json:"loading"`
	Message  string    `json:"message"`
	Progress int       `json:"progress"`
	Pending  int       `json:"pending"`
	At       time.Time `json:"at"`
}
