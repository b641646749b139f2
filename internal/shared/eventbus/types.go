// Package eventbus 同步事件类型定义
package eventbus

import (
	"time"
)

// ============================================================================
// 事件类型
// ============================================================================

// SyncEvent 同步事件
//
// 平台在连接恢复时触发，携带字符串 tag；订阅方只响应识别的
// tag，忽略其他所有值。
type SyncEvent struct {
	Tag       string    `json:"tag"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ============================================================================
// Key 前缀和常量
// ============================================================================

const (
	// TagChatHistorySync 对话历史离线写入队列的同步 tag
	TagChatHistorySync = "sync-chat-history"

	// KeySyncEvents Redis Pub/Sub 频道 / etcd key 前缀
	KeySyncEvents = "sync_events"

	// SubscribeBuffer 订阅通道缓冲区大小
	SubscribeBuffer = 16
)
