// Package eventbus 同步事件总线抽象接口
//
// 提供连接恢复事件的发布/订阅能力，当前由 Redis Pub/Sub 实现，
// 另有 etcd Watch 实现可选。
//
// 网关在连接恢复或收到手动同步请求时发布事件；syncworker 订阅
// 事件并只响应识别的 tag（TagChatHistorySync），其余 tag 一律忽略。
package eventbus

import (
	"context"
)

// ============================================================================
// 事件总线接口定义
// ============================================================================

// SyncEventBus 同步事件总线接口
type SyncEventBus interface {
	// PublishSync 发布一个同步事件
	PublishSync(ctx context.Context, event *SyncEvent) error

	// SubscribeSync 订阅同步事件，ctx 取消后通道关闭
	SubscribeSync(ctx context.Context) (<-chan *SyncEvent, error)
}

// ============================================================================
// 组合接口
// ============================================================================

// EventBus 事件总线组合接口
type EventBus interface {
	SyncEventBus
	Close() error
}
