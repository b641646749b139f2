// Package eventbus 事件总线 mock 实现
package eventbus

import (
	"context"
	"sync"
)

// ============================================================================
// NoOpEventBus - 空操作的 EventBus 实现（用于测试）
// ============================================================================

// NoOpEventBus 是一个不做任何操作的 EventBus 实现
type NoOpEventBus struct{}

// NewNoOpEventBus 创建 NoOpEventBus 实例
func NewNoOpEventBus() *NoOpEventBus {
	return &NoOpEventBus{}
}

func (b *NoOpEventBus) PublishSync(ctx context.Context, event *SyncEvent) error {
	return nil
}

func (b *NoOpEventBus) SubscribeSync(ctx context.Context) (<-chan *SyncEvent, error) {
	ch := make(chan *SyncEvent)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (b *NoOpEventBus) Close() error {
	return nil
}

var _ EventBus = (*NoOpEventBus)(nil)

// ============================================================================
// MemEventBus - 进程内 EventBus 实现（用于测试和单机部署）
// ============================================================================

// MemEventBus 基于通道的进程内事件总线
type MemEventBus struct {
	mu     sync.Mutex
	subs   []chan *SyncEvent
	closed bool
}

// NewMemEventBus 创建进程内事件总线
func NewMemEventBus() *MemEventBus {
	return &MemEventBus{}
}

func (b *MemEventBus) PublishSync(ctx context.Context, event *SyncEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// 订阅方跟不上时丢弃，同步事件是幂等触发信号
		}
	}
	return nil
}

func (b *MemEventBus) SubscribeSync(ctx context.Context) (<-chan *SyncEvent, error) {
	ch := make(chan *SyncEvent, SubscribeBuffer)

	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		for i, sub := range b.subs {
			if sub == ch {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

func (b *MemEventBus) Close() error {
	return nil
}

var _ EventBus = (*MemEventBus)(nil)
