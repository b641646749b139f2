// Package etcd etcd 事件总线实现
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"entropy-gateway/internal/shared/eventbus"
)

// Store etcd Watch 事件总线
type Store struct {
	client *clientv3.Client
	prefix string
}

// Config etcd 配置
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	Prefix      string
}

// NewStore 创建 etcd 事件总线
func NewStore(cfg Config) (*Store, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "/entropy"
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := client.Status(ctx, cfg.Endpoints[0]); err != nil {
		client.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	log.Printf("[Etcd/EventBus] Connected to %v", cfg.Endpoints)
	return &Store{
		client: client,
		prefix: cfg.Prefix,
	}, nil
}

// NewStoreFromClient 从现有 etcd 客户端创建事件总线
func NewStoreFromClient(client *clientv3.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "/entropy"
	}
	return &Store{client: client, prefix: prefix}
}

func (s *Store) syncKey() string {
	return fmt.Sprintf("%s/%s", s.prefix, eventbus.KeySyncEvents)
}

// PublishSync 发布同步触发事件
//
// 事件写到同一个 key 上，订阅方通过 Watch 感知每次 Put。
// 同步事件是幂等触发信号，覆盖写不会丢语义
func (s *Store) PublishSync(ctx context.Context, event *eventbus.SyncEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}

	// 带租约写入，避免残留的旧触发信号无限期存活
	lease, err := s.client.Grant(ctx, 60)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	if _, err := s.client.Put(ctx, s.syncKey(), string(data), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to put sync event: %w", err)
	}

	log.Printf("[Etcd/EventBus] Published sync event: tag=%s source=%s", event.Tag, event.Source)
	return nil
}

// SubscribeSync 订阅同步触发事件
func (s *Store) SubscribeSync(ctx context.Context) (<-chan *eventbus.SyncEvent, error) {
	ch := make(chan *eventbus.SyncEvent, eventbus.SubscribeBuffer)

	go func() {
		defer close(ch)

		watchCh := s.client.Watch(ctx, s.syncKey())
		for watchResp := range watchCh {
			if err := watchResp.Err(); err != nil {
				log.Printf("[Etcd/EventBus] Watch error: %v", err)
				return
			}
			for _, ev := range watchResp.Events {
				if ev.Type != clientv3.EventTypePut {
					continue
				}

				var event eventbus.SyncEvent
				if err := json.Unmarshal(ev.Kv.Value, &event); err != nil {
					log.Printf("[Etcd/EventBus] Invalid sync event payload: %v", err)
					continue
				}

				select {
				case ch <- &event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}

// Close 关闭 etcd 连接
func (s *Store) Close() error {
	return s.client.Close()
}

var _ eventbus.EventBus = (*Store)(nil)
