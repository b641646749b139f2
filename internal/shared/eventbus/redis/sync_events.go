// Package redis 同步事件的发布与订阅
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"entropy-gateway/internal/shared/eventbus"
)

// PublishSync 发布同步触发事件
func (s *Store) PublishSync(ctx context.Context, event *eventbus.SyncEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}

	if err := s.client.Publish(ctx, eventbus.KeySyncEvents, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish sync event: %w", err)
	}

	log.Printf("[Redis/EventBus] Published sync event: tag=%s source=%s", event.Tag, event.Source)
	return nil
}

// SubscribeSync 订阅同步触发事件
func (s *Store) SubscribeSync(ctx context.Context) (<-chan *eventbus.SyncEvent, error) {
	sub := s.client.Subscribe(ctx, eventbus.KeySyncEvents)

	// 确认订阅已建立后再返回，避免丢失早期事件
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe sync events: %w", err)
	}

	ch := make(chan *eventbus.SyncEvent, eventbus.SubscribeBuffer)

	go func() {
		defer close(ch)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				var event eventbus.SyncEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					log.Printf("[Redis/EventBus] Invalid sync event payload: %v", err)
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
