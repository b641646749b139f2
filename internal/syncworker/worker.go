// Package syncworker 离线写队列的后台排空器
//
// 订阅事件总线上的同步事件（只响应对话历史 tag），收到事件后
// 按入队顺序把队列中的写任务重放为 HTTP POST：2xx 删除任务，
// 失败留在队列等待下一次同步。另有兜底轮询，防止事件丢失导致
// 队列永久滞留。
package syncworker

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"entropy-gateway/internal/config"
	"entropy-gateway/internal/shared/eventbus"
	"entropy-gateway/internal/shared/model"
	"entropy-gateway/internal/shared/syncqueue"
)

// Worker 同步排空器
type Worker struct {
	queue  syncqueue.Queue
	bus    eventbus.SyncEventBus
	client *http.Client

	gatewayURL    string
	maxAttempts   int // 0 表示不限，用户数据不丢弃
	drainInterval time.Duration
}

// NewWorker 创建同步排空器
func NewWorker(queue syncqueue.Queue, bus eventbus.SyncEventBus, cfg config.WorkerConfig) *Worker {
	interval := cfg.DrainInterval.Std()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Worker{
		queue:         queue,
		bus:           bus,
		client:        &http.Client{Timeout: 30 * time.Second},
		gatewayURL:    cfg.GatewayURL,
		maxAttempts:   cfg.MaxAttempts,
		drainInterval: interval,
	}
}

// Run 阻塞运行直到 ctx 取消
//
// 同步事件和兜底轮询都会触发一次排空；启动时先排空一次，
// 处理进程重启前遗留的任务。
func (w *Worker) Run(ctx context.Context) error {
	events, err := w.bus.SubscribeSync(ctx)
	if err != nil {
		return fmt.Errorf("subscribe sync events: %w", err)
	}

	ticker := time.NewTicker(w.drainInterval)
	defer ticker.Stop()

	log.Printf("[SyncWorker] Started, gateway=%s drain_interval=%s", w.gatewayURL, w.drainInterval)

	w.Drain(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[SyncWorker] Shutting down")
			return ctx.Err()

		case event, ok := <-events:
			if !ok {
				return fmt.Errorf("sync event channel closed")
			}
			// 只响应识别的 tag，其余一律忽略
			if event.Tag != eventbus.TagChatHistorySync {
				continue
			}
			log.Printf("[SyncWorker] Sync event received (source=%s)", event.Source)
			w.Drain(ctx)

		case <-ticker.C:
			w.Drain(ctx)
		}
	}
}

// Drain 按入队顺序重放所有待处理任务
//
// 返回成功重放的任务数。单个任务失败不中断排空，
// 留在队列等待下一次同步事件。
func (w *Worker) Drain(ctx context.Context) int {
	tasks, err := w.queue.Pending(ctx)
	if err != nil {
		log.Printf("[SyncWorker] List pending tasks failed: %v", err)
		return 0
	}
	if len(tasks) == 0 {
		return 0
	}

	log.Printf("[SyncWorker] Draining %d pending tasks", len(tasks))

	drained := 0
	for _, task := range tasks {
		if err := w.replay(ctx, task); err != nil {
			log.Printf("[SyncWorker] Replay %s failed (attempt %d): %v", task.ID, task.Attempts+1, err)
			w.recordFailure(ctx, task)
			continue
		}

		if err := w.queue.Delete(ctx, task.ID); err != nil {
			log.Printf("[SyncWorker] Delete %s failed: %v", task.ID, err)
			continue
		}
		drained++
	}

	log.Printf("[SyncWorker] Drain complete: %d/%d replayed", drained, len(tasks))
	return drained
}

// replay 把单个任务重放为 HTTP POST
func (w *Worker) replay(ctx context.Context, task *model.WriteTask) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		w.gatewayURL+task.Endpoint, bytes.NewReader(task.Payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return nil
}

// recordFailure 累加失败次数，超过上限（若配置）则丢弃任务
func (w *Worker) recordFailure(ctx context.Context, task *model.WriteTask) {
	if err := w.queue.IncrementAttempts(ctx, task.ID); err != nil {
		log.Printf("[SyncWorker] Increment attempts %s failed: %v", task.ID, err)
		return
	}

	if w.maxAttempts > 0 && task.Attempts+1 >= w.maxAttempts {
		log.Printf("[SyncWorker] Task %s exceeded %d attempts, dropping", task.ID, w.maxAttempts)
		if err := w.queue.Delete(ctx, task.ID); err != nil {
			log.Printf("[SyncWorker] Drop %s failed: %v", task.ID, err)
		}
	}
}
