// Package main 同步 worker 入口
//
// 独立于网关进程运行，持有离线写队列并在同步事件到达时
// 把积压的写任务重放到网关。
package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"entropy-gateway/internal/config"
	"entropy-gateway/internal/shared/eventbus"
	busetcd "entropy-gateway/internal/shared/eventbus/etcd"
	busredis "entropy-gateway/internal/shared/eventbus/redis"
	"entropy-gateway/internal/shared/syncqueue"
	queuepg "entropy-gateway/internal/shared/syncqueue/postgres"
	queuesqlite "entropy-gateway/internal/shared/syncqueue/sqlite"
	"entropy-gateway/internal/syncworker"
)

func main() {
	cfg := config.Load()

	log.Printf("Starting Sync Worker... [env=%s]", cfg.Env)

	queue := openQueue(cfg)
	defer queue.Close()

	bus := openEventBus(cfg)
	defer bus.Close()

	w := syncworker.NewWorker(queue, bus, cfg.Worker)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		log.Println("Shutting down sync worker...")
		cancel()
	}()

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Sync worker error: %v", err)
	}
}

func openQueue(cfg *config.Config) syncqueue.Queue {
	switch cfg.QueueDriver {
	case "postgres":
		queue, err := queuepg.Open(cfg.QueueDSN)
		if err != nil {
			log.Fatalf("Failed to open postgres queue: %v", err)
		}
		return queue
	default:
		queue, err := queuesqlite.Open(cfg.QueueDSN)
		if err != nil {
			log.Fatalf("Failed to open sqlite queue: %v", err)
		}
		return queue
	}
}

func openEventBus(cfg *config.Config) eventbus.EventBus {
	switch cfg.EventBusDriver {
	case "etcd":
		bus, err := busetcd.NewStore(busetcd.Config{
			Endpoints: cfg.Etcd.Endpoints,
			Prefix:    cfg.Etcd.Prefix,
		})
		if err != nil {
			log.Fatalf("Failed to connect to etcd: %v", err)
		}
		return bus
	case "mem":
		// 单进程内存总线对独立 worker 无意义，只靠兜底轮询
		log.Println("[EventBus] In-memory bus: relying on drain interval polling only")
		return eventbus.NewMemEventBus()
	default:
		bus, err := busredis.NewStoreFromURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		return bus
	}
}
