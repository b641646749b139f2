// Package main 网关入口
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"entropy-gateway/internal/config"
	"entropy-gateway/internal/gateway/ai"
	"entropy-gateway/internal/gateway/assets"
	"entropy-gateway/internal/gateway/auth"
	"entropy-gateway/internal/gateway/server"
	"entropy-gateway/internal/shared/chatstore"
	"entropy-gateway/internal/shared/chatstore/mongostore"
	"entropy-gateway/internal/shared/eventbus"
	busetcd "entropy-gateway/internal/shared/eventbus/etcd"
	busredis "entropy-gateway/internal/shared/eventbus/redis"
	"entropy-gateway/internal/shared/objstore"
	"entropy-gateway/internal/shared/opcache"
	respsqlite "entropy-gateway/internal/shared/respcache/sqlite"
	"entropy-gateway/internal/shared/syncqueue"
	queuepg "entropy-gateway/internal/shared/syncqueue/postgres"
	queuesqlite "entropy-gateway/internal/shared/syncqueue/sqlite"
)

func main() {
	// 加载配置（自动加载 .env，根据 APP_ENV 切换环境）
	cfg := config.Load()

	log.Printf("Starting Gateway... [env=%s]", cfg.Env)
	log.Printf("Config: %s", cfg.String())

	// 初始化 MongoDB（聊天历史持久化）
	store, err := mongostore.NewStore(cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer store.Close()
	log.Println("Connected to MongoDB")

	chats := chatstore.NewClient(store, chatstore.Options{
		MaxRetries:     cfg.Chat.MaxRetries,
		RetryBaseDelay: cfg.Chat.RetryBaseDelay.Std(),
		CacheSize:      cfg.Chat.CacheSize,
		CacheTTL:       cfg.Chat.CacheTTL.Std(),
	})

	// 初始化事件总线
	bus := openEventBus(cfg)
	defer bus.Close()

	// 初始化离线写队列
	queue := openQueue(cfg)
	defer queue.Close()

	// 初始化响应缓存（持久化，进程重启后离线兜底仍可用）
	respCache, err := respsqlite.Open(cfg.RespCacheDSN)
	if err != nil {
		log.Fatalf("Failed to open response cache: %v", err)
	}
	defer respCache.Close()

	// 初始化外壳资源源站
	origin := openOrigin(cfg)

	// 模型结果缓存与进度跟踪
	opCache := opcache.New[string](opcache.DefaultCapacity)
	tracker := opcache.NewTracker(opcache.DefaultSafetyTimeout)
	defer tracker.Close()

	// Prometheus 指标
	metrics := server.NewMetrics("entropy_gateway")
	server.RegisterCacheStats("entropy_gateway", "ai_results", opCache.Stats)
	server.RegisterCacheStats("entropy_gateway", "chat_queries", chats.CacheStats)
	server.RegisterQueueDepth("entropy_gateway", func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := queue.Len(ctx)
		if err != nil {
			return 0
		}
		return float64(n)
	})

	// OpenAPI 请求校验
	openapiRouter, err := server.LoadOpenAPIRouter(context.Background())
	if err != nil {
		log.Fatalf("Failed to load OpenAPI document: %v", err)
	}

	h := server.NewHandler(server.Options{
		Chats:     chats,
		Completer: ai.NewClient(cfg.AI),
		Queue:     queue,
		Bus:       bus,
		RespCache: respCache,
		Origin:    origin,
		OpCache:   opCache,
		Tracker:   tracker,
		AuthCfg: auth.Config{
			JWTSecret:   cfg.Auth.JWTSecret,
			UpstreamURL: cfg.Auth.UpstreamURL,
		},
		Metrics: metrics,
		OpenAPI: openapiRouter,
	})
	defer h.Close()

	// 外壳预缓存 + 旧版本缓存清理
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	shell := assets.NewHandler(origin, respCache)
	shell.Precache(startupCtx)
	if err := shell.Activate(startupCtx); err != nil {
		log.Printf("Purge stale caches failed: %v", err)
	}
	cancelStartup()

	srv := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      h.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // 模型调用最长 30s，再留足响应时间
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("Gateway listening on :%s", cfg.APIPort)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	fmt.Println("Server stopped")
}

// openEventBus 按配置选择事件总线驱动
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
		log.Println("[EventBus] Using in-memory bus (single process only)")
		return eventbus.NewMemEventBus()
	default:
		bus, err := busredis.NewStoreFromURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		return bus
	}
}

// openQueue 按配置选择离线队列驱动
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

// openOrigin 按配置选择外壳资源源站
func openOrigin(cfg *config.Config) assets.Origin {
	if cfg.Origin.Mode == "minio" {
		client, err := objstore.NewClient(cfg.Origin.MinIO)
		if err != nil {
			log.Fatalf("Failed to connect to MinIO: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.EnsureBucket(ctx); err != nil {
			log.Fatalf("Failed to ensure MinIO bucket: %v", err)
		}
		return assets.NewObjstoreOrigin(client)
	}
	return assets.NewHTTPOrigin(cfg.Origin.URL)
}
