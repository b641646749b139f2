// Package server 路由配置与中间件组装
//
// 本文件定义网关 HTTP 路由，将请求分发到各领域独立包：
//   - ai: 模型操作接口
//   - chat: 聊天历史接口
//   - progress: 进度 WebSocket
//   - auth: JWT 中间件与身份服务反向代理
//   - assets: 应用外壳与静态资源缓存策略
package server

import (
	"encoding/json"
	"net/http"

	"github.com/getkin/kin-openapi/routers"

	"entropy-gateway/internal/gateway/ai"
	"entropy-gateway/internal/gateway/assets"
	"entropy-gateway/internal/gateway/auth"
	"entropy-gateway/internal/gateway/chat"
	"entropy-gateway/internal/gateway/progress"
	"entropy-gateway/internal/shared/chatstore"
	"entropy-gateway/internal/shared/eventbus"
	"entropy-gateway/internal/shared/opcache"
	"entropy-gateway/internal/shared/respcache"
	"entropy-gateway/internal/shared/syncqueue"
)

// Handler 网关处理器
//
// Handler 是所有 HTTP 入口的组装点，负责：
//   - 路由请求到对应的领域处理器
//   - 组装中间件链（指标 / 动态缓存 / 认证 / 请求校验）
//   - 持有共享基础设施（弹性文档存储客户端、离线队列、事件总线）
type Handler struct {
	chats     *chatstore.Client     // 弹性文档存储客户端
	completer ai.Completer          // 生成式模型客户端
	queue     syncqueue.Queue       // 离线写队列
	bus       eventbus.SyncEventBus // 同步事件总线
	respCache respcache.Store       // HTTP 响应缓存
	origin    assets.Origin         // 应用外壳源站

	opCache *opcache.Cache[string] // 模型结果缓存
	tracker *opcache.Tracker       // 进行中操作跟踪

	authCfg auth.Config
	metrics *Metrics
	openapi routers.Router // 可为 nil（校验关闭）

	progressWS *progress.WSHandler
}

// Options 组装网关所需的全部依赖
type Options struct {
	Chats     *chatstore.Client
	Completer ai.Completer
	Queue     syncqueue.Queue
	Bus       eventbus.SyncEventBus
	RespCache respcache.Store
	Origin    assets.Origin
	OpCache   *opcache.Cache[string]
	Tracker   *opcache.Tracker
	AuthCfg   auth.Config
	Metrics   *Metrics
	OpenAPI   routers.Router
}

// NewHandler 创建网关处理器
func NewHandler(opts Options) *Handler {
	return &Handler{
		chats:      opts.Chats,
		completer:  opts.Completer,
		queue:      opts.Queue,
		bus:        opts.Bus,
		respCache:  opts.RespCache,
		origin:     opts.Origin,
		opCache:    opts.OpCache,
		tracker:    opts.Tracker,
		authCfg:    opts.AuthCfg,
		metrics:    opts.Metrics,
		openapi:    opts.OpenAPI,
		progressWS: progress.NewWSHandler(opts.Tracker),
	}
}

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 健康检查:
//   - GET /health - 服务健康检查
//
// 模型操作 (AI):
//   - POST /api/v1/ai/review    - 代码审查
//   - POST /api/v1/ai/enhance   - 代码增强
//   - POST /api/v1/ai/translate - 代码语言转换
//   - POST /api/v1/ai/snapshot  - 代码快照分析
//
// 聊天历史 (Chat):
//   - GET    /api/v1/chat/history              - 查询历史
//   - POST   /api/v1/chat/history              - 保存记录
//   - DELETE /api/v1/chat/history/{id}         - 删除单条
//   - POST   /api/v1/chat/history/batch-delete - 批量删除
//   - POST   /api/v1/sync                      - 手动触发同步
//
// 认证（反向代理到身份服务，永不缓存）:
//   - /api/v1/auth/*
//
// WebSocket:
//   - GET /ws/progress - 进行中操作状态实时推送
//
// 其余路径按离线缓存策略服务应用外壳与静态资源。
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", h.Health)

	// Prometheus 指标端点
	mux.Handle("GET /metrics", MetricsHandler())

	// 模型操作接口
	queue := h.queue
	if h.metrics != nil {
		queue = h.metrics.InstrumentQueue(queue)
	}
	aiHandler := ai.NewHandler(h.completer, h.chats, queue, h.bus, h.opCache, h.tracker)
	if h.metrics != nil {
		aiHandler.SetObserver(h.metrics.RecordAICall)
	}
	aiHandler.RegisterRoutes(mux)

	// 聊天历史接口
	chatHandler := chat.NewHandler(h.chats, h.bus)
	chatHandler.RegisterRoutes(mux)

	// 认证接口反向代理（透传，永不缓存）
	if h.authCfg.UpstreamURL != "" {
		mux.Handle("/api/v1/auth/", auth.NewProxy(h.authCfg.UpstreamURL))
	}

	// 应用外壳与静态资源（默认路由）
	assetsHandler := assets.NewHandler(h.origin, h.respCache)
	mux.Handle("/", assetsHandler)

	// 中间件链（内层先执行校验，外层先捕获指标）
	var chained http.Handler = mux
	if h.openapi != nil {
		chained = OpenAPIValidationMiddleware(h.openapi)(chained)
	}
	chained = auth.Middleware(h.authCfg)(chained)
	chained = assets.DynamicCacheMiddleware(h.respCache)(chained)
	if h.metrics != nil {
		chained = h.metrics.MetricsMiddleware(chained)
	}
	chained = corsMiddleware(chained)

	// WebSocket 绕过指标中间件（避免 http.Hijacker 问题）
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /ws/progress", h.progressWS.HandleWebSocket)
	topMux.Handle("/", chained)

	return topMux
}

// Close 释放处理器持有的后台资源
func (h *Handler) Close() {
	h.progressWS.Close()
}

// Health 健康检查接口
//
// 路由: GET /health
//
// 用于负载均衡器和监控系统检查服务状态。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// corsMiddleware 添加 CORS 头支持跨域请求
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Cache-Control")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
