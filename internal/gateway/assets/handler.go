package assets

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"entropy-gateway/internal/shared/respcache"
)

// ShellPaths 应用外壳资源，启动时预缓存
var ShellPaths = []string{
	"/",
	"/index.html",
	"/assets/index.js",
	"/assets/index.css",
	"/favicon.ico",
	"/manifest.json",
	"/assets/fonts/fira-code.woff2",
}

// Handler 静态资源处理器
//
// network-first 导航 + cache-first 静态资源，源站故障时
// 从持久化缓存服务，两者都失败时返回合成 404。
type Handler struct {
	origin Origin
	cache  respcache.Store
}

// NewHandler 创建静态资源处理器
func NewHandler(origin Origin, cache respcache.Store) *Handler {
	return &Handler{origin: origin, cache: cache}
}

// Precache 预缓存应用外壳资源
//
// 单个资源失败只记录日志不中断，源站恢复后由后台刷新补齐。
func (h *Handler) Precache(ctx context.Context) {
	ok := 0
	for _, p := range ShellPaths {
		resp, err := h.origin.Fetch(ctx, p)
		if err != nil {
			log.Printf("[Assets] Precache %s failed: %v", p, err)
			continue
		}
		if err := h.cache.Put(ctx, respcache.CacheStatic, p, resp); err != nil {
			log.Printf("[Assets] Precache store %s failed: %v", p, err)
			continue
		}
		ok++
	}
	log.Printf("[Assets] Precached %d/%d shell resources", ok, len(ShellPaths))
}

// Activate 清理旧版本缓存空间
//
// 缓存名带版本号，升级后不在 ActiveCaches 中的空间全部删除，
// 这是跨版本缓存失效的唯一机制。
func (h *Handler) Activate(ctx context.Context) error {
	return h.cache.Purge(ctx, respcache.ActiveCaches)
}

// ServeHTTP 按请求类别分发缓存策略
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch Classify(r) {
	case KindNavigation:
		h.serveNavigation(w, r)
	case KindStatic:
		h.serveStatic(w, r)
	default:
		http.NotFound(w, r)
	}
}

// serveNavigation 导航请求：network-first，失败回退缓存的外壳
func (h *Handler) serveNavigation(w http.ResponseWriter, r *http.Request) {
	resp, err := h.origin.Fetch(r.Context(), r.URL.Path)
	if err == nil {
		// SPA 路由统一返回入口 HTML，缓存到外壳键下
		if cacheErr := h.cache.Put(r.Context(), respcache.CacheStatic, "/", resp); cacheErr != nil {
			log.Printf("[Assets] Cache shell failed: %v", cacheErr)
		}
		writeResponse(w, resp)
		return
	}

	log.Printf("[Assets] Origin unavailable for %s, serving cached shell: %v", r.URL.Path, err)

	cached, cacheErr := h.cache.Get(r.Context(), respcache.CacheStatic, "/")
	if cacheErr != nil {
		http.Error(w, "application shell unavailable", http.StatusServiceUnavailable)
		return
	}
	writeResponse(w, cached)
}

// serveStatic 静态资源：cache-first + 后台刷新
func (h *Handler) serveStatic(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Path

	if !bypassCache(r) {
		cached, err := h.cache.Get(r.Context(), respcache.CacheStatic, key)
		if err == nil {
			// 先响应，再在后台刷新缓存副本
			go h.refresh(key)
			writeResponse(w, cached)
			return
		}
		if !errors.Is(err, respcache.ErrNotFound) {
			log.Printf("[Assets] Cache read %s failed: %v", key, err)
		}
	}

	resp, err := h.origin.Fetch(r.Context(), key)
	if err != nil {
		log.Printf("[Assets] Fetch %s failed: %v", key, err)
		// 缓存和网络都失败，返回合成 404
		http.Error(w, "asset not found", http.StatusNotFound)
		return
	}

	if err := h.cache.Put(r.Context(), respcache.CacheStatic, key, resp); err != nil {
		log.Printf("[Assets] Cache write %s failed: %v", key, err)
	}
	writeResponse(w, resp)
}

// refresh 后台刷新单个静态资源，失败静默（下次请求再试）
func (h *Handler) refresh(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	resp, err := h.origin.Fetch(ctx, key)
	if err != nil {
		return
	}
	if err := h.cache.Put(ctx, respcache.CacheStatic, key, resp); err != nil {
		log.Printf("[Assets] Background refresh %s failed: %v", key, err)
	}
}

func bypassCache(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Cache-Control"), "no-cache")
}

func writeResponse(w http.ResponseWriter, resp *respcache.Response) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}
