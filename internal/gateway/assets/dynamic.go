package assets

import (
	"log"
	"net/http"
	"time"

	"entropy-gateway/internal/shared/respcache"
)

// ============================================================================
// 动态接口缓存中间件
// ============================================================================

// responseRecorder 捕获下游处理器的响应用于缓存判定
type responseRecorder struct {
	status int
	header http.Header
	body   []byte
}

func newResponseRecorder() *responseRecorder {
	return &responseRecorder{status: http.StatusOK, header: make(http.Header)}
}

func (r *responseRecorder) Header() http.Header { return r.header }

func (r *responseRecorder) WriteHeader(status int) { r.status = status }

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body = append(r.body, b...)
	return len(b), nil
}

// DynamicCacheMiddleware 动态接口的 network-first 缓存
//
// 只作用于 GET 的动态接口：成功（2xx）响应写入动态缓存空间，
// 下游失败（5xx）时回退到最近一次的缓存副本。认证接口和写
// 操作直接透传，永不缓存。
func DynamicCacheMiddleware(cache respcache.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || Classify(r) != KindDynamic {
				next.ServeHTTP(w, r)
				return
			}

			key := dynamicKey(r)
			rec := newResponseRecorder()
			next.ServeHTTP(rec, r)

			if rec.status >= 200 && rec.status < 300 {
				resp := &respcache.Response{
					Status:   rec.status,
					Header:   rec.header.Clone(),
					Body:     rec.body,
					StoredAt: time.Now(),
				}
				if err := cache.Put(r.Context(), respcache.CacheDynamic, key, resp); err != nil {
					log.Printf("[Assets] Dynamic cache write %s failed: %v", key, err)
				}
				writeRecorded(w, rec)
				return
			}

			if rec.status >= 500 {
				cached, err := cache.Get(r.Context(), respcache.CacheDynamic, key)
				if err == nil {
					log.Printf("[Assets] Serving %s from dynamic cache (upstream status %d)", key, rec.status)
					writeResponse(w, cached)
					return
				}
			}

			writeRecorded(w, rec)
		})
	}
}

// dynamicKey 动态缓存键：路径 + 查询串 + 请求方标识头
//
// 历史记录按用户隔离，键必须包含调用方身份避免串数据。
func dynamicKey(r *http.Request) string {
	key := r.URL.Path
	if r.URL.RawQuery != "" {
		key += "?" + r.URL.RawQuery
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		key += "#" + auth
	}
	return key
}

func writeRecorded(w http.ResponseWriter, rec *responseRecorder) {
	for k, vs := range rec.header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(rec.status)
	w.Write(rec.body)
}
