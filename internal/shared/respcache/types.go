// Package respcache 响应缓存相关类型与常量
package respcache

import (
	"net/http"
	"time"
)

// ============================================================================
// 类型定义
// ============================================================================

// Response 缓存的 HTTP 响应
type Response struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"storedAt"`
}

// Clone 返回响应的深拷贝，调用方可安全修改
func (r *Response) Clone() *Response {
	cp := &Response{
		Status:   r.Status,
		Header:   make(http.Header, len(r.Header)),
		Body:     make([]byte, len(r.Body)),
		StoredAt: r.StoredAt,
	}
	for k, vs := range r.Header {
		cp.Header[k] = append([]string(nil), vs...)
	}
	copy(cp.Body, r.Body)
	return cp
}

// ============================================================================
// 常量定义
// ============================================================================

const (
	// CacheStatic 预缓存的应用外壳资源
	CacheStatic = "entropy-static-v2"
	// CacheDynamic 运行时缓存的动态接口响应
	CacheDynamic = "entropy-dynamic-v2"
)

// ActiveCaches 当前版本使用的全部缓存空间，Purge 时保留
var ActiveCaches = []string{CacheStatic, CacheDynamic}
