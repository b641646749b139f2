package auth

import (
	"log"
	"net/http"
	"net/http/httputil"
	"net/url"
)

// NewProxy 创建身份服务透传 Handler
//
// /api/v1/auth/* 原样转发给外部身份服务，响应永远不缓存，
// 登录态不能落进任何缓存层。
//
// upstreamURL 在 config.validate 已校验；这里解析失败属于配置
// 被绕过的异常情况，降级为固定 502 而不是拉垮整个路由。
func NewProxy(upstreamURL string) http.Handler {
	target, err := url.Parse(upstreamURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		log.Printf("[authproxy] invalid upstream URL %q: %v", upstreamURL, err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"identity service unavailable"}`, http.StatusBadGateway)
		})
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("[authproxy] upstream error for %s %s: %v", r.Method, r.URL.Path, err)
		http.Error(w, `{"error":"identity service unavailable"}`, http.StatusBadGateway)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		proxy.ServeHTTP(w, r)
	})
}
