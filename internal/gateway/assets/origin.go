// Package assets 应用外壳与静态资源的离线缓存策略
//
// 对请求分类（导航 / 静态资源 / 认证接口 / 动态接口），
// 分别应用 network-first / cache-first 策略，源站不可达时
// 回退到持久化的响应缓存，保证弱网环境下应用可用。
package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"entropy-gateway/internal/shared/objstore"
	"entropy-gateway/internal/shared/respcache"
)

// ============================================================================
// 源站抽象
// ============================================================================

// Origin 应用外壳资源源站
//
// 支持两种实现：反向代理到前端构建产物服务器（开发环境），
// 或从 MinIO 对象存储读取（生产环境）。
type Origin interface {
	// Fetch 获取指定路径的资源，源站不可达或资源不存在时返回错误
	Fetch(ctx context.Context, path string) (*respcache.Response, error)
}

// ============================================================================
// HTTP 反向代理源站
// ============================================================================

// HTTPOrigin 通过 HTTP 访问上游资源服务器
type HTTPOrigin struct {
	baseURL string
	client  *http.Client
}

var _ Origin = (*HTTPOrigin)(nil)

// NewHTTPOrigin 创建 HTTP 源站客户端
func NewHTTPOrigin(baseURL string) *HTTPOrigin {
	return &HTTPOrigin{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// Fetch 从上游获取资源
func (o *HTTPOrigin) Fetch(ctx context.Context, path string) (*respcache.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build origin request: %w", err)
	}

	httpResp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("origin fetch %s: %w", path, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("origin fetch %s: status %d", path, httpResp.StatusCode)
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read origin response: %w", err)
	}

	return &respcache.Response{
		Status:   httpResp.StatusCode,
		Header:   httpResp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now(),
	}, nil
}

// ============================================================================
// MinIO 对象存储源站
// ============================================================================

// ObjstoreOrigin 从 MinIO 读取构建产物
type ObjstoreOrigin struct {
	store *objstore.Client
}

var _ Origin = (*ObjstoreOrigin)(nil)

// NewObjstoreOrigin 创建对象存储源站
func NewObjstoreOrigin(store *objstore.Client) *ObjstoreOrigin {
	return &ObjstoreOrigin{store: store}
}

// Fetch 从对象存储获取资源
func (o *ObjstoreOrigin) Fetch(ctx context.Context, path string) (*respcache.Response, error) {
	body, contentType, err := o.store.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}

	header := make(http.Header)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}

	return &respcache.Response{
		Status:   http.StatusOK,
		Header:   header,
		Body:     body,
		StoredAt: time.Now(),
	}, nil
}
