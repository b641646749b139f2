package assets

import (
	"net/http"
	"path"
	"strings"
)

// ============================================================================
// 请求分类
// ============================================================================

// Kind 请求类别，决定应用哪种缓存策略
type Kind int

const (
	// KindNavigation 页面导航（HTML 入口）
	KindNavigation Kind = iota
	// KindStatic 静态资源（脚本、样式、字体、图片）
	KindStatic
	// KindAuth 认证接口，永不缓存
	KindAuth
	// KindDynamic 动态接口
	KindDynamic
	// KindBypass 不参与缓存策略（非 GET、WebSocket 等）
	KindBypass
)

// staticExtensions 识别为静态资源的扩展名
var staticExtensions = map[string]bool{
	".js":    true,
	".css":   true,
	".woff":  true,
	".woff2": true,
	".ttf":   true,
	".ico":   true,
	".png":   true,
	".jpg":   true,
	".jpeg":  true,
	".gif":   true,
	".svg":   true,
	".webp":  true,
	".json":  true,
	".map":   true,
}

// Classify 判定请求类别
func Classify(r *http.Request) Kind {
	if strings.HasPrefix(r.URL.Path, "/api/v1/auth/") {
		return KindAuth
	}
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return KindDynamic
	}
	if strings.HasPrefix(r.URL.Path, "/ws/") || r.Method != http.MethodGet {
		return KindBypass
	}
	if staticExtensions[strings.ToLower(path.Ext(r.URL.Path))] {
		return KindStatic
	}
	// 无扩展名的 GET 视为 SPA 路由导航
	return KindNavigation
}
