package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	legacyrouter "github.com/getkin/kin-openapi/routers/legacy"

	"entropy-gateway/api"
)

// LoadOpenAPIRouter 加载内嵌的 OpenAPI 文档并构建路由匹配器
func LoadOpenAPIRouter(ctx context.Context) (routers.Router, error) {
	data, err := api.OpenAPIFS.ReadFile("openapi/gateway.yaml")
	if err != nil {
		return nil, fmt.Errorf("read openapi document: %w", err)
	}

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate openapi document: %w", err)
	}

	return legacyrouter.NewRouter(doc)
}

// OpenAPIValidationMiddleware 按 OpenAPI 文档校验 /api/v1 请求
//
// 认证接口直接透传（由上游身份服务定义其契约），
// 文档外的路径交给后续路由返回 404。
func OpenAPIValidationMiddleware(router routers.Router) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/v1/") ||
				strings.HasPrefix(r.URL.Path, "/api/v1/auth/") {
				next.ServeHTTP(w, r)
				return
			}

			route, pathParams, err := router.FindRoute(r)
			if err != nil {
				if errors.Is(err, routers.ErrPathNotFound) {
					writeValidationError(w, http.StatusNotFound, "unknown endpoint")
					return
				}
				if errors.Is(err, routers.ErrMethodNotAllowed) {
					writeValidationError(w, http.StatusMethodNotAllowed, "method not allowed")
					return
				}
				writeValidationError(w, http.StatusBadRequest, err.Error())
				return
			}

			input := &openapi3filter.RequestValidationInput{
				Request:    r,
				PathParams: pathParams,
				Route:      route,
				Options: &openapi3filter.Options{
					// 鉴权由 JWT 中间件负责
					AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
				},
			}
			if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
				var reqErr *openapi3filter.RequestError
				if errors.As(err, &reqErr) {
					writeValidationError(w, http.StatusBadRequest, reqErr.Error())
					return
				}
				writeValidationError(w, http.StatusBadRequest, err.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeValidationError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
