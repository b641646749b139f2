// Package chat 聊天历史领域 - HTTP 处理
package chat

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"entropy-gateway/internal/gateway/auth"
	"entropy-gateway/internal/shared/chatstore"
	"entropy-gateway/internal/shared/eventbus"
	"entropy-gateway/internal/shared/model"
)

// Handler 聊天历史 HTTP 处理器
type Handler struct {
	chats *chatstore.Client
	bus   eventbus.SyncEventBus
}

// NewHandler 创建聊天历史处理器
func NewHandler(chats *chatstore.Client, bus eventbus.SyncEventBus) *Handler {
	return &Handler{chats: chats, bus: bus}
}

// RegisterRoutes 注册聊天历史相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/chat/history", h.List)
	mux.HandleFunc("POST /api/v1/chat/history", h.Save)
	mux.HandleFunc("DELETE /api/v1/chat/history/{id}", h.Delete)
	mux.HandleFunc("POST /api/v1/chat/history/batch-delete", h.BatchDelete)
	mux.HandleFunc("POST /api/v1/sync", h.TriggerSync)
}

// ============================================================================
// 请求/响应类型
// ============================================================================

// SaveRequest 保存记录的请求体
type SaveRequest struct {
	UserID   string `json:"userId,omitempty"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	Response string `json:"response"`
}

// BatchDeleteRequest 批量删除的请求体
type BatchDeleteRequest struct {
	UserID string   `json:"userId,omitempty"`
	IDs    []string `json:"ids"`
}

// ============================================================================
// HTTP 处理函数
// ============================================================================

// List 查询历史记录
// GET /api/v1/chat/history?limit=50&type=review
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := resolveUserID(r, r.URL.Query().Get("userId"))

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	typ := model.ChatType(r.URL.Query().Get("type"))
	if typ != "" && !typ.Valid() {
		writeError(w, http.StatusBadRequest, "invalid chat type")
		return
	}

	// Cache-Control: no-cache 强制穿透查询缓存
	if bypassCache(r) {
		h.chats.InvalidateUser(userID)
	}

	var (
		records []*model.ChatRecord
		err     error
	)
	if typ != "" {
		records, err = h.chats.HistoryByType(r.Context(), userID, typ, limit)
	} else {
		records, err = h.chats.History(r.Context(), userID, limit)
	}
	if err != nil {
		log.Printf("[Chat] history query failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, "chat history unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

// Save 保存一条记录
// POST /api/v1/chat/history
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	typ := model.ChatType(req.Type)
	if !typ.Valid() {
		writeError(w, http.StatusBadRequest, "invalid chat type")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	userID := resolveUserID(r, req.UserID)
	chatID, err := h.chats.SaveChat(r.Context(), userID, typ, req.Content, req.Response)
	if err != nil {
		if !chatstore.Retriable(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("[Chat] save failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, "chat history unavailable")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": chatID})
}

// Delete 删除单条记录
// DELETE /api/v1/chat/history/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")
	userID := resolveUserID(r, r.URL.Query().Get("userId"))

	if err := h.chats.DeleteChat(r.Context(), chatID, userID); err != nil {
		if errors.Is(err, chatstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "chat record not found")
			return
		}
		log.Printf("[Chat] delete failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, "chat history unavailable")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// BatchDelete 批量删除
// POST /api/v1/chat/history/batch-delete
func (h *Handler) BatchDelete(w http.ResponseWriter, r *http.Request) {
	var req BatchDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids is required")
		return
	}

	userID := resolveUserID(r, req.UserID)
	if err := h.chats.BatchDeleteChats(r.Context(), req.IDs, userID); err != nil {
		log.Printf("[Chat] batch delete failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, "chat history unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"deleted": len(req.IDs)})
}

// TriggerSync 手动触发离线写任务重放
// POST /api/v1/sync
//
// 网络恢复后客户端调用这里，等价于后台同步注册的补发信号。
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	event := &eventbus.SyncEvent{
		Tag:       eventbus.TagChatHistorySync,
		Source:    "manual",
		Timestamp: time.Now().UTC(),
	}
	if err := h.bus.PublishSync(r.Context(), event); err != nil {
		log.Printf("[Chat] publish sync event failed: %v", err)
		writeError(w, http.StatusServiceUnavailable, "sync trigger unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync requested"})
}

// ============================================================================
// 辅助函数
// ============================================================================

// resolveUserID 确定请求所属用户：优先认证信息，其次请求参数
func resolveUserID(r *http.Request, fallback string) string {
	if user := auth.GetAuthUser(r.Context()); user != nil {
		return user.ID
	}
	if fallback != "" {
		return fallback
	}
	return "anonymous"
}

// bypassCache 判断是否要求绕过缓存
func bypassCache(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Cache-Control")), "no-cache")
}

// writeJSON 写入 JSON 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 写入错误响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
