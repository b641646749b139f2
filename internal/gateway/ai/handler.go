// Package ai 模型操作的 HTTP 处理
package ai

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"entropy-gateway/internal/gateway/auth"
	"entropy-gateway/internal/shared/chatstore"
	"entropy-gateway/internal/shared/eventbus"
	"entropy-gateway/internal/shared/model"
	"entropy-gateway/internal/shared/opcache"
	"entropy-gateway/internal/shared/syncqueue"
)

// Observer 模型调用完成回调（操作名、耗时、错误），用于指标上报
type Observer func(operation string, dur time.Duration, err error)

// Handler 模型操作 HTTP 处理器
type Handler struct {
	completer Completer
	chats     *chatstore.Client
	queue     syncqueue.Queue
	bus       eventbus.SyncEventBus
	cache     *opcache.Cache[string]
	tracker   *opcache.Tracker
	observe   Observer
}

// NewHandler 创建模型操作处理器
func NewHandler(completer Completer, chats *chatstore.Client, queue syncqueue.Queue, bus eventbus.SyncEventBus, cache *opcache.Cache[string], tracker *opcache.Tracker) *Handler {
	return &Handler{
		completer: completer,
		chats:     chats,
		queue:     queue,
		bus:       bus,
		cache:     cache,
		tracker:   tracker,
	}
}

// SetObserver 设置模型调用完成回调；缓存命中不触发
func (h *Handler) SetObserver(fn Observer) {
	h.observe = fn
}

// RegisterRoutes 注册模型操作路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/ai/review", h.Review)
	mux.HandleFunc("POST /api/v1/ai/enhance", h.Enhance)
	mux.HandleFunc("POST /api/v1/ai/translate", h.Translate)
	mux.HandleFunc("POST /api/v1/ai/snapshot", h.Snapshot)
}

// ============================================================================
// 请求/响应类型
// ============================================================================

// ReviewRequest 代码审查请求体
type ReviewRequest struct {
	UserID   string `json:"userId,omitempty"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

// EnhanceRequest 代码增强请求体
type EnhanceRequest struct {
	UserID       string   `json:"userId,omitempty"`
	Code         string   `json:"code"`
	Language     string   `json:"language"`
	Enhancements []string `json:"enhancements"`
}

// TranslateRequest 代码翻译请求体
type TranslateRequest struct {
	UserID         string `json:"userId,omitempty"`
	Code           string `json:"code"`
	SourceLanguage string `json:"sourceLanguage"`
	TargetLanguage string `json:"targetLanguage"`
}

// SnapshotRequest 快照描述请求体
type SnapshotRequest struct {
	UserID   string `json:"userId,omitempty"`
	Code     string `json:"code"`
	Language string `json:"language"`
	Title    string `json:"title,omitempty"`
}

// Response 模型操作响应体
type Response struct {
	Result string `json:"result"`
	ChatID string `json:"chatId,omitempty"`
	Queued bool   `json:"queued,omitempty"`
}

// ============================================================================
// HTTP 处理函数
// ============================================================================

// Review 代码审查
// POST /api/v1/ai/review
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if req.Language == "" {
		writeError(w, http.StatusBadRequest, "language is required")
		return
	}

	key := opcache.Key("review", req.Language, digest(req.Code))
	h.run(w, r, runSpec{
		key:      key,
		message:  "Generating code review...",
		userID:   resolveUserID(r, req.UserID),
		chatType: model.ChatTypeReview,
		content:  req.Code,
		prompt:   BuildReviewPrompt(req.Code, req.Language),
		opts:     Options{Temperature: TemperatureReview},
	})
}

// Enhance 代码增强
// POST /api/v1/ai/enhance
func (h *Handler) Enhance(w http.ResponseWriter, r *http.Request) {
	var req EnhanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if req.Language == "" {
		writeError(w, http.StatusBadRequest, "language is required")
		return
	}
	if len(req.Enhancements) == 0 {
		writeError(w, http.StatusBadRequest, "enhancements is required")
		return
	}

	key := opcache.Key("enhance", req.Language, req.Enhancements, digest(req.Code))
	h.run(w, r, runSpec{
		key:       key,
		message:   "Enhancing code...",
		userID:    resolveUserID(r, req.UserID),
		chatType:  model.ChatTypeEnhance,
		content:   req.Code,
		prompt:    BuildEnhancePrompt(req.Code, req.Language, req.Enhancements),
		opts:      Options{Temperature: TemperatureEnhance},
		codeOnly:  true,
	})
}

// Translate 代码翻译
// POST /api/v1/ai/translate
func (h *Handler) Translate(w http.ResponseWriter, r *http.Request) {
	var req TranslateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if req.SourceLanguage == "" || req.TargetLanguage == "" {
		writeError(w, http.StatusBadRequest, "sourceLanguage and targetLanguage are required")
		return
	}

	key := opcache.Key("translate", req.SourceLanguage, req.TargetLanguage, digest(req.Code))
	h.run(w, r, runSpec{
		key:       key,
		message:   "Translating code...",
		userID:    resolveUserID(r, req.UserID),
		chatType:  model.ChatTypeTranslate,
		content:   req.Code,
		prompt:    BuildTranslatePrompt(req.Code, req.SourceLanguage, req.TargetLanguage),
		opts:      Options{Temperature: TemperatureTranslate},
		codeOnly:  true,
	})
}

// Snapshot 快照描述
// POST /api/v1/ai/snapshot
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	var req SnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	if req.Language == "" {
		writeError(w, http.StatusBadRequest, "language is required")
		return
	}

	key := opcache.Key("snapshot", req.Language, req.Title, digest(req.Code))
	h.run(w, r, runSpec{
		key:      key,
		message:  "Analyzing snapshot...",
		userID:   resolveUserID(r, req.UserID),
		chatType: model.ChatTypeSnapshot,
		content:  req.Code,
		prompt:   BuildSnapshotPrompt(req.Code, req.Language, req.Title),
		opts:     Options{Temperature: TemperatureSnapshot},
	})
}

// ============================================================================
// 公共执行路径
// ============================================================================

type runSpec struct {
	key      string
	message  string
	userID   string
	chatType model.ChatType
	content  string
	prompt   string
	opts     Options
	codeOnly bool // 纯代码响应，剥掉 Markdown 围栏
}

// run 执行一次模型操作：缓存包装 → 保存历史 → 响应
func (h *Handler) run(w http.ResponseWriter, r *http.Request, spec runSpec) {
	// Cache-Control: no-cache 强制绕过结果缓存
	if bypassCache(r) {
		h.cache.Delete(spec.key)
	}

	result, err := opcache.Do(r.Context(), h.cache, h.tracker, spec.key, spec.message, 0, 0,
		func(ctx context.Context) (string, error) {
			start := time.Now()
			text, err := h.completer.Complete(ctx, spec.prompt, spec.opts)
			if h.observe != nil {
				h.observe(string(spec.chatType), time.Since(start), err)
			}
			if err != nil {
				return "", err
			}
			if spec.codeOnly {
				text = StripCodeFence(text)
			}
			return text, nil
		})
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, opcache.ErrTimedOut) {
			status = http.StatusGatewayTimeout
		}
		log.Printf("[AI] %s failed: %v", spec.key, err)
		writeError(w, status, err.Error())
		return
	}

	// 保存历史；瞬时故障落入离线队列，结果照常返回
	chatID, saveErr := h.chats.SaveChat(r.Context(), spec.userID, spec.chatType, spec.content, result)
	if saveErr == nil {
		writeJSON(w, http.StatusOK, Response{Result: result, ChatID: chatID})
		return
	}

	if chatstore.Retriable(saveErr) {
		if h.enqueue(r, spec, result) {
			writeJSON(w, http.StatusAccepted, Response{Result: result, Queued: true})
			return
		}
	}

	// 保存彻底失败也不吞掉模型结果
	log.Printf("[AI] save chat failed: %v", saveErr)
	writeJSON(w, http.StatusOK, Response{Result: result})
}

// enqueue 把失败的写入转成离线任务并广播同步事件
func (h *Handler) enqueue(r *http.Request, spec runSpec, result string) bool {
	payload, err := json.Marshal(map[string]string{
		"userId":   spec.userID,
		"type":     string(spec.chatType),
		"content":  spec.content,
		"response": result,
	})
	if err != nil {
		return false
	}

	task := &model.WriteTask{
		ID:        generateID("task"),
		Endpoint:  "/api/v1/chat/history",
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.queue.Enqueue(r.Context(), task); err != nil {
		log.Printf("[AI] enqueue write task failed: %v", err)
		return false
	}
	log.Printf("[AI] save deferred to sync queue: task=%s user=%s", task.ID, spec.userID)

	event := &eventbus.SyncEvent{
		Tag:       eventbus.TagChatHistorySync,
		Source:    "gateway",
		Timestamp: time.Now().UTC(),
	}
	if err := h.bus.PublishSync(r.Context(), event); err != nil {
		// worker 的兜底轮询最终会处理，广播失败只降低及时性
		log.Printf("[AI] publish sync event failed: %v", err)
	}
	return true
}

// ============================================================================
// 辅助函数
// ============================================================================

// resolveUserID 确定请求所属用户：优先认证信息，其次请求体
func resolveUserID(r *http.Request, bodyUserID string) string {
	if user := auth.GetAuthUser(r.Context()); user != nil {
		return user.ID
	}
	if bodyUserID != "" {
		return bodyUserID
	}
	return "anonymous"
}

// bypassCache 判断是否要求绕过缓存
func bypassCache(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Cache-Control")), "no-cache")
}

// digest 代码内容摘要，缓存键不直接背整段代码
func digest(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:8])
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

// generateID 生成带前缀的随机 ID
// 格式：prefix-xxxxxxxxxxxx（prefix + 12 字符 hex）
func generateID(prefix string) string {
	b := make([]byte, 6)
	rand.Read(b)
	return prefix + "-" + hex.EncodeToString(b)
}
