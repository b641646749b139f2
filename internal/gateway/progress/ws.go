// Package progress 操作进度 WebSocket 实时推送
//
// Tracker 的每次状态变化都会广播给所有连接的客户端，
// 客户端据此渲染全局 loading 状态和进度条。
package progress

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"entropy-gateway/internal/shared/model"
	"entropy-gateway/internal/shared/opcache"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许跨域（开发环境）
	},
}

// Message WebSocket 消息
type Message struct {
	Type      string                  `json:"type"` // progress
	Data      model.OperationSnapshot `json:"data"`
	Timestamp time.Time               `json:"timestamp"`
}

// WSHandler 进度 WebSocket 处理器
type WSHandler struct {
	tracker *opcache.Tracker
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
	done    chan struct{}
}

// NewWSHandler 创建进度 WebSocket 处理器并挂接 Tracker 回调
func NewWSHandler(tracker *opcache.Tracker) *WSHandler {
	h := &WSHandler{
		tracker: tracker,
		clients: make(map[*websocket.Conn]bool),
		done:    make(chan struct{}),
	}
	tracker.OnChange(h.broadcastSnapshot)
	// 心跳协程
	go h.pingLoop()
	return h
}

// RegisterRoutes 注册 WebSocket 路由
func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/progress", h.HandleWebSocket)
}

// HandleWebSocket 处理 WebSocket 连接
//
// 路由: GET /ws/progress
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ProgressWS] Upgrade error: %v", err)
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mu.Unlock()

	log.Printf("[ProgressWS] Client connected, total: %d", total)

	// 新连接立即拿到当前状态
	h.sendToClient(conn, Message{
		Type:      "progress",
		Data:      h.tracker.Snapshot(),
		Timestamp: time.Now(),
	})

	// 读取客户端消息（保持连接）
	go h.readPump(conn)
}

func (h *WSHandler) readPump(conn *websocket.Conn) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		remaining := len(h.clients)
		h.mu.Unlock()
		conn.Close()
		log.Printf("[ProgressWS] Client disconnected, remaining: %d", remaining)
	}()

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ProgressWS] Read error: %v", err)
			}
			break
		}
	}
}

func (h *WSHandler) sendToClient(conn *websocket.Conn, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ProgressWS] Marshal error: %v", err)
		return
	}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[ProgressWS] Write error: %v", err)
	}
}

// broadcastSnapshot Tracker 状态变化回调
func (h *WSHandler) broadcastSnapshot(snap model.OperationSnapshot) {
	data, err := json.Marshal(Message{
		Type:      "progress",
		Data:      snap,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Printf("[ProgressWS] Marshal error: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.clients {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("[ProgressWS] Broadcast error: %v", err)
		}
	}
}

func (h *WSHandler) pingLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.mu.RLock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					log.Printf("[ProgressWS] Ping error: %v", err)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Close 停止心跳协程
func (h *WSHandler) Close() {
	close(h.done)
}
