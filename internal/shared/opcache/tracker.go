// Package opcache 进行中操作跟踪
package opcache

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"sync"
	"time"

	"entropy-gateway/internal/shared/model"
)

// DefaultSafetyTimeout 全局安全超时
//
// 加载状态持续超过该时长时强制清空全部进行中操作，
// 防止某个操作忘记调用 Stop 导致 UI 永久停留在加载态。
const DefaultSafetyTimeout = 10 * time.Second

// Operation 一个进行中的异步操作
type Operation struct {
	ID        string
	Message   string
	StartedAt time.Time
	Progress  int
}

// Tracker 进行中操作注册表
//
// 聚合加载标志派生自"是否存在进行中操作"，聚合进度为所有
// 进行中操作进度的算术平均；集合清空时进度强制为 100。
// 错误路径不直接修改加载状态，只保证通过 Stop 清除。
type Tracker struct {
	mu  sync.Mutex
	ops map[string]*Operation

	progress int

	safetyTimeout time.Duration
	safetyTimer   *time.Timer
	closed        bool

	// onChange 状态变化回调（用于 WebSocket 推送），可为 nil。
	// 在锁外调用，回调内允许再次访问 Tracker。
	onChange func(model.OperationSnapshot)
}

// NewTracker 创建操作跟踪器
//
// safetyTimeout <= 0 时使用 DefaultSafetyTimeout。
func NewTracker(safetyTimeout time.Duration) *Tracker {
	if safetyTimeout <= 0 {
		safetyTimeout = DefaultSafetyTimeout
	}
	return &Tracker{
		ops:           make(map[string]*Operation),
		progress:      100,
		safetyTimeout: safetyTimeout,
	}
}

// OnChange 注册状态变化回调
func (t *Tracker) OnChange(fn func(model.OperationSnapshot)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// Start 注册一个进行中操作，返回操作 ID
//
// id 为空时自动生成。首个操作会把聚合加载标志翻转为 true、
// 聚合进度归零，并启动安全超时计时。
func (t *Tracker) Start(message, id string) string {
	if id == "" {
		id = generateOpID()
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return id
	}
	t.ops[id] = &Operation{
		ID:        id,
		Message:   message,
		StartedAt: time.Now(),
		Progress:  0,
	}
	t.progress = 0
	if t.safetyTimer == nil {
		t.safetyTimer = time.AfterFunc(t.safetyTimeout, t.forceClear)
	}
	snap := t.snapshotLocked()
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	return id
}

// UpdateProgress 更新指定操作的进度
//
// progress 被钳制到 [0,100]；聚合进度重新计算为所有进行中
// 操作进度的算术平均。未注册的 id 被忽略。
func (t *Tracker) UpdateProgress(id string, progress int) {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	t.mu.Lock()
	op, ok := t.ops[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	op.Progress = progress

	sum := 0
	for _, o := range t.ops {
		sum += o.Progress
	}
	t.progress = sum / len(t.ops)

	snap := t.snapshotLocked()
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
}

// Stop 移除指定操作；id 为空时移除全部
//
// 集合变空时聚合加载标志翻转为 false、进度强制为 100，
// 并停止安全超时计时。
func (t *Tracker) Stop(id string) {
	t.mu.Lock()
	if id == "" {
		t.ops = make(map[string]*Operation)
	} else {
		delete(t.ops, id)
	}
	if len(t.ops) == 0 {
		t.progress = 100
		if t.safetyTimer != nil {
			t.safetyTimer.Stop()
			t.safetyTimer = nil
		}
	}
	snap := t.snapshotLocked()
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
}

// forceClear 安全超时触发：强制清空全部进行中操作
func (t *Tracker) forceClear() {
	t.mu.Lock()
	if len(t.ops) == 0 {
		t.mu.Unlock()
		return
	}
	log.Printf("[OpCache] Force clearing %d hanging operation(s) after %s safety timeout", len(t.ops), t.safetyTimeout)
	t.ops = make(map[string]*Operation)
	t.progress = 100
	t.safetyTimer = nil
	snap := t.snapshotLocked()
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
}

// Loading 返回聚合加载标志：当且仅当存在进行中操作时为 true
func (t *Tracker) Loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ops) > 0
}

// Progress 返回聚合进度（0-100）
func (t *Tracker) Progress() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// Pending 返回进行中操作数量
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ops)
}

// Snapshot 返回当前聚合状态快照
func (t *Tracker) Snapshot() model.OperationSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// snapshotLocked 构造快照，调用方持有锁
//
// Message 取最早启动的进行中操作的消息。
func (t *Tracker) snapshotLocked() model.OperationSnapshot {
	snap := model.OperationSnapshot{
		Loading:  len(t.ops) > 0,
		Progress: t.progress,
		Pending:  len(t.ops),
		At:       time.Now(),
	}
	var earliest time.Time
	for _, op := range t.ops {
		if earliest.IsZero() || op.StartedAt.Before(earliest) {
			earliest = op.StartedAt
			snap.Message = op.Message
		}
	}
	return snap
}

// Close 确定性释放：清空操作集合并停止计时器
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.ops = make(map[string]*Operation)
	t.progress = 100
	if t.safetyTimer != nil {
		t.safetyTimer.Stop()
		t.safetyTimer = nil
	}
}

// generateOpID 生成操作 ID
// 格式：op-xxxxxxxxxxxx（12 字符 hex）
func generateOpID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return "op-" + hex.EncodeToString(b)
}
