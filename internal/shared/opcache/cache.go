// Package opcache 进程内操作缓存
//
// 提供异步操作结果的记忆化缓存和进行中操作的加载状态跟踪：
//   - Cache[T]：带 TTL 和 LRU 淘汰的有界内存缓存
//   - Tracker：进行中操作注册表，派生聚合加载状态和进度
//   - Do：缓存包装器（命中直接返回，未命中执行并跟踪进度）
//
// 设计原则：显式构造 + 依赖注入，不使用包级全局状态，
// 生命周期由调用方通过 Close 控制。
package opcache

import (
	"regexp"
	"sync"
	"time"
)

// DefaultCapacity 缓存默认容量上限
const DefaultCapacity = 100

// entry 单条缓存项
type entry[T any] struct {
	value        T
	createdAt    time.Time
	lastAccessed time.Time
	ttl          time.Duration // 0 表示永不过期
}

// expired 判断缓存项是否已过期
func (e *entry[T]) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.createdAt) > e.ttl
}

// Stats 缓存统计
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
}

// Cache 有界 TTL + LRU 内存缓存
//
// 读取时惰性删除过期项；容量满时淘汰 lastAccessed 最旧的一项
// （线性扫描，容量默认 100，扫描成本可忽略）。
// 并发安全，所有方法可在多个 goroutine 中调用。
type Cache[T any] struct {
	mu       sync.Mutex
	entries  map[string]*entry[T]
	capacity int

	hits      uint64
	misses    uint64
	evictions uint64

	// now 可注入时钟，便于测试 TTL 行为
	now func() time.Time

	lastSweep time.Time
}

// New 创建缓存实例，capacity <= 0 时使用 DefaultCapacity
func New[T any](capacity int) *Cache[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache[T]{
		entries:  make(map[string]*entry[T]),
		capacity: capacity,
		now:      time.Now,
	}
}

// Get 读取缓存项
//
// 不存在或已过期返回零值和 false；过期项作为读取的副作用被删除。
// 命中会刷新 lastAccessed，使该项在 LRU 淘汰中排到最后。
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}

	now := c.now()
	if e.expired(now) {
		delete(c.entries, key)
		c.misses++
		return zero, false
	}

	e.lastAccessed = now
	c.hits++
	return e.value, true
}

// Set 写入缓存项，已存在则整体覆盖（值 + 时间戳）
//
// 容量已满且 key 为新键时，先淘汰 lastAccessed 最旧的一项。
func (c *Cache[T]) Set(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.evictOldest()
	}
	c.entries[key] = &entry[T]{
		value:        value,
		createdAt:    now,
		lastAccessed: now,
		ttl:          ttl,
	}
}

// evictOldest 淘汰 lastAccessed 最旧的一项，调用方持有锁
func (c *Cache[T]) evictOldest() {
	var oldestKey string
	var oldestAccess time.Time
	first := true
	for key, e := range c.entries {
		if first || e.lastAccessed.Before(oldestAccess) {
			oldestKey = key
			oldestAccess = e.lastAccessed
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

// Delete 删除指定缓存项
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear 批量失效
//
// pattern 为空时清空全部；否则按正则匹配键删除（用于"该用户的所有
// 查询结果"这类前缀失效）。pattern 编译失败返回错误且不做任何删除。
func (c *Cache[T]) Clear(pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if pattern == "" {
		c.entries = make(map[string]*entry[T])
		return nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	for key := range c.entries {
		if re.MatchString(key) {
			delete(c.entries, key)
		}
	}
	return nil
}

// Len 返回当前缓存项数量（含未被惰性删除的过期项）
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Sweep 主动清理过期项
//
// 距上次清理不足 minInterval 时跳过（机会式清理，避免频繁全表扫描）。
func (c *Cache[T]) Sweep(minInterval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) < minInterval {
		return
	}
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
		}
	}
	c.lastSweep = now
}

// Stats 返回缓存统计快照
func (c *Cache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.entries),
	}
}
