// Package respcache 响应缓存 mock 实现
package respcache

import (
	"context"
	"sync"
)

// ============================================================================
// MemStore - 内存响应缓存（用于测试）
// ============================================================================

// MemStore 内存版响应缓存
type MemStore struct {
	mu     sync.RWMutex
	caches map[string]map[string]*Response

	// 调用计数（用于测试断言）
	GetCalls int
	PutCalls int
}

// NewMemStore 创建内存响应缓存
func NewMemStore() *MemStore {
	return &MemStore{caches: make(map[string]map[string]*Response)}
}

func (s *MemStore) Get(ctx context.Context, cacheName, key string) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCalls++

	resp, ok := s.caches[cacheName][key]
	if !ok {
		return nil, ErrNotFound
	}
	return resp.Clone(), nil
}

func (s *MemStore) Put(ctx context.Context, cacheName, key string, resp *Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.PutCalls++

	if s.caches[cacheName] == nil {
		s.caches[cacheName] = make(map[string]*Response)
	}
	s.caches[cacheName][key] = resp.Clone()
	return nil
}

func (s *MemStore) Delete(ctx context.Context, cacheName, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.caches[cacheName][key]; !ok {
		return ErrNotFound
	}
	delete(s.caches[cacheName], key)
	return nil
}

func (s *MemStore) Keys(ctx context.Context, cacheName string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.caches[cacheName]))
	for k := range s.caches[cacheName] {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *MemStore) Purge(ctx context.Context, keepNames []string) error {
	keep := make(map[string]bool, len(keepNames))
	for _, n := range keepNames {
		keep[n] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range s.caches {
		if !keep[name] {
			delete(s.caches, name)
		}
	}
	return nil
}

func (s *MemStore) Close() error {
	return nil
}

var _ Store = (*MemStore)(nil)
