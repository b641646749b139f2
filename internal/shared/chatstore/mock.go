// Package chatstore 提供存储层抽象
//
// mock.go 提供用于测试的内存实现，支持故障注入。
package chatstore

import (
	"context"
	"sort"
	"sync"

	"entropy-gateway/internal/shared/model"
)

// ============================================================================
// MemStore - 内存 Store 实现（用于测试）
// ============================================================================

// MemStore 内存存储，按接口语义实现查询排序和批量删除，
// 并记录调用情况供测试断言：
//   - QueryCalls / InsertCalls / ReconnectCalls：调用计数
//   - BatchSizes：每次 BatchDelete 收到的批大小
//   - FailNext：注入的错误，按调用顺序消费，nil 表示该次成功
type MemStore struct {
	mu      sync.Mutex
	records map[string]*model.ChatRecord

	QueryCalls     int
	InsertCalls    int
	DeleteCalls    int
	ReconnectCalls int
	BatchSizes     []int

	FailNext []error
}

// NewMemStore 创建内存存储实例
func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]*model.ChatRecord)}
}

// nextErr 消费一个注入错误，调用方持有锁
func (s *MemStore) nextErr() error {
	if len(s.FailNext) == 0 {
		return nil
	}
	err := s.FailNext[0]
	s.FailNext = s.FailNext[1:]
	return err
}

func (s *MemStore) Insert(ctx context.Context, rec *model.ChatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InsertCalls++
	if err := s.nextErr(); err != nil {
		return err
	}
	if _, exists := s.records[rec.ID]; exists {
		return ErrDuplicate
	}
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *MemStore) Query(ctx context.Context, f QueryFilter) ([]*model.ChatRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.QueryCalls++
	if err := s.nextErr(); err != nil {
		return nil, err
	}

	var out []*model.ChatRecord
	for _, rec := range s.records {
		if rec.UserID != f.UserID {
			continue
		}
		if f.Type != "" && rec.Type != f.Type {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	if out == nil {
		out = []*model.ChatRecord{}
	}
	return out, nil
}

func (s *MemStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DeleteCalls++
	if err := s.nextErr(); err != nil {
		return err
	}
	if _, exists := s.records[id]; !exists {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *MemStore) BatchDelete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BatchSizes = append(s.BatchSizes, len(ids))
	if err := s.nextErr(); err != nil {
		return err
	}
	for _, id := range ids {
		delete(s.records, id)
	}
	return nil
}

func (s *MemStore) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ReconnectCalls++
	return nil
}

func (s *MemStore) Close() error {
	return nil
}

// Len 返回当前记录数
func (s *MemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// 确保 MemStore 实现了 Store 接口
var _ Store = (*MemStore)(nil)
