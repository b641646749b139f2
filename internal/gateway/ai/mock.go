// Package ai Completer mock 实现
package ai

import (
	"context"
	"sync"
)

// MockCompleter 可编排的 Completer 实现（用于测试）
type MockCompleter struct {
	mu sync.Mutex

	// Response 固定返回的文本
	Response string
	// FailNext 预置的错误序列，按调用顺序消费
	FailNext []error

	// 调用记录（用于测试断言）
	Calls   int
	Prompts []string
}

func (m *MockCompleter) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	m.Prompts = append(m.Prompts, prompt)

	if len(m.FailNext) > 0 {
		err := m.FailNext[0]
		m.FailNext = m.FailNext[1:]
		if err != nil {
			return "", err
		}
	}
	if m.Response != "" {
		return m.Response, nil
	}
	return "mock completion", nil
}

var _ Completer = (*MockCompleter)(nil)
