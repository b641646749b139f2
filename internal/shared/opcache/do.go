// Package opcache 缓存包装器
package opcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// 默认超时和 TTL
const (
	// DefaultTimeout 被包装调用的默认超时
	DefaultTimeout = 30 * time.Second

	// DefaultTTL 缓存结果的默认有效期
	DefaultTTL = 5 * time.Minute
)

// ErrTimedOut 被包装调用超时
//
// 与底层调用自身的失败区分开：超时用于区分"慢"和"挂"的 UX，
// 底层错误原样向上传播。
var ErrTimedOut = errors.New("opcache: operation timed out")

// Key 构造缓存键：前缀 + 参数的 JSON 序列化
func Key(prefix string, args ...any) string {
	if len(args) == 0 {
		return prefix
	}
	data, err := json.Marshal(args)
	if err != nil {
		return prefix
	}
	return prefix + "-" + string(data)
}

// Do 缓存包装器
//
// 命中时直接返回缓存值，不注册进行中操作；未命中时注册操作、
// 在超时上下文里执行 fn、成功后写缓存，无论成败都停止操作。
//
// 取消通过 context 向 fn 传播；fn 不响应取消时 Do 仍在截止时间
// 返回 ErrTimedOut，迟到的结果被丢弃（受正常调用时长约束的泄漏）。
func Do[T any](ctx context.Context, c *Cache[T], tr *Tracker, key, message string, ttl, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	opID := tr.Start(message, "")
	defer tr.Stop(opID)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	// 缓冲为 1：超时后 fn 跑完也不会阻塞在发送上
	done := make(chan result, 1)
	go func() {
		v, err := fn(callCtx)
		done <- result{value: v, err: err}
	}()

	var zero T
	select {
	case res := <-done:
		if res.err != nil {
			return zero, res.err
		}
		c.Set(key, res.value, ttl)
		return res.value, nil
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%w after %s", ErrTimedOut, timeout)
		}
		return zero, callCtx.Err()
	}
}
