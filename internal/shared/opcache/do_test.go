package opcache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// TestDo_MemoizesResult 验证命中缓存时不重复执行也不注册操作
func TestDo_MemoizesResult(t *testing.T) {
	c := New[string](10)
	tr := NewTracker(0)
	defer tr.Close()

	var calls int32
	fn := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "result", nil
	}

	key := Key("review", "func main() {}", "go")
	ctx := context.Background()

	v1, err := Do(ctx, c, tr, key, "审查代码...", 5*time.Minute, time.Second, fn)
	if err != nil || v1 != "result" {
		t.Fatalf("first Do = (%q, %v)", v1, err)
	}

	v2, err := Do(ctx, c, tr, key, "审查代码...", 5*time.Minute, time.Second, fn)
	if err != nil || v2 != "result" {
		t.Fatalf("second Do = (%q, %v)", v2, err)
	}

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("fn invoked %d times, want exactly 1", got)
	}
	if tr.Loading() {
		t.Fatal("no operation should remain pending")
	}
}

// TestDo_DistinctArgsDistinctKeys 验证不同参数产生不同缓存键
func TestDo_DistinctArgsDistinctKeys(t *testing.T) {
	if Key("review", "a") == Key("review", "b") {
		t.Fatal("different args must yield different keys")
	}
	if Key("review") != "review" {
		t.Fatalf("Key without args = %q, want bare prefix", Key("review"))
	}
}

// TestDo_Timeout 验证超时返回 ErrTimedOut 且操作被停止
func TestDo_Timeout(t *testing.T) {
	c := New[string](10)
	tr := NewTracker(0)
	defer tr.Close()

	fn := func(ctx context.Context) (string, error) {
		select {
		case <-time.After(5 * time.Second):
			return "late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	_, err := Do(context.Background(), c, tr, "slow", "慢操作", time.Minute, 20*time.Millisecond, fn)
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("err = %v, want ErrTimedOut", err)
	}
	if tr.Loading() {
		t.Fatal("operation must be stopped after timeout")
	}
	if _, ok := c.Get("slow"); ok {
		t.Fatal("timed out result must not be cached")
	}
}

// TestDo_ErrorPropagates 验证底层错误原样传播且不写缓存
func TestDo_ErrorPropagates(t *testing.T) {
	c := New[string](10)
	tr := NewTracker(0)
	defer tr.Close()

	sentinel := errors.New("upstream failed")
	fn := func(ctx context.Context) (string, error) {
		return "", sentinel
	}

	_, err := Do(context.Background(), c, tr, "k", "失败操作", time.Minute, time.Second, fn)
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want sentinel", err)
	}
	if tr.Loading() {
		t.Fatal("operation must be stopped after failure")
	}
	if _, ok := c.Get("k"); ok {
		t.Fatal("failed result must not be cached")
	}
}

// TestDo_CallerCancel 验证调用方取消原样返回 context.Canceled
func TestDo_CallerCancel(t *testing.T) {
	c := New[string](10)
	tr := NewTracker(0)
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	fn := func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	_, err := Do(ctx, c, tr, "k", "可取消操作", time.Minute, time.Minute, fn)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
