package chatstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"entropy-gateway/internal/shared/model"

	"github.com/containerd/errdefs"
)

// testClient 创建重试间隔极短的测试客户端
func testClient(store Store) *Client {
	return NewClient(store, Options{RetryBaseDelay: time.Millisecond})
}

var errNetwork = errors.Join(errdefs.ErrUnavailable, errors.New("connection refused"))

// TestClient_RetryCeiling 验证持续失败的操作恰好尝试 MaxRetries 次后上抛最后错误
func TestClient_RetryCeiling(t *testing.T) {
	store := NewMemStore()
	store.FailNext = []error{errNetwork, errNetwork, errNetwork, errNetwork}
	c := testClient(store)

	_, err := c.SaveChat(context.Background(), "u1", model.ChatTypeReview, "in", "out")
	if !errors.Is(err, errdefs.ErrUnavailable) {
		t.Fatalf("err = %v, want last underlying error", err)
	}
	if store.InsertCalls != MaxRetries {
		t.Fatalf("InsertCalls = %d, want exactly %d", store.InsertCalls, MaxRetries)
	}
	// 首次之后每次重试前都先尝试恢复连接
	if store.ReconnectCalls != MaxRetries-1 {
		t.Fatalf("ReconnectCalls = %d, want %d", store.ReconnectCalls, MaxRetries-1)
	}
}

// TestClient_SuccessOnSecondAttempt 验证第 k 次成功后不再继续尝试
func TestClient_SuccessOnSecondAttempt(t *testing.T) {
	store := NewMemStore()
	store.FailNext = []error{errNetwork}
	c := testClient(store)

	id, err := c.SaveChat(context.Background(), "u1", model.ChatTypeReview, "in", "out")
	if err != nil {
		t.Fatalf("SaveChat: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated record id")
	}
	if store.InsertCalls != 2 {
		t.Fatalf("InsertCalls = %d, want 2", store.InsertCalls)
	}
}

// TestClient_PermanentErrorNotRetried 验证 Permanent 错误立即上抛
func TestClient_PermanentErrorNotRetried(t *testing.T) {
	store := NewMemStore()
	permErr := errors.Join(errdefs.ErrPermissionDenied, errors.New("missing permission"))
	store.FailNext = []error{permErr}
	c := testClient(store)

	_, err := c.SaveChat(context.Background(), "u1", model.ChatTypeReview, "in", "out")
	if !errors.Is(err, errdefs.ErrPermissionDenied) {
		t.Fatalf("err = %v, want permission denied", err)
	}
	if store.InsertCalls != 1 {
		t.Fatalf("InsertCalls = %d, want 1 (no retry)", store.InsertCalls)
	}
}

// TestClient_QueryCached 验证相同查询在 TTL 内只访问远端一次
func TestClient_QueryCached(t *testing.T) {
	store := NewMemStore()
	c := testClient(store)
	ctx := context.Background()

	if _, err := c.SaveChat(ctx, "u1", model.ChatTypeReview, "in", "out"); err != nil {
		t.Fatalf("SaveChat: %v", err)
	}

	if _, err := c.History(ctx, "u1", 10); err != nil {
		t.Fatalf("History: %v", err)
	}
	if _, err := c.History(ctx, "u1", 10); err != nil {
		t.Fatalf("History (cached): %v", err)
	}
	if store.QueryCalls != 1 {
		t.Fatalf("QueryCalls = %d, want 1 (second call served from cache)", store.QueryCalls)
	}

	// 不同的窗口大小是不同的缓存键
	if _, err := c.History(ctx, "u1", 20); err != nil {
		t.Fatalf("History limit=20: %v", err)
	}
	if store.QueryCalls != 2 {
		t.Fatalf("QueryCalls = %d, want 2", store.QueryCalls)
	}
}

// TestClient_InvalidationOnWrite 验证写后首次读取必然访问远端
func TestClient_InvalidationOnWrite(t *testing.T) {
	store := NewMemStore()
	c := testClient(store)
	ctx := context.Background()

	id, err := c.SaveChat(ctx, "u1", model.ChatTypeReview, "first", "r1")
	if err != nil {
		t.Fatalf("SaveChat: %v", err)
	}

	// 填充多个缓存窗口
	c.History(ctx, "u1", 10)
	c.HistoryByType(ctx, "u1", model.ChatTypeReview, 10)
	queryCalls := store.QueryCalls

	// 保存新记录使 u1 全部缓存失效
	time.Sleep(2 * time.Millisecond) // 保证新记录时间戳更晚
	if _, err := c.SaveChat(ctx, "u1", model.ChatTypeEnhance, "second", "r2"); err != nil {
		t.Fatalf("SaveChat: %v", err)
	}

	records, err := c.History(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if store.QueryCalls != queryCalls+1 {
		t.Fatal("fetch after save must hit the remote store, not the cache")
	}
	// timestamp 降序：新记录排在最前
	if len(records) != 2 || records[0].Content != "second" {
		t.Fatalf("records = %+v, want newest first", records)
	}

	// 删除同样触发失效
	if err := c.DeleteChat(ctx, id, "u1"); err != nil {
		t.Fatalf("DeleteChat: %v", err)
	}
	before := store.QueryCalls
	if _, err := c.History(ctx, "u1", 10); err != nil {
		t.Fatalf("History: %v", err)
	}
	if store.QueryCalls != before+1 {
		t.Fatal("fetch after delete must hit the remote store")
	}
}

// TestClient_InvalidationScopedToUser 验证失效只影响写入用户
func TestClient_InvalidationScopedToUser(t *testing.T) {
	store := NewMemStore()
	c := testClient(store)
	ctx := context.Background()

	c.SaveChat(ctx, "u1", model.ChatTypeReview, "a", "r")
	c.SaveChat(ctx, "u2", model.ChatTypeReview, "b", "r")

	c.History(ctx, "u1", 10)
	c.History(ctx, "u2", 10)
	before := store.QueryCalls

	c.SaveChat(ctx, "u1", model.ChatTypeReview, "c", "r")

	// u2 的缓存仍然有效
	c.History(ctx, "u2", 10)
	if store.QueryCalls != before {
		t.Fatal("u2 cache must survive u1's write")
	}

	// u1 的缓存已失效
	c.History(ctx, "u1", 10)
	if store.QueryCalls != before+1 {
		t.Fatal("u1 cache must be invalidated by u1's write")
	}
}

// TestClient_BatchDeleteSplitsBatches 验证 1200 条删除拆成 500/500/200 三批顺序提交
func TestClient_BatchDeleteSplitsBatches(t *testing.T) {
	store := NewMemStore()
	c := testClient(store)
	ctx := context.Background()

	ids := make([]string, 1200)
	for i := range ids {
		ids[i] = fmt.Sprintf("chat-%04d", i)
	}

	if err := c.BatchDeleteChats(ctx, ids, "u1"); err != nil {
		t.Fatalf("BatchDeleteChats: %v", err)
	}

	want := []int{500, 500, 200}
	if len(store.BatchSizes) != len(want) {
		t.Fatalf("committed %d batches, want %d", len(store.BatchSizes), len(want))
	}
	for i, size := range want {
		if store.BatchSizes[i] != size {
			t.Fatalf("batch %d size = %d, want %d", i, store.BatchSizes[i], size)
		}
	}
}

// TestClient_HistoryByType 验证类型过滤走独立缓存键
func TestClient_HistoryByType(t *testing.T) {
	store := NewMemStore()
	c := testClient(store)
	ctx := context.Background()

	c.SaveChat(ctx, "u1", model.ChatTypeReview, "a", "r")
	time.Sleep(2 * time.Millisecond)
	c.SaveChat(ctx, "u1", model.ChatTypeTranslate, "b", "r")

	records, err := c.HistoryByType(ctx, "u1", model.ChatTypeTranslate, 10)
	if err != nil {
		t.Fatalf("HistoryByType: %v", err)
	}
	if len(records) != 1 || records[0].Type != model.ChatTypeTranslate {
		t.Fatalf("records = %+v, want single translate record", records)
	}
}
