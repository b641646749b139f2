package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"entropy-gateway/internal/shared/model"
	"entropy-gateway/internal/shared/syncqueue"
)

// failingQueue 入队永远失败
type failingQueue struct {
	syncqueue.Queue
}

func (failingQueue) Enqueue(ctx context.Context, task *model.WriteTask) error {
	return errors.New("queue unavailable")
}

func testTask(id string) *model.WriteTask {
	return &model.WriteTask{
		ID:        id,
		Endpoint:  "/api/v1/chat/history",
		Payload:   []byte(`{}`),
		CreatedAt: time.Now().UTC(),
	}
}

func TestCountingQueue_TracksSuccessfulEnqueues(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_queued_writes_total"})
	q := countingQueue{Queue: syncqueue.NewMemQueue(), writes: counter}
	ctx := context.Background()

	if err := q.Enqueue(ctx, testTask("t1")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Enqueue(ctx, testTask("t2")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if got := testutil.ToFloat64(counter); got != 2 {
		t.Errorf("queued writes = %v, want 2", got)
	}

	// 入队失败不计数
	bad := countingQueue{Queue: failingQueue{}, writes: counter}
	if err := bad.Enqueue(ctx, testTask("t3")); err == nil {
		t.Fatal("expected enqueue error")
	}
	if got := testutil.ToFloat64(counter); got != 2 {
		t.Errorf("queued writes after failure = %v, want 2", got)
	}
}

// 只允许构造一次 Metrics：promauto 注册到默认 registry，重复注册会 panic
func TestRecordAICall(t *testing.T) {
	m := NewMetrics("testns")

	m.RecordAICall("review", 120*time.Millisecond, nil)
	m.RecordAICall("review", 80*time.Millisecond, nil)
	m.RecordAICall("enhance", 50*time.Millisecond, errors.New("model unavailable"))

	if got := testutil.ToFloat64(m.AICallsTotal.WithLabelValues("review", "ok")); got != 2 {
		t.Errorf("review ok calls = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.AICallsTotal.WithLabelValues("enhance", "error")); got != 1 {
		t.Errorf("enhance error calls = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.QueuedWrites); got != 0 {
		t.Errorf("queued writes = %v, want 0", got)
	}
}
