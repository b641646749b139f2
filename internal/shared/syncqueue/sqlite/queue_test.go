package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"entropy-gateway/internal/shared/model"
	"entropy-gateway/internal/shared/syncqueue"
)

func testQueue(t *testing.T) *Queue {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc", filepath.Join(t.TempDir(), "sync.db"))
	q, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return q
}

func task(id, endpoint string) *model.WriteTask {
	return &model.WriteTask{
		ID:        id,
		Endpoint:  endpoint,
		Payload:   []byte(`{"userId":"u1","type":"review","content":"c"}`),
		CreatedAt: time.Now().UTC(),
	}
}

func TestQueue_EnqueueOrder(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := q.Enqueue(ctx, task(fmt.Sprintf("task-%d", i), "/api/v1/chat/history")); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	tasks, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(tasks) != 5 {
		t.Fatalf("expected 5 tasks, got %d", len(tasks))
	}
	for i, tk := range tasks {
		want := fmt.Sprintf("task-%d", i)
		if tk.ID != want {
			t.Errorf("tasks[%d].ID = %s, want %s", i, tk.ID, want)
		}
	}

	n, err := q.Len(ctx)
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 5 {
		t.Errorf("Len = %d, want 5", n)
	}
}

func TestQueue_PayloadRoundTrip(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	payload := `{"userId":"u1","type":"translate","content":"你好","response":"hello"}`
	tk := task("task-1", "/api/v1/chat/history")
	tk.Payload = []byte(payload)

	if err := q.Enqueue(ctx, tk); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	tasks, err := q.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(tasks))
	}
	if string(tasks[0].Payload) != payload {
		t.Errorf("Payload = %s, want %s", tasks[0].Payload, payload)
	}
	if tasks[0].Endpoint != "/api/v1/chat/history" {
		t.Errorf("Endpoint = %s", tasks[0].Endpoint)
	}
}

func TestQueue_Delete(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, task("task-1", "/api/v1/chat/history")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := q.Delete(ctx, "task-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	n, _ := q.Len(ctx)
	if n != 0 {
		t.Errorf("Len = %d after delete, want 0", n)
	}

	if err := q.Delete(ctx, "task-1"); err != syncqueue.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQueue_IncrementAttempts(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, task("task-1", "/api/v1/chat/history")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := q.IncrementAttempts(ctx, "task-1"); err != nil {
			t.Fatalf("IncrementAttempts failed: %v", err)
		}
	}

	tasks, _ := q.Pending(ctx)
	if len(tasks) != 1 || tasks[0].Attempts != 3 {
		t.Fatalf("expected attempts=3, got %+v", tasks)
	}

	if err := q.IncrementAttempts(ctx, "missing"); err != syncqueue.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQueue_SurvivesReopen(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc", filepath.Join(t.TempDir(), "sync.db"))
	ctx := context.Background()

	q, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := q.Enqueue(ctx, task("task-1", "/api/v1/chat/history")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	q.Close()

	q2, err := Open(dsn)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer q2.Close()

	tasks, err := q2.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "task-1" {
		t.Fatalf("expected task-1 to survive reopen, got %+v", tasks)
	}
}
