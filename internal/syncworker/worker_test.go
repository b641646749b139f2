package syncworker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entropy-gateway/internal/config"
	"entropy-gateway/internal/shared/eventbus"
	"entropy-gateway/internal/shared/model"
	"entropy-gateway/internal/shared/syncqueue"
)

// fakeGateway 记录重放请求的测试网关
type fakeGateway struct {
	mu       sync.Mutex
	bodies   []string
	paths    []string
	failing  bool
	received chan struct{}
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{received: make(chan struct{}, 16)}
}

func (g *fakeGateway) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		g.mu.Lock()
		failing := g.failing
		if !failing {
			g.bodies = append(g.bodies, string(body))
			g.paths = append(g.paths, r.URL.Path)
		}
		g.mu.Unlock()

		if failing {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
		select {
		case g.received <- struct{}{}:
		default:
		}
	}
}

func (g *fakeGateway) setFailing(failing bool) {
	g.mu.Lock()
	g.failing = failing
	g.mu.Unlock()
}

func (g *fakeGateway) recordedBodies() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.bodies...)
}

func seedTask(t *testing.T, q syncqueue.Queue, id, payload string) {
	t.Helper()
	err := q.Enqueue(context.Background(), &model.WriteTask{
		ID:        id,
		Endpoint:  "/api/v1/chat/history",
		Payload:   json.RawMessage(payload),
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func TestDrain_ReplaysInOrder(t *testing.T) {
	gw := newFakeGateway()
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	queue := syncqueue.NewMemQueue()
	seedTask(t, queue, "task-1", `{"seq":1}`)
	seedTask(t, queue, "task-2", `{"seq":2}`)
	seedTask(t, queue, "task-3", `{"seq":3}`)

	w := NewWorker(queue, eventbus.NewMemEventBus(), config.WorkerConfig{GatewayURL: srv.URL})

	drained := w.Drain(context.Background())
	assert.Equal(t, 3, drained)
	assert.Equal(t, []string{`{"seq":1}`, `{"seq":2}`, `{"seq":3}`}, gw.recordedBodies())

	n, err := queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDrain_FailedTaskStaysQueued(t *testing.T) {
	gw := newFakeGateway()
	gw.setFailing(true)
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	queue := syncqueue.NewMemQueue()
	seedTask(t, queue, "task-1", `{"seq":1}`)

	w := NewWorker(queue, eventbus.NewMemEventBus(), config.WorkerConfig{GatewayURL: srv.URL})

	assert.Zero(t, w.Drain(context.Background()))

	pending, err := queue.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)

	// 网关恢复后下一次排空成功
	gw.setFailing(false)
	assert.Equal(t, 1, w.Drain(context.Background()))
}

func TestDrain_DropsAfterMaxAttempts(t *testing.T) {
	gw := newFakeGateway()
	gw.setFailing(true)
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	queue := syncqueue.NewMemQueue()
	seedTask(t, queue, "task-1", `{}`)

	w := NewWorker(queue, eventbus.NewMemEventBus(), config.WorkerConfig{
		GatewayURL:  srv.URL,
		MaxAttempts: 2,
	})

	w.Drain(context.Background())
	w.Drain(context.Background())

	n, err := queue.Len(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "task should be dropped after exceeding attempt cap")
}

func TestRun_ReactsToSyncEvent(t *testing.T) {
	gw := newFakeGateway()
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	queue := syncqueue.NewMemQueue()
	bus := eventbus.NewMemEventBus()

	w := NewWorker(queue, bus, config.WorkerConfig{
		GatewayURL:    srv.URL,
		DrainInterval: config.Duration(time.Hour), // 只靠事件触发
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// 等订阅建立后再入队、发事件
	time.Sleep(50 * time.Millisecond)
	seedTask(t, queue, "task-1", `{"queued":true}`)

	// 未识别的 tag 被忽略
	require.NoError(t, bus.PublishSync(ctx, &eventbus.SyncEvent{Tag: "sync-something-else", Source: "test"}))
	require.NoError(t, bus.PublishSync(ctx, &eventbus.SyncEvent{Tag: eventbus.TagChatHistorySync, Source: "test"}))

	select {
	case <-gw.received:
	case <-time.After(2 * time.Second):
		t.Fatal("sync event did not trigger a drain")
	}

	assert.Equal(t, []string{`{"queued":true}`}, gw.recordedBodies())
}
