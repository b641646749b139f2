package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/containerd/errdefs"

	"entropy-gateway/internal/shared/chatstore"
	"entropy-gateway/internal/shared/eventbus"
	"entropy-gateway/internal/shared/model"
)

type chatEnv struct {
	store *chatstore.MemStore
	chats *chatstore.Client
	bus   *eventbus.MemEventBus
	mux   *http.ServeMux
}

func newChatEnv(t *testing.T) *chatEnv {
	t.Helper()

	store := chatstore.NewMemStore()
	chats := chatstore.NewClient(store, chatstore.Options{
		MaxRetries:     2,
		RetryBaseDelay: time.Millisecond,
	})
	bus := eventbus.NewMemEventBus()

	mux := http.NewServeMux()
	NewHandler(chats, bus).RegisterRoutes(mux)

	return &chatEnv{store: store, chats: chats, bus: bus, mux: mux}
}

func (e *chatEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *chatEnv) seed(t *testing.T, userID string, typ model.ChatType, n int) []string {
	t.Helper()

	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := e.chats.SaveChat(context.Background(), userID, typ, fmt.Sprintf("content-%d", i), "resp")
		if err != nil {
			t.Fatalf("seed save: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func TestSaveAndList(t *testing.T) {
	env := newChatEnv(t)

	rec := env.do(t, "POST", "/api/v1/chat/history", SaveRequest{
		UserID: "u1", Type: "review", Content: "some code", Response: "the review",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("save status = %d body=%s", rec.Code, rec.Body)
	}
	var created map[string]string
	json.NewDecoder(rec.Body).Decode(&created)
	if created["id"] == "" {
		t.Fatal("expected record id")
	}

	rec = env.do(t, "GET", "/api/v1/chat/history?userId=u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listed struct {
		Records []*model.ChatRecord `json:"records"`
		Count   int                 `json:"count"`
	}
	json.NewDecoder(rec.Body).Decode(&listed)
	if listed.Count != 1 || listed.Records[0].Content != "some code" {
		t.Errorf("listed = %+v", listed)
	}
}

func TestList_TypeFilterAndLimit(t *testing.T) {
	env := newChatEnv(t)
	env.seed(t, "u1", model.ChatTypeReview, 3)
	env.seed(t, "u1", model.ChatTypeTranslate, 2)

	rec := env.do(t, "GET", "/api/v1/chat/history?userId=u1&type=translate", nil)
	var listed struct {
		Count int `json:"count"`
	}
	json.NewDecoder(rec.Body).Decode(&listed)
	if listed.Count != 2 {
		t.Errorf("type filter count = %d, want 2", listed.Count)
	}

	rec = env.do(t, "GET", "/api/v1/chat/history?userId=u1&limit=2", nil)
	json.NewDecoder(rec.Body).Decode(&listed)
	if listed.Count != 2 {
		t.Errorf("limit count = %d, want 2", listed.Count)
	}

	rec = env.do(t, "GET", "/api/v1/chat/history?userId=u1&type=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bogus type status = %d, want 400", rec.Code)
	}
	rec = env.do(t, "GET", "/api/v1/chat/history?userId=u1&limit=-1", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit status = %d, want 400", rec.Code)
	}
}

func TestList_NoCacheBypassesQueryCache(t *testing.T) {
	env := newChatEnv(t)
	env.seed(t, "u1", model.ChatTypeReview, 1)

	env.do(t, "GET", "/api/v1/chat/history?userId=u1", nil)
	env.do(t, "GET", "/api/v1/chat/history?userId=u1", nil)
	baseline := env.store.QueryCalls

	req := httptest.NewRequest("GET", "/api/v1/chat/history?userId=u1", nil)
	req.Header.Set("Cache-Control", "no-cache")
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)

	if env.store.QueryCalls != baseline+1 {
		t.Errorf("no-cache did not hit remote: calls %d -> %d", baseline, env.store.QueryCalls)
	}
}

func TestSave_ValidatesType(t *testing.T) {
	env := newChatEnv(t)

	rec := env.do(t, "POST", "/api/v1/chat/history", SaveRequest{
		UserID: "u1", Type: "bogus", Content: "x",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSave_StoreDown(t *testing.T) {
	env := newChatEnv(t)
	netErr := errors.Join(errdefs.ErrUnavailable, errors.New("down"))
	env.store.FailNext = []error{netErr, netErr}

	rec := env.do(t, "POST", "/api/v1/chat/history", SaveRequest{
		UserID: "u1", Type: "review", Content: "x",
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestDelete(t *testing.T) {
	env := newChatEnv(t)
	ids := env.seed(t, "u1", model.ChatTypeReview, 1)

	rec := env.do(t, "DELETE", "/api/v1/chat/history/"+ids[0]+"?userId=u1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}

	rec = env.do(t, "DELETE", "/api/v1/chat/history/"+ids[0]+"?userId=u1", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestBatchDelete(t *testing.T) {
	env := newChatEnv(t)
	ids := env.seed(t, "u1", model.ChatTypeReview, 5)

	rec := env.do(t, "POST", "/api/v1/chat/history/batch-delete", BatchDeleteRequest{
		UserID: "u1", IDs: ids,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body)
	}
	if env.store.Len() != 0 {
		t.Errorf("store has %d records after batch delete", env.store.Len())
	}

	rec = env.do(t, "POST", "/api/v1/chat/history/batch-delete", BatchDeleteRequest{UserID: "u1"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty ids status = %d, want 400", rec.Code)
	}
}

func TestTriggerSync(t *testing.T) {
	env := newChatEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _ := env.bus.SubscribeSync(ctx)

	rec := env.do(t, "POST", "/api/v1/sync", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	select {
	case ev := <-events:
		if ev.Tag != eventbus.TagChatHistorySync || ev.Source != "manual" {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Error("expected sync event")
	}
}
