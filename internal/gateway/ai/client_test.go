package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/containerd/errdefs"

	"entropy-gateway/internal/config"
)

func fakeGemini(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.AIConfig{
		BaseURL:     srv.URL,
		Model:       "gemini-2.0-flash",
		APIKey:      "test-key",
		Temperature: 0.3,
		MaxTokens:   1024,
		Timeout:     config.Duration(5 * time.Second),
	})
}

func candidateBody(text string) string {
	quoted, _ := json.Marshal(text)
	return `{"candidates":[{"content":{"parts":[{"text":` + string(quoted) + `}]},"finishReason":"STOP"}]}`
}

func TestClient_Complete(t *testing.T) {
	var gotPath string
	var gotReq generateRequest

	c := fakeGemini(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(candidateBody("the review")))
	})

	got, err := c.Complete(context.Background(), "review this", Options{Temperature: 0.2})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if got != "the review" {
		t.Errorf("result = %q", got)
	}

	if !strings.Contains(gotPath, "/v1beta/models/gemini-2.0-flash:generateContent") {
		t.Errorf("path = %s", gotPath)
	}
	if !strings.Contains(gotPath, "key=test-key") {
		t.Errorf("api key missing from %s", gotPath)
	}
	if len(gotReq.Contents) != 1 || gotReq.Contents[0].Parts[0].Text != "review this" {
		t.Errorf("prompt not forwarded: %+v", gotReq)
	}
	if gotReq.GenerationConfig.Temperature != 0.2 {
		t.Errorf("temperature = %v, want 0.2", gotReq.GenerationConfig.Temperature)
	}
	// 未指定的参数用客户端默认值
	if gotReq.GenerationConfig.MaxOutputTokens != 1024 {
		t.Errorf("maxOutputTokens = %d, want 1024", gotReq.GenerationConfig.MaxOutputTokens)
	}
}

func TestClient_StatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"rate limited", http.StatusTooManyRequests, errdefs.IsUnavailable},
		{"server error", http.StatusInternalServerError, errdefs.IsUnavailable},
		{"bad request", http.StatusBadRequest, errdefs.IsInvalidArgument},
		{"bad key", http.StatusForbidden, errdefs.IsUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := fakeGemini(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(`{"error":{"code":13,"message":"boom","status":"INTERNAL"}}`))
			})

			_, err := c.Complete(context.Background(), "p", Options{})
			if err == nil {
				t.Fatal("expected error")
			}
			if !tc.check(err) {
				t.Errorf("error not mapped: %v", err)
			}
		})
	}
}

func TestClient_BlockedPrompt(t *testing.T) {
	c := fakeGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`))
	})

	_, err := c.Complete(context.Background(), "p", Options{})
	if err == nil || !errdefs.IsInvalidArgument(err) {
		t.Errorf("blocked prompt should map to invalid argument, got %v", err)
	}
}

func TestClient_NoCandidates(t *testing.T) {
	c := fakeGemini(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[]}`))
	})

	_, err := c.Complete(context.Background(), "p", Options{})
	if err == nil {
		t.Fatal("expected error for empty candidates")
	}
}

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"```go\nfunc main() {}\n```", "func main() {}\n"},
		{"```\ncode\n```", "code\n"},
		{"no fences", "no fences"},
	}
	for _, c := range cases {
		if got := StripCodeFence(c.in); got != c.want {
			t.Errorf("StripCodeFence(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
