package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func authedHandler(t *testing.T, wantUser string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := GetAuthUser(r.Context())
		if wantUser == "" {
			if user != nil {
				t.Errorf("expected no auth user, got %+v", user)
			}
		} else {
			if user == nil || user.ID != wantUser {
				t.Errorf("auth user = %+v, want ID %s", user, wantUser)
			}
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_DisabledPassesThrough(t *testing.T) {
	mw := Middleware(Config{})

	req := httptest.NewRequest("GET", "/api/v1/chat/history", nil)
	rec := httptest.NewRecorder()
	mw(authedHandler(t, "")).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMiddleware_ValidToken(t *testing.T) {
	cfg := Config{JWTSecret: "test-secret"}
	token, err := GenerateAccessToken(cfg, "user-1", "u1@example.com", time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/chat/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Middleware(cfg)(authedHandler(t, "user-1")).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMiddleware_RejectsBadToken(t *testing.T) {
	cfg := Config{JWTSecret: "test-secret"}

	cases := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"malformed", "Bearer not-a-jwt"},
		{"wrong scheme", "Basic abc"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/chat/history", nil)
			if c.header != "" {
				req.Header.Set("Authorization", c.header)
			}
			rec := httptest.NewRecorder()
			Middleware(cfg)(authedHandler(t, "never")).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestMiddleware_RejectsExpiredToken(t *testing.T) {
	cfg := Config{JWTSecret: "test-secret"}
	token, err := GenerateAccessToken(cfg, "user-1", "", -time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken failed: %v", err)
	}

	req := httptest.NewRequest("GET", "/api/v1/chat/history", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	Middleware(cfg)(authedHandler(t, "never")).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestMiddleware_PublicRoutes(t *testing.T) {
	cfg := Config{JWTSecret: "test-secret"}
	mw := Middleware(cfg)

	public := []string{
		"/api/v1/auth/login",
		"/health",
		"/metrics",
		"/ws/progress",
		"/assets/index.js",
		"/favicon.ico",
		"/manifest.json",
		"/",
		"/some/spa/route",
	}
	for _, path := range public {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		mw(authedHandler(t, "")).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200 without token", path, rec.Code)
		}
	}
}
