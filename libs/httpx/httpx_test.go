package httpx

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRateLimiterPerKey(t *testing.T) {
	rl := NewRateLimiter(2, time.Hour, nil)
	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("expected first two requests to pass")
	}
	if rl.Allow("a") {
		t.Fatal("expected third request to be limited")
	}
	if !rl.Allow("b") {
		t.Fatal("expected separate bucket for another key")
	}
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Hour, BearerOrClientKey)
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}), WithRequestID, rl.Middleware())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rw.Code)
	}
	if rw.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected request id header")
	}

	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rw.Code)
	}
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if BearerToken(req) != "" {
		t.Fatal("expected empty token")
	}
	req.Header.Set("Authorization", "bearer  xyz ")
	if got := BearerToken(req); got != "xyz" {
		t.Fatalf("unexpected token %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://app.example.com"},
		AllowedMethods: []string{"GET", "POST"},
	})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Fatal("preflight should not reach handler")
	}))
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rw.Code)
	}
	if rw.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatal("missing allow origin")
	}
}

func TestCORSWildcardSubdomain(t *testing.T) {
	h := WithCORS(CORSPolicy{AllowedOrigins: []string{"https://*.example.com"}})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	cases := map[string]bool{
		"https://app.example.com":  true,
		"https://a.b.example.com":  true,
		"https://example.com":      false,
		"http://app.example.com":   false,
		"https://app.example.org":  false,
		"https://evil-example.com": false,
	}
	for origin, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots", nil)
		req.Header.Set("Origin", origin)
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		got := rw.Header().Get("Access-Control-Allow-Origin") != ""
		if got != want {
			t.Fatalf("origin %s: allowed=%v want %v", origin, got, want)
		}
	}
}

func TestWithRecover(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), WithRequestID, WithRecover(logger))

	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	if rw.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rw.Code)
	}
}

func TestBodyLimitDisabled(t *testing.T) {
	h := WithBodyLimit(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, err := io.ReadAll(r.Body)
		if err != nil || len(b) != 10 {
			t.Fatalf("body read: %d %v", len(b), err)
		}
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
}
