package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/time/rate"
)

func TestKeyedLimiterAllowsBurstThenBlocks(t *testing.T) {
	kl := NewKeyedLimiter(rate.Limit(1), 2)

	if !kl.Allow("tok-1") {
		t.Fatal("first request should be allowed")
	}
	if !kl.Allow("tok-1") {
		t.Fatal("second request within burst should be allowed")
	}
	if kl.Allow("tok-1") {
		t.Fatal("third request should exceed burst and be blocked")
	}
}

func TestKeyedLimiterIsolatesKeys(t *testing.T) {
	kl := NewKeyedLimiter(rate.Limit(1), 1)

	if !kl.Allow("tok-a") {
		t.Fatal("tok-a first request should be allowed")
	}
	if !kl.Allow("tok-b") {
		t.Fatal("tok-b should have its own independent bucket")
	}
}

func TestTokenMiddlewareReturns429WhenExhausted(t *testing.T) {
	kl := NewKeyedLimiter(rate.Limit(1), 1)
	handler := TokenMiddleware(kl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer tok-1")

	rec1 := httptest.NewRecorder()
	handler.ServeHTTP(rec1, req)
	if rec1.Code != http.StatusOK {
		t.Fatalf("first request: got status %d, want 200", rec1.Code)
	}

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got status %d, want 429", rec2.Code)
	}
	if rec2.Header().Get("Retry-After") != "60" {
		t.Fatalf("got Retry-After %q, want 60", rec2.Header().Get("Retry-After"))
	}
}

func TestIPMiddlewarePrefersForwardedFor(t *testing.T) {
	kl := NewKeyedLimiter(rate.Limit(1), 1)
	handler := IPMiddleware(kl)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	reqA := httptest.NewRequest(http.MethodPost, "/", nil)
	reqA.Header.Set("X-Forwarded-For", "203.0.113.5")
	reqA.RemoteAddr = "10.0.0.1:1234"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, reqA)
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}

	reqB := httptest.NewRequest(http.MethodPost, "/", nil)
	reqB.Header.Set("X-Forwarded-For", "203.0.113.5")
	reqB.RemoteAddr = "10.0.0.2:5678"

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, reqB)
	if rec2.Code != http.StatusTooManyRequests {
		t.Fatalf("same forwarded IP from a different RemoteAddr: got status %d, want 429", rec2.Code)
	}
}
