package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestRateLimiter_BurstExhaustion(t *testing.T) {
	// a refill interval long enough that no token comes back mid-test
	rl := NewRateLimiter(rate.Every(time.Minute), 3)

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		r.RemoteAddr = "203.0.113.7:4567"
		handler.ServeHTTP(w, r)

		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	r.RemoteAddr = "203.0.113.7:4567"
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status after burst = %d, want 429", w.Code)
	}
}

func TestRateLimiter_EvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Minute), 1)

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, addr := range []string{"203.0.113.1:1000", "203.0.113.2:2000", "203.0.113.3:3000"} {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		r.RemoteAddr = addr
		handler.ServeHTTP(w, r)
	}

	rl.mu.Lock()
	if len(rl.limiters) != 3 {
		rl.mu.Unlock()
		t.Fatalf("limiters = %d, want 3", len(rl.limiters))
	}

	// two clients go idle past the TTL, one stays fresh
	stale := time.Now().Add(-limiterIdleTTL - time.Minute)
	rl.limiters["203.0.113.1"].lastSeen = stale
	rl.limiters["203.0.113.2"].lastSeen = stale
	rl.sweep(time.Now())
	remaining := len(rl.limiters)
	_, freshKept := rl.limiters["203.0.113.3"]
	rl.mu.Unlock()

	if remaining != 1 {
		t.Fatalf("limiters after sweep = %d, want 1", remaining)
	}
	if !freshKept {
		t.Fatalf("fresh client evicted")
	}
}

func TestRateLimiter_BudgetIsPerIP(t *testing.T) {
	rl := NewRateLimiter(rate.Every(time.Minute), 1)

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	r1 := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	r1.RemoteAddr = "203.0.113.1:1000"
	handler.ServeHTTP(first, r1)
	if first.Code != http.StatusOK {
		t.Fatalf("first ip: status = %d, want 200", first.Code)
	}

	blocked := httptest.NewRecorder()
	r2 := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	r2.RemoteAddr = "203.0.113.1:2000"
	handler.ServeHTTP(blocked, r2)
	if blocked.Code != http.StatusTooManyRequests {
		t.Fatalf("same ip again: status = %d, want 429", blocked.Code)
	}

	other := httptest.NewRecorder()
	r3 := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	r3.RemoteAddr = "203.0.113.2:3000"
	handler.ServeHTTP(other, r3)
	if other.Code != http.StatusOK {
		t.Fatalf("other ip: status = %d, want 200", other.Code)
	}
}
