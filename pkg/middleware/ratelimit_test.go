package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestDistributedRateLimiter_Allow(t *testing.T) {
	client := newTestRedis(t)
	config := &RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}
	limiter := NewDistributedRateLimiter(client, config, "test")
	ctx := context.Background()

	t.Run("allows up to the limit then denies", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			allowed, err := limiter.Allow(ctx, "key1")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !allowed {
				t.Fatalf("request %d should be allowed", i+1)
			}
		}

		allowed, err := limiter.Allow(ctx, "key1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if allowed {
			t.Error("request over the limit should be denied")
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		allowed, err := limiter.Allow(ctx, "key2")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed {
			t.Error("fresh key should be allowed")
		}
	})

	t.Run("reset restores the quota", func(t *testing.T) {
		if err := limiter.Reset(ctx, "key1"); err != nil {
			t.Fatalf("reset failed: %v", err)
		}
		allowed, err := limiter.Allow(ctx, "key1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed {
			t.Error("request after reset should be allowed")
		}
	})

	t.Run("remaining counts down", func(t *testing.T) {
		if err := limiter.Reset(ctx, "key3"); err != nil {
			t.Fatalf("reset failed: %v", err)
		}
		remaining, err := limiter.Remaining(ctx, "key3")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if remaining != 3 {
			t.Errorf("expected full quota 3, got %d", remaining)
		}

		limiter.Allow(ctx, "key3")
		remaining, err = limiter.Remaining(ctx, "key3")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if remaining != 2 {
			t.Errorf("expected 2 remaining, got %d", remaining)
		}
	})
}

func TestRateLimitMiddleware_Handler(t *testing.T) {
	t.Run("denies with 429 and retry headers over the limit", func(t *testing.T) {
		client := newTestRedis(t)
		m := NewRateLimitMiddleware(client, &RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}, nil)
		handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		for i := 0; i < 2; i++ {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest("POST", "/api/webhooks/identity", nil))
			if w.Code != http.StatusOK {
				t.Fatalf("request %d: expected 200, got %d", i+1, w.Code)
			}
		}

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("POST", "/api/webhooks/identity", nil))
		if w.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", w.Code)
		}
		if w.Header().Get("Retry-After") == "" {
			t.Error("expected Retry-After header")
		}
		if w.Header().Get("X-RateLimit-Remaining") != "0" {
			t.Errorf("expected remaining 0, got %s", w.Header().Get("X-RateLimit-Remaining"))
		}
	})

	t.Run("separate client IPs are limited independently", func(t *testing.T) {
		client := newTestRedis(t)
		m := NewRateLimitMiddleware(client, &RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}, nil)
		handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		reqA := httptest.NewRequest("POST", "/api/webhooks/identity", nil)
		reqA.Header.Set("X-Forwarded-For", "10.0.0.1")
		reqB := httptest.NewRequest("POST", "/api/webhooks/identity", nil)
		reqB.Header.Set("X-Forwarded-For", "10.0.0.2")

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, reqA)
		if w.Code != http.StatusOK {
			t.Fatalf("first client: expected 200, got %d", w.Code)
		}

		w = httptest.NewRecorder()
		handler.ServeHTTP(w, reqB)
		if w.Code != http.StatusOK {
			t.Errorf("second client: expected 200, got %d", w.Code)
		}
	})

	t.Run("fails open when redis is down", func(t *testing.T) {
		client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
		defer client.Close()
		m := NewRateLimitMiddleware(client, nil, nil)
		handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("POST", "/api/webhooks/identity", nil))
		if w.Code != http.StatusOK {
			t.Errorf("expected fail-open 200, got %d", w.Code)
		}
	})

	t.Run("fails closed when configured", func(t *testing.T) {
		client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
		defer client.Close()
		m := NewRateLimitMiddleware(client, nil, nil)
		m.SetFailOpen(false)
		handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("POST", "/api/webhooks/identity", nil))
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", w.Code)
		}
	})
}

func TestClientIP(t *testing.T) {
	cases := []struct {
		name       string
		forwarded  string
		realIP     string
		remoteAddr string
		want       string
	}{
		{"x-forwarded-for first hop", "203.0.113.7, 10.0.0.1", "", "192.168.1.1:1234", "203.0.113.7"},
		{"x-real-ip fallback", "", "203.0.113.8", "192.168.1.1:1234", "203.0.113.8"},
		{"remote addr fallback", "", "", "192.168.1.1:1234", "192.168.1.1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := clientIP(req); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
