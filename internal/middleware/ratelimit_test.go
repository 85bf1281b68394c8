package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"

	"github.com/bi-platform/apikeys/internal/telemetry"
)

// ---------------------------------------------------------------------------
// RateLimiter.Allow
// ---------------------------------------------------------------------------

func newTestLimiter(rpm, burst int) *RateLimiter {
	cfg := RateLimitConfig{
		RequestsPerMinute: rpm,
		BurstSize:         burst,
		CleanupInterval:   time.Hour, // Don't clean up during tests
	}
	return NewRateLimiter(cfg)
}

func allow(rl Limiter, key string) bool {
	ok, _, _ := rl.Allow(context.Background(), key)
	return ok
}

func TestDefaultRateLimitConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerMinute != 60 || cfg.BurstSize != 10 {
		t.Errorf("DefaultRateLimitConfig() = %+v", cfg)
	}
}

func TestRateLimiter_AllowsUpToBurstSize(t *testing.T) {
	burst := 3
	rl := newTestLimiter(600, burst)
	defer rl.Stop()

	allowed := 0
	for i := 0; i < burst+2; i++ {
		if allow(rl, "burst-test") {
			allowed++
		}
	}
	if allowed != burst {
		t.Errorf("allowed %d requests at burst=%d, want exactly %d", allowed, burst, burst)
	}
}

func TestRateLimiter_RemainingCountsDown(t *testing.T) {
	rl := newTestLimiter(60, 3)
	defer rl.Stop()

	var got []int
	for i := 0; i < 3; i++ {
		_, remaining, err := rl.Allow(context.Background(), "countdown")
		if err != nil {
			t.Fatalf("Allow() error: %v", err)
		}
		got = append(got, remaining)
	}
	if got[0] != 2 || got[1] != 1 || got[2] != 0 {
		t.Errorf("remaining = %v, want [2 1 0]", got)
	}
}

func TestRateLimiter_TokensRefillOverTime(t *testing.T) {
	rl := newTestLimiter(600, 2) // 10 tokens/sec
	defer rl.Stop()

	for allow(rl, "refill-test") {
	}

	time.Sleep(120 * time.Millisecond)

	if !allow(rl, "refill-test") {
		t.Error("Allow() = false after token refill wait, want true")
	}
}

func TestRateLimiter_DifferentKeysAreIndependent(t *testing.T) {
	rl := newTestLimiter(60, 2)
	defer rl.Stop()

	for allow(rl, "key-a") {
	}

	if !allow(rl, "key-b") {
		t.Error("Allow() = false for independent key-b after exhausting key-a")
	}
}

func TestRateLimiter_StopTwice(t *testing.T) {
	rl := newTestLimiter(60, 5)
	rl.Stop()
	rl.Stop()
}

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{
		RequestsPerMinute: 600,
		BurstSize:         10,
		CleanupInterval:   10 * time.Millisecond,
	})
	defer rl.Stop()

	allow(rl, "stale-client")

	rl.mu.Lock()
	if entry, ok := rl.entries["stale-client"]; ok {
		entry.lastUpdate = time.Now().Add(-11 * time.Minute)
	}
	rl.mu.Unlock()

	time.Sleep(60 * time.Millisecond)

	rl.mu.Lock()
	_, stillPresent := rl.entries["stale-client"]
	rl.mu.Unlock()

	if stillPresent {
		t.Error("expected stale-client entry to be evicted by cleanup goroutine")
	}
}

// ---------------------------------------------------------------------------
// getRateLimitKey
// ---------------------------------------------------------------------------

func TestGetRateLimitKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name   string
		userID string
		keyID  string
		want   string
	}{
		{"user id wins", "user-123", "key-456", "user:user-123"},
		{"api key id", "", "key-456", "apikey:key-456"},
		{"ip fallback", "", "", "ip:192.168.1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			req, _ := http.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.168.1.1:12345"
			c.Request = req
			c.Set(ContextKeyUserID, tt.userID)
			c.Set(ContextKeyAPIKeyID, tt.keyID)

			if got := getRateLimitKey(c); got != tt.want {
				t.Errorf("getRateLimitKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// RateLimitMiddleware
// ---------------------------------------------------------------------------

func newRateLimitRouter(limiter Limiter) *gin.Engine {
	r := gin.New()
	r.Use(RateLimitMiddleware(limiter))
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func sendFrom(r *gin.Engine, addr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = addr
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitMiddleware_AllowedHeaders(t *testing.T) {
	rl := newTestLimiter(120, 20)
	defer rl.Stop()

	w := sendFrom(newRateLimitRouter(rl), "10.0.0.1:1234")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("X-RateLimit-Limit"); got != "120" {
		t.Errorf("X-RateLimit-Limit = %q, want 120", got)
	}
	if got := w.Header().Get("X-RateLimit-Remaining"); got != "19" {
		t.Errorf("X-RateLimit-Remaining = %q, want 19", got)
	}
}

func TestRateLimitMiddleware_Blocked(t *testing.T) {
	rl := newTestLimiter(1, 1)
	defer rl.Stop()
	r := newRateLimitRouter(rl)

	before := testutil.ToFloat64(telemetry.RateLimitRejectionsTotal.WithLabelValues("memory"))

	if w := sendFrom(r, "10.0.0.2:1234"); w.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", w.Code)
	}
	w := sendFrom(r, "10.0.0.2:1234")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
	if remaining, _ := strconv.Atoi(w.Header().Get("X-RateLimit-Remaining")); remaining != 0 {
		t.Errorf("X-RateLimit-Remaining = %d, want 0", remaining)
	}

	after := testutil.ToFloat64(telemetry.RateLimitRejectionsTotal.WithLabelValues("memory"))
	if after-before != 1 {
		t.Errorf("rejections counter delta = %v, want 1", after-before)
	}
}

func TestRedisRateLimiter_FailsOpen(t *testing.T) {
	// Nothing listens on port 1; every call errors quickly.
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	rl := NewRedisRateLimiter(rdb, RateLimitConfig{RequestsPerMinute: 1, BurstSize: 1})
	if rl.Backend() != "redis" || rl.Limit() != 1 {
		t.Fatalf("Backend()/Limit() = %q/%d", rl.Backend(), rl.Limit())
	}
	if _, _, err := rl.Allow(context.Background(), "k"); err == nil {
		t.Fatal("Allow() against unreachable redis should error")
	}

	r := newRateLimitRouter(rl)
	for i := 0; i < 3; i++ {
		if w := sendFrom(r, "10.0.0.5:1234"); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200 (fail open)", i, w.Code)
		}
	}
}
