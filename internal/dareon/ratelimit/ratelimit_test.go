package ratelimit_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dareon-io/dareon2/internal/dareon/ratelimit"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newLimiter(requests int, window time.Duration) (*ratelimit.Limiter, *fakeClock) {
	clk := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return ratelimit.New(requests, window).WithClock(clk.Now), clk
}

func TestLimiter_AllowsUpToLimit(t *testing.T) {
	const limit = 5
	rl, _ := newLimiter(limit, time.Minute)

	for i := 0; i < limit; i++ {
		if !rl.Allow("alice") {
			t.Fatalf("Allow returned false on call %d/%d (expected true)", i+1, limit)
		}
	}
	if rl.Allow("alice") {
		t.Error("Allow returned true after limit was exhausted; expected false")
	}
}

func TestLimiter_IndependentPerKey(t *testing.T) {
	rl, _ := newLimiter(2, time.Minute)

	rl.Allow("alice")
	rl.Allow("alice")
	if rl.Allow("alice") {
		t.Error("alice should be rate-limited")
	}
	if !rl.Allow("bob") {
		t.Error("bob should not be rate-limited (independent key)")
	}
}

func TestLimiter_Refill(t *testing.T) {
	rl, clk := newLimiter(2, time.Minute)

	rl.Allow("carol")
	rl.Allow("carol")
	if rl.Allow("carol") {
		t.Fatal("expected carol to be limited")
	}

	clk.Advance(31 * time.Second)
	if !rl.Allow("carol") {
		t.Error("one token should have refilled after half the window")
	}
}

func TestLimiter_Remaining(t *testing.T) {
	rl, _ := newLimiter(3, time.Minute)

	if got := rl.Remaining("dave"); got != 3 {
		t.Errorf("Remaining before any call = %d, want 3", got)
	}
	rl.Allow("dave")
	if got := rl.Remaining("dave"); got != 2 {
		t.Errorf("Remaining after one call = %d, want 2", got)
	}
	rl.Allow("dave")
	rl.Allow("dave")
	rl.Allow("dave")
	if got := rl.Remaining("dave"); got != 0 {
		t.Errorf("Remaining when exhausted = %d, want 0", got)
	}
}

func TestLimiter_Defaults(t *testing.T) {
	rl := ratelimit.New(0, 0)
	if rl.Window() != ratelimit.DefaultWindow {
		t.Errorf("Window = %v", rl.Window())
	}
	if got := rl.Remaining("x"); got != ratelimit.DefaultRequests {
		t.Errorf("Remaining = %d", got)
	}
}

func TestLimiter_Prune(t *testing.T) {
	rl, clk := newLimiter(1, time.Minute)
	rl.Allow("old")
	clk.Advance(2 * time.Minute)
	rl.Allow("fresh")

	if n := rl.Prune(); n != 1 {
		t.Errorf("Prune removed %d keys, want 1", n)
	}
	if rl.Len() != 1 {
		t.Errorf("Len = %d, want 1", rl.Len())
	}
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	rl := ratelimit.New(50, time.Hour)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if rl.Allow("shared") {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed %d calls, want exactly 50", allowed)
	}
}

func TestMiddleware(t *testing.T) {
	rl, _ := newLimiter(1, 15*time.Minute)
	h := rl.Middleware(ratelimit.ClientIP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	call := func(addr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w
	}

	if w := call("10.0.0.1:1234"); w.Code != http.StatusNoContent {
		t.Fatalf("first call: %d", w.Code)
	}
	w := call("10.0.0.1:5678")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second call from same IP: got %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if w := call("10.0.0.2:1234"); w.Code != http.StatusNoContent {
		t.Errorf("other IP should pass, got %d", w.Code)
	}
}
