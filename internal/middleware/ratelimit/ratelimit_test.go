package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(t *testing.T, perMinute int) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	cfg := DefaultConfig()
	cfg.RequestsPerMinute = perMinute
	rl := NewLimiter(cfg)
	rl.now = clock.now
	t.Cleanup(rl.Stop)
	return rl, clock
}

func TestAllowFixedWindow(t *testing.T) {
	rl, clock := newTestLimiter(t, 3)

	for i := 0; i < 3; i++ {
		if ok, _ := rl.Allow("1.1.1.1"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	ok, retry := rl.Allow("1.1.1.1")
	if ok {
		t.Fatal("4th request should be limited")
	}
	if retry != time.Minute {
		t.Fatalf("retry = %v, want 1m", retry)
	}

	// Other clients are independent.
	if ok, _ := rl.Allow("2.2.2.2"); !ok {
		t.Fatal("other client should be allowed")
	}

	// Steady traffic must not extend the window.
	clock.t = clock.t.Add(30 * time.Second)
	if ok, retry := rl.Allow("1.1.1.1"); ok || retry != 30*time.Second {
		t.Fatalf("expected limit with 30s left, got ok=%v retry=%v", ok, retry)
	}
	clock.t = clock.t.Add(30 * time.Second)
	if ok, _ := rl.Allow("1.1.1.1"); !ok {
		t.Fatal("new window should allow")
	}
}

func TestCleanupStaleEntries(t *testing.T) {
	rl, clock := newTestLimiter(t, 5)
	rl.Allow("1.1.1.1")
	clock.t = clock.t.Add(11 * time.Minute)
	rl.Allow("2.2.2.2")

	rl.cleanupStaleEntries()
	if got := rl.ActiveClients(); got != 1 {
		t.Fatalf("ActiveClients = %d, want 1", got)
	}
}

func TestMiddlewareOnlyLimitsConfiguredMethods(t *testing.T) {
	rl, _ := newTestLimiter(t, 1)
	h := rl.Middleware(func(*http.Request) string { return "9.9.9.9" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	do := func(method string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(method, "/transactions", nil))
		return rr
	}

	for i := 0; i < 5; i++ {
		if rr := do(http.MethodGet); rr.Code != http.StatusNoContent {
			t.Fatalf("GET should never be limited, got %d", rr.Code)
		}
	}
	if rr := do(http.MethodPost); rr.Code != http.StatusNoContent {
		t.Fatalf("first POST got %d", rr.Code)
	}
	rr := do(http.MethodDelete)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second mutating request got %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("Retry-After = %q", rr.Header().Get("Retry-After"))
	}
	if m := rl.GetMetrics(); m.TotalHits != 1 || m.ClientCount != 1 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	rl := NewLimiter(Config{})
	rl.Stop()
	rl.Stop()
}
