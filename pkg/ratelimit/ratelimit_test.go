package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	testingclock "k8s.io/utils/clock/testing"
)

func TestAllowBurstThenRefill(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Unix(1000, 0))
	l := NewLimiterWithClock(clk, 1, 2)

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "buckets are per key")

	clk.Step(time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestCleanup(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Unix(1000, 0))
	l := NewLimiterWithClock(clk, 10, 1)

	l.Allow("old")
	clk.Step(time.Minute)
	l.Allow("new")

	assert.Equal(t, 1, l.Cleanup(30*time.Second))
	assert.Equal(t, 1, l.Clients())
}

func TestMiddleware(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Unix(1000, 0))
	l := NewLimiterWithClock(clk, 0.5, 1)
	h := l.Middleware(IPKeyFunc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/last", nil)
		r.RemoteAddr = "10.0.0.7:51234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, do().Code)
	w := do()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "2", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())
}

func TestIPKeyFunc(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", IPKeyFunc(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "192.0.2.1", IPKeyFunc(r), "forwarding headers are not trusted")
}

func TestForwardedKeyFunc(t *testing.T) {
	key := ForwardedKeyFunc("10.0.0.2")

	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"trusted proxy", "10.0.0.2:80", "203.0.113.9, 10.0.0.1", "203.0.113.9"},
		{"trusted proxy without header", "10.0.0.2:80", "", "10.0.0.2"},
		{"untrusted peer", "192.0.2.1:1234", "203.0.113.9", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, key(r))
		})
	}
}

func TestSpoofedForwardingCannotDodgeLimit(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Unix(1000, 0))
	l := NewLimiterWithClock(clk, 1, 1)
	h := l.Middleware(IPKeyFunc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for _, fake := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "192.0.2.7:4000"
		r.Header.Set("X-Forwarded-For", fake)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{200, 429, 429}, codes)
}
