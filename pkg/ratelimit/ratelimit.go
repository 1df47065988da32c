// Package ratelimit throttles HTTP clients of the serve endpoint.
package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter keeps one token bucket per client key.
type Limiter struct {
	rps   rate.Limit
	burst int
	clock clock.PassiveClock

	mu      sync.Mutex
	clients map[string]*client
}

// NewLimiter allows rps requests per second per key with bursts of burst.
func NewLimiter(rps float64, burst int) *Limiter {
	return NewLimiterWithClock(clock.RealClock{}, rps, burst)
}

func NewLimiterWithClock(c clock.PassiveClock, rps float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		clock:   c,
		clients: make(map[string]*client),
	}
}

// Allow spends one token of key's bucket.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// Cleanup forgets clients idle for longer than maxIdle and reports how many
// were dropped.
func (l *Limiter) Cleanup(maxIdle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	dropped := 0
	for key, c := range l.clients {
		if now.Sub(c.lastSeen) > maxIdle {
			delete(l.clients, key)
			dropped++
		}
	}
	return dropped
}

// Clients reports how many keys are tracked.
func (l *Limiter) Clients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Middleware answers 429 once keyFunc's bucket is empty.
func (l *Limiter) Middleware(keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	retryAfter := "1"
	if l.rps > 0 && l.rps < 1 {
		retryAfter = strconv.Itoa(int(1/float64(l.rps) + 0.5))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(keyFunc(r)) {
				w.Header().Set("Retry-After", retryAfter)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPKeyFunc keys on the remote host without its port. Client-supplied
// forwarding headers are ignored.
func IPKeyFunc(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ForwardedKeyFunc is IPKeyFunc, except that requests arriving from one of
// the trusted proxy addresses are keyed on the first X-Forwarded-For entry.
func ForwardedKeyFunc(trustedProxies ...string) func(*http.Request) string {
	trusted := make(map[string]bool, len(trustedProxies))
	for _, p := range trustedProxies {
		trusted[strings.TrimSpace(p)] = true
	}

	return func(r *http.Request) string {
		peer := IPKeyFunc(r)
		if !trusted[peer] {
			return peer
		}
		xff := r.Header.Get("X-Forwarded-For")
		if xff == "" {
			return peer
		}
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
		return peer
	}
}
