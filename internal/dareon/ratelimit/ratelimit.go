// Package ratelimit provides keyed token-bucket limiters for HTTP routes.
//
// Each key (a user id or a client address) gets its own golang.org/x/time/rate
// bucket holding up to N tokens that refill evenly over the window, so a
// client may burst N requests and then continues at N per window.
package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dareon-io/dareon2/internal/dareon/httpjson"
)

const (
	// DefaultRequests is the bucket size used when none is configured.
	DefaultRequests = 100
	// DefaultWindow is the refill window used when none is configured.
	DefaultWindow = time.Minute
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter enforces a per-key request budget. It is safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	requests int
	window   time.Duration
	buckets  map[string]*bucket
	now      func() time.Time
}

// New returns a Limiter that allows requests per window for each key.
//
// If requests ≤ 0 it defaults to DefaultRequests.
// If window ≤ 0 it defaults to DefaultWindow.
func New(requests int, window time.Duration) *Limiter {
	if requests <= 0 {
		requests = DefaultRequests
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		requests: requests,
		window:   window,
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
}

// WithClock replaces the limiter's time source. Used by tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func (l *Limiter) get(key string, now time.Time) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		every := rate.Every(l.window / time.Duration(l.requests))
		b = &bucket{limiter: rate.NewLimiter(every, l.requests)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b
}

// Allow consumes one token for key and reports whether the request may
// proceed.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	return l.get(key, now).limiter.AllowN(now, 1)
}

// Remaining returns the whole tokens key has left. A return value of 0 means
// the next Allow call will return false.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		return l.requests
	}
	tokens := b.limiter.TokensAt(l.now())
	return max(int(math.Floor(tokens)), 0)
}

// Window returns the configured refill window.
func (l *Limiter) Window() time.Duration { return l.window }

// Prune forgets keys idle for longer than one window; a forgotten key starts
// again with a full bucket, which is what it would have refilled to anyway.
// It returns the number of keys removed.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.window)
	n := 0
	for k, b := range l.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(l.buckets, k)
			n++
		}
	}
	return n
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// KeyFunc extracts the limiting key from a request. An empty key bypasses the
// limiter.
type KeyFunc func(r *http.Request) string

// ClientIP keys requests by the remote address without its port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over budget with 429 and a Retry-After header.
func (l *Limiter) Middleware(key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k != "" && !l.Allow(k) {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(l.window.Seconds()/float64(l.requests)))))
				httpjson.Error(w, http.StatusTooManyRequests, l.message())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *Limiter) message() string {
	mins := int(math.Ceil(l.window.Minutes()))
	if mins <= 1 {
		return "Too many requests. Please try again in a minute"
	}
	return fmt.Sprintf("Too many requests. Please try again in %d minutes", mins)
}
