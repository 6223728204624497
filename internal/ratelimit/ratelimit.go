// Package ratelimit is a fixed-window token bucket keyed by an arbitrary
// string: client address for HTTP, error class for log lines.
package ratelimit

import (
	"net/http"
	"sync"
	"time"
)

type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    int           // events per window
	window  time.Duration // time window
	now     func() time.Time
}

type bucket struct {
	tokens    int
	lastReset time.Time
	dropped   int
}

func New(rate int, window time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		window:  window,
		now:     time.Now,
	}
}

// Allow reports whether another event for key fits in the current window.
func (l *Limiter) Allow(key string) bool {
	ok, _ := l.AllowCounting(key)
	return ok
}

// AllowCounting is Allow that also returns how many events were refused for
// key since the last allowed one.
func (l *Limiter) AllowCounting(key string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	b, exists := l.buckets[key]
	if !exists {
		l.buckets[key] = &bucket{
			tokens:    l.rate - 1,
			lastReset: now,
		}
		return true, 0
	}

	if now.Sub(b.lastReset) > l.window {
		b.tokens = l.rate
		b.lastReset = now
	}

	if b.tokens > 0 {
		b.tokens--
		dropped := b.dropped
		b.dropped = 0
		return true, dropped
	}

	b.dropped++
	return false, 0
}

// Middleware rejects requests over the limit with 429.
func (l *Limiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(ClientIP(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
