// Package ratelimit implements a fixed-window request counter per client
// address, applied as HTTP middleware in front of the REST API.
package ratelimit

import (
	"net"
	"net/http"
	"sync"
	"time"
)

type window struct {
	start time.Time
	count int
}

type Limiter struct {
	mu          sync.Mutex
	windows     map[string]*window
	maxRequests int
	windowSize  time.Duration
}

// New allows maxRequests per windowSize for each client IP.
func New(maxRequests int, windowSize time.Duration) *Limiter {
	return &Limiter{
		windows:     make(map[string]*window),
		maxRequests: maxRequests,
		windowSize:  windowSize,
	}
}

// Allow records one request for ip and reports whether it fits in the
// current window.
func (l *Limiter) Allow(ip string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.windows[ip]
	if w == nil || now.Sub(w.start) > l.windowSize {
		l.windows[ip] = &window{start: now, count: 1}
		return true
	}
	if w.count >= l.maxRequests {
		return false
	}
	w.count++
	return true
}

func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if !l.Allow(ip) {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}
