package middlewares

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mbolis/leadbox/httpx"
	"github.com/mbolis/leadbox/log"
)

// RateLimiter lets each client IP through at most once per window.
type RateLimiter struct {
	mu        sync.Mutex
	window    time.Duration
	now       func() time.Time
	lastSeen  map[string]time.Time
	lastSweep time.Time
}

func NewRateLimiter(window time.Duration, now func() time.Time) *RateLimiter {
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		window:   window,
		now:      now,
		lastSeen: map[string]time.Time{},
	}
}

// Allow records a hit for ip and reports whether it is outside the window
// of the previous accepted one.
func (rl *RateLimiter) Allow(ip string) bool {
	if rl.window <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) > rl.window {
		for key, seen := range rl.lastSeen {
			if now.Sub(seen) >= rl.window {
				delete(rl.lastSeen, key)
			}
		}
		rl.lastSweep = now
	}

	if seen, ok := rl.lastSeen[ip]; ok && now.Sub(seen) < rl.window {
		return false
	}
	rl.lastSeen[ip] = now
	return true
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.Allow(ip) {
			httpx.LogStatusMsg(w, r, http.StatusTooManyRequests, log.WarnLevel,
				"ratelimit.exceeded", "Too many requests from %s, please try again later", ip)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
