package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// clientIP returns the caller's address, honoring X-Forwarded-For and
// X-Real-IP when running behind a reverse proxy.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// originAllowed reports whether origin may connect. An empty allow list
// admits every origin.
func originAllowed(allowed []string, origin string) bool {
	if len(allowed) == 0 || origin == "" {
		return true
	}
	for _, o := range allowed {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// corsMiddleware adds CORS headers for whitelisted origins.
func corsMiddleware(allowed []string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && originAllowed(allowed, origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimiter counts requests per address in fixed one-minute windows.
type rateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	limit   int
	span    time.Duration
}

type rateWindow struct {
	count  int
	expiry time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		windows: make(map[string]*rateWindow),
		limit:   perMinute,
		span:    time.Minute,
	}
}

func (rl *rateLimiter) allow(ip string, now time.Time) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	w, ok := rl.windows[ip]
	if !ok || now.After(w.expiry) {
		rl.windows[ip] = &rateWindow{count: 1, expiry: now.Add(rl.span)}
		return true
	}
	w.count++
	return w.count <= rl.limit
}

// cleanup removes expired windows.
func (rl *rateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, w := range rl.windows {
		if now.After(w.expiry) {
			delete(rl.windows, ip)
		}
	}
}

// rateLimitMiddleware rejects requests over the per-address limit.
func rateLimitMiddleware(rl *rateLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.allow(clientIP(r), time.Now()) {
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
