package httpx

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(r *http.Request) string

// RateLimiter keeps one token bucket per key in process memory.
type RateLimiter struct {
	limit   int
	window  time.Duration
	keyFunc KeyFunc

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

func NewRateLimiter(limit int, window time.Duration, keyFunc KeyFunc) *RateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	if keyFunc == nil {
		keyFunc = ClientKey
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		keyFunc: keyFunc,
		buckets: map[string]*rate.Limiter{},
	}
}

func (rl *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(rl.keyFunc(r)) {
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	lim, ok := rl.buckets[key]
	if !ok {
		lim = rate.NewLimiter(rate.Every(rl.window/time.Duration(rl.limit)), rl.limit)
		rl.buckets[key] = lim
	}
	rl.mu.Unlock()
	return lim.Allow()
}

// ClientKey uses the first X-Forwarded-For hop, falling back to the peer address.
func ClientKey(r *http.Request) string {
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		parts := strings.Split(ip, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// BearerOrClientKey buckets authenticated callers by token and everyone else by address.
func BearerOrClientKey(r *http.Request) string {
	if tok := BearerToken(r); tok != "" {
		return "tok:" + tok
	}
	return "ip:" + ClientKey(r)
}

func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
