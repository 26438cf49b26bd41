// Package ratelimit implements the token-bucket request limiters guarding
// the HTTP edge (spec §4.11, C17): one bucket per API token for
// authenticated traffic, one per source IP for everything else.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// KeyedLimiter holds one token-bucket rate.Limiter per key, lazily created
// and reaped after cleanupInterval of inactivity.
type KeyedLimiter struct {
	mu              sync.RWMutex
	limiters        map[string]*entry
	rate            rate.Limit
	burst           int
	cleanupInterval time.Duration
}

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewKeyedLimiter builds a limiter that allows r events per second, bursting
// up to b, per distinct key. A background goroutine reaps keys idle for
// longer than 10 minutes.
func NewKeyedLimiter(r rate.Limit, b int) *KeyedLimiter {
	kl := &KeyedLimiter{
		limiters:        make(map[string]*entry),
		rate:            r,
		burst:           b,
		cleanupInterval: 10 * time.Minute,
	}
	go kl.cleanup()
	return kl
}

func (kl *KeyedLimiter) limiterFor(key string) *rate.Limiter {
	kl.mu.RLock()
	e, ok := kl.limiters[key]
	kl.mu.RUnlock()
	if ok {
		kl.mu.Lock()
		e.lastSeen = time.Now()
		kl.mu.Unlock()
		return e.limiter
	}

	kl.mu.Lock()
	defer kl.mu.Unlock()
	if e, ok = kl.limiters[key]; ok {
		e.lastSeen = time.Now()
		return e.limiter
	}
	l := rate.NewLimiter(kl.rate, kl.burst)
	kl.limiters[key] = &entry{limiter: l, lastSeen: time.Now()}
	return l
}

// Allow reports whether a request tagged with key may proceed.
func (kl *KeyedLimiter) Allow(key string) bool {
	return kl.limiterFor(key).Allow()
}

func (kl *KeyedLimiter) cleanup() {
	ticker := time.NewTicker(kl.cleanupInterval)
	defer ticker.Stop()
	for range ticker.C {
		kl.mu.Lock()
		for key, e := range kl.limiters {
			if time.Since(e.lastSeen) > kl.cleanupInterval {
				delete(kl.limiters, key)
			}
		}
		kl.mu.Unlock()
	}
}

// writeRateLimited writes the standard 429 body spec §4.11 expects.
func writeRateLimited(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "60")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"-","error":{"kind":"Unauthorized","message":"rate limit exceeded"}}`))
}

// TokenMiddleware rate-limits by the caller's bearer token, falling back to
// the remote address for requests that carry no Authorization header (those
// fail authentication downstream regardless, but still consume a bucket so
// an unauthenticated flood can't bypass limiting entirely).
func TokenMiddleware(kl *KeyedLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := bearerKey(r)
			if !kl.Allow(key) {
				writeRateLimited(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerKey(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return r.RemoteAddr
}

// IPMiddleware rate-limits by source IP, preferring X-Forwarded-For /
// X-Real-IP over RemoteAddr so it works behind a reverse proxy.
func IPMiddleware(kl *KeyedLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.Header.Get("X-Forwarded-For")
			if ip == "" {
				ip = r.Header.Get("X-Real-IP")
			}
			if ip == "" {
				ip = r.RemoteAddr
			}
			if !kl.Allow(ip) {
				writeRateLimited(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
