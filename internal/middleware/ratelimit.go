package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type bucket struct {
	count int
	until time.Time
}

type clientLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	per     time.Duration

	lastPrune time.Time
}

// RateLimit is the per-client guard on the public API. It is separate from
// the outbound per-dependency limiters: this one protects the service from
// its callers, those protect upstreams from the service.
func RateLimit(limit int, per time.Duration) func(http.Handler) http.Handler {
	cl := &clientLimiter{
		buckets:   make(map[string]*bucket),
		limit:     limit,
		per:       per,
		lastPrune: time.Now(),
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if retryAfter, ok := cl.allow(clientIPForRateLimit(r)); !ok {
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate_limited","message":"too many requests"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// allow reports whether the client may proceed, and how long to wait if not.
func (cl *clientLimiter) allow(ip string) (time.Duration, bool) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := time.Now()
	if now.Sub(cl.lastPrune) > 10*cl.per {
		for k, b := range cl.buckets {
			if now.After(b.until) {
				delete(cl.buckets, k)
			}
		}
		cl.lastPrune = now
	}

	b, ok := cl.buckets[ip]
	if !ok || now.After(b.until) {
		b = &bucket{until: now.Add(cl.per)}
		cl.buckets[ip] = b
	}
	if b.count >= cl.limit {
		return b.until.Sub(now), false
	}
	b.count++
	return 0, true
}

func clientIPForRateLimit(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		for _, part := range strings.Split(xf, ",") {
			ip := strings.TrimSpace(part)
			if ip == "" {
				continue
			}
			if net.ParseIP(ip) != nil {
				return ip
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		if net.ParseIP(host) != nil {
			return host
		}
	} else if net.ParseIP(r.RemoteAddr) != nil {
		return r.RemoteAddr
	}

	return r.RemoteAddr
}
