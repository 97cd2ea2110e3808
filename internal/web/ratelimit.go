package web

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipRateLimiter keeps one token bucket per client IP. The planner is a
// single-user service, so the map stays tiny; entries idle for longer
// than staleAfter are dropped on the way through.
type ipRateLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*bucketEntry
	rate       rate.Limit
	burst      int
	staleAfter time.Duration
}

type bucketEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func newIPRateLimiter(r rate.Limit, burst int, staleAfter time.Duration) *ipRateLimiter {
	return &ipRateLimiter{
		buckets:    make(map[string]*bucketEntry),
		rate:       r,
		burst:      burst,
		staleAfter: staleAfter,
	}
}

func (l *ipRateLimiter) allow(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for ip, entry := range l.buckets {
		if now.Sub(entry.lastAccess) > l.staleAfter {
			delete(l.buckets, ip)
		}
	}

	entry, ok := l.buckets[host]
	if !ok {
		entry = &bucketEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[host] = entry
	}
	entry.lastAccess = now

	return entry.limiter.Allow()
}

// middleware rejects requests over the per-IP budget with 429.
func (l *ipRateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(r.RemoteAddr) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
