package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/crewdesk/crewdesk/pkg/httputil"
)

// maxTrackedClients bounds memory for per-client limiter state; eviction
// resets that client's bucket, which only ever errs in the client's favor
const maxTrackedClients = 8192

// RateLimiter applies a per-client token bucket, keyed by IP. Used on the
// credential endpoints to slow down guessing.
type RateLimiter struct {
	mu      sync.Mutex
	clients *lru.Cache[string, *rate.Limiter]
	rate    rate.Limit
	burst   int
}

// NewRateLimiter allows perMinute sustained requests per client with the
// given burst
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = perMinute
	}
	clients, _ := lru.New[string, *rate.Limiter](maxTrackedClients)
	return &RateLimiter{
		clients: clients,
		rate:    rate.Limit(float64(perMinute) / 60.0),
		burst:   burst,
	}
}

// Middleware rejects requests over the limit with 429
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clientIP(r)) {
			httputil.WriteTooManyRequests(w, "too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.clients.Get(key)
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.clients.Add(key, limiter)
	}
	l.mu.Unlock()
	return limiter.Allow()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
