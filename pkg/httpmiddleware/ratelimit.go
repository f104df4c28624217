package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client token bucket limiter.
type RateLimitConfig struct {
	// Max is the bucket size: requests allowed in a burst, refilled evenly
	// over Window.
	Max int
	// Window is the time needed to refill an empty bucket.
	Window time.Duration
	// KeyFunc extracts the client key. Defaults to ClientKey.
	KeyFunc func(*http.Request) string
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

type limiter struct {
	cfg   RateLimitConfig
	every rate.Limit

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientKey
	}
	if cfg.Max < 1 {
		cfg.Max = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &limiter{
		cfg:     cfg,
		every:   rate.Limit(float64(cfg.Max) / cfg.Window.Seconds()),
		buckets: make(map[string]*bucket),
	}
}

// take consumes one token for key. It returns the tokens left, when the
// bucket is full again and, for denied requests, how long until a token is
// available.
func (l *limiter) take(key string, now time.Time) (remaining int, resetAt time.Time, retry time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, found := l.buckets[key]
	if !found {
		b = &bucket{lim: rate.NewLimiter(l.every, l.cfg.Max)}
		l.buckets[key] = b
	}
	b.seen = now

	ok = b.lim.AllowN(now, 1)
	tokens := b.lim.TokensAt(now)
	if !ok {
		retry = time.Duration((1 - tokens) / float64(l.every) * float64(time.Second))
	}
	missing := float64(l.cfg.Max) - tokens
	resetAt = now.Add(time.Duration(missing / float64(l.every) * float64(time.Second)))
	return max(int(math.Floor(tokens)), 0), resetAt, retry, ok
}

// sweep drops buckets untouched for a full window; they would be full again
// anyway.
func (l *limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.seen) >= l.cfg.Window {
			delete(l.buckets, key)
		}
	}
}

func (l *limiter) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(2 * l.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

// RateLimit limits requests per client key. Every response carries
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset; rejected
// requests get 429 with Retry-After.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware()
}

// RateLimitWithCleanup is RateLimit plus a goroutine that evicts idle
// buckets until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go l.runSweeper(ctx)
	return l.middleware()
}

func (l *limiter) middleware() Middleware {
	limit := strconv.Itoa(l.cfg.Max)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, resetAt, retry, ok := l.take(l.cfg.KeyFunc(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !ok {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"code":429,"message":"rate limit exceeded"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey keys a request by device id when the Device middleware ran
// first, falling back to the client IP.
func ClientKey(r *http.Request) string {
	if id := DeviceIDFromContext(r.Context()); id != "" {
		return "device:" + id
	}
	return "ip:" + ClientIP(r)
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
