package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/tutoring-platform/backend/internal/observability"
	"github.com/upb/tutoring-platform/backend/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RateLimitStore decides whether the request identified by key may proceed.
// When it may not, retryAfter says how long the caller should wait.
type RateLimitStore interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// RateLimit limits requests per client IP using store. Store errors fail open
// so that an unavailable limiter never blocks ingestion.
func RateLimit(store RateLimitStore, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := GetClientIPFromContext(r.Context())
			if ip == "" {
				ip = clientIP(r.RemoteAddr)
			}

			allowed, retryAfter, err := store.Allow(r.Context(), ip)
			if err != nil {
				logger.Warn("rate limit store unavailable, allowing request",
					zap.Error(err),
					zap.String("ip", ip))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				observability.RateLimitedTotal.Inc()
				logger.Warn("rate limit exceeded",
					zap.String("ip", ip),
					zap.String("path", r.URL.Path),
					zap.Duration("retry_after", retryAfter),
					zap.String("request_id", GetRequestIDFromContext(r.Context())))
				_ = utils.WriteTooManyRequests(w, retryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// MemoryRateLimitStore is a process-local token bucket per key
type MemoryRateLimitStore struct {
	mu       sync.Mutex
	limiters map[string]*memoryLimiter
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

type memoryLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewMemoryRateLimitStore allows requestsPerMinute sustained with the given burst.
// Buckets idle for longer than ten minutes are evicted.
func NewMemoryRateLimitStore(requestsPerMinute, burst int) *MemoryRateLimitStore {
	return &MemoryRateLimitStore{
		limiters: make(map[string]*memoryLimiter),
		limit:    rate.Limit(float64(requestsPerMinute) / 60.0),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

// Allow consumes one token for key
func (s *MemoryRateLimitStore) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	s.evictIdle(now)
	entry, ok := s.limiters[key]
	if !ok {
		entry = &memoryLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = entry
	}
	entry.lastSeen = now
	s.mu.Unlock()

	reservation := entry.limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return false, 0, nil
	}
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

// Len returns the number of tracked keys
func (s *MemoryRateLimitStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func (s *MemoryRateLimitStore) evictIdle(now time.Time) {
	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > s.idleTTL {
			delete(s.limiters, key)
		}
	}
}

// RedisRateLimitStore is a fixed-window counter shared by every instance
type RedisRateLimitStore struct {
	client redis.Scripter
	limit  int
	window time.Duration
	prefix string
}

// NewRedisRateLimitStore allows limit requests per window for each key
func NewRedisRateLimitStore(client redis.Scripter, limit int, window time.Duration) *RedisRateLimitStore {
	return &RedisRateLimitStore{
		client: client,
		limit:  limit,
		window: window,
		prefix: "rl:security-logs:",
	}
}

// NewRedisClient builds a client from a redis:// URL
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

var luaFixedWindow = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then redis.call('PEXPIRE', KEYS[1], ARGV[1]) end
local ttl = redis.call('PTTL', KEYS[1])
return {current, ttl}
`)

// Allow increments the window counter for key
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := luaFixedWindow.Run(ctx, s.client, []string{s.prefix + key}, s.window.Milliseconds()).Result()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script failed: %w", err)
	}
	current, ttl, err := parseWindowResult(res)
	if err != nil {
		return false, 0, err
	}
	return evaluateWindow(current, ttl, s.limit)
}

func parseWindowResult(res interface{}) (current int64, ttl time.Duration, err error) {
	arr, ok := res.([]interface{})
	if !ok || len(arr) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limit script result: %v", res)
	}
	current, ok = arr[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limit counter: %v", arr[0])
	}
	ttlMs, ok := arr[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limit ttl: %v", arr[1])
	}
	return current, time.Duration(ttlMs) * time.Millisecond, nil
}

func evaluateWindow(current int64, ttl time.Duration, limit int) (bool, time.Duration, error) {
	if current <= int64(limit) {
		return true, 0, nil
	}
	if ttl < 0 {
		ttl = 0
	}
	return false, ttl, nil
}
