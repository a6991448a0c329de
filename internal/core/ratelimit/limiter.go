package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Result describes the state of a key's window after a hit.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts hits per key in fixed windows
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

func newResult(count int64, limit int, resetAt time.Time) Result {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

// MemoryLimiter keeps windows in process memory. Suitable for a single
// instance or for tests.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	count   int64
	resetAt time.Time
}

// NewMemoryLimiter creates an in-memory limiter
func NewMemoryLimiter(limit int, windowLen time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		limit:   limit,
		window:  windowLen,
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.window)}
		l.windows[key] = w
		l.sweep(now)
	}
	w.count++

	return newResult(w.count, l.limit, w.resetAt), nil
}

// sweep drops expired windows so idle keys do not accumulate.
func (l *MemoryLimiter) sweep(now time.Time) {
	for k, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, k)
		}
	}
}

// incrScript bumps the counter and starts the window on the first hit.
// Returns {count, pttl}.
var incrScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisLimiter shares windows across instances through Redis.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedisLimiter creates a limiter backed by client
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "imaginario:ratelimit:",
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	res, err := incrScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(res) != 2 {
		return Result{}, fmt.Errorf("unexpected rate limit reply: %v", res)
	}

	resetAt := time.Now().Add(time.Duration(res[1]) * time.Millisecond)
	return newResult(res[0], l.limit, resetAt), nil
}

// NewFromURL returns a Redis limiter when redisURL is reachable and an
// in-memory limiter otherwise.
func NewFromURL(ctx context.Context, redisURL string, limit int, window time.Duration) (Limiter, func() error) {
	noop := func() error { return nil }
	if redisURL == "" {
		return NewMemoryLimiter(limit, window), noop
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Warn().Err(err).Msg("⚠️ Invalid REDIS_URL, using in-memory rate limiter")
		return NewMemoryLimiter(limit, window), noop
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Msg("⚠️ Redis unreachable, using in-memory rate limiter")
		_ = client.Close()
		return NewMemoryLimiter(limit, window), noop
	}

	log.Info().Str("addr", opts.Addr).Msg("✅ Rate limiter connected to Redis")
	return NewRedisLimiter(client, limit, window), client.Close
}
