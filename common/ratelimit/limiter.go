package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the counter for KEYS[1] and starts its window on first use.
// Returns {allowed, current_count, limit, retry_after_ms}.
const fixedWindowScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[2])
end
local limit = tonumber(ARGV[1])
if current > limit then
  return {0, current, limit, ttl}
end
return {1, current, limit, 0}
`

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Result contains the outcome of a rate limit check
type Result struct {
	Allowed    bool          // Whether the request is allowed
	Count      int64         // Requests seen in the current window
	Limit      int64         // The limit that was checked
	RetryAfter time.Duration // Time until the window resets (0 if allowed)
}

// Limiter counts requests per key in fixed windows
type Limiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (Result, error)
}

// RedisLimiter shares counters between processes using Redis + Lua
type RedisLimiter struct {
	redis  *goredis.Client
	script *goredis.Script
	logger Logger
}

// NewRedisLimiter creates a limiter backed by redisClient
func NewRedisLimiter(redisClient *goredis.Client, logger Logger) *RedisLimiter {
	return &RedisLimiter{
		redis:  redisClient,
		script: goredis.NewScript(fixedWindowScript),
		logger: logger,
	}
}

// Allow runs the fixed window script atomically
func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) (Result, error) {
	raw, err := r.script.Run(ctx, r.redis, []string{key}, limit, window.Milliseconds()).Result()
	if err != nil {
		r.logger.Error("rate limit check failed", "key", key, "error", err)
		return Result{}, fmt.Errorf("rate limit check failed: %w", err)
	}

	// {allowed, current_count, limit, retry_after_ms}
	values, ok := raw.([]interface{})
	if !ok || len(values) != 4 {
		return Result{}, fmt.Errorf("unexpected script result format")
	}
	ints := make([]int64, len(values))
	for i, v := range values {
		n, ok := v.(int64)
		if !ok {
			return Result{}, fmt.Errorf("unexpected script result value %v", v)
		}
		ints[i] = n
	}

	result := Result{
		Allowed:    ints[0] == 1,
		Count:      ints[1],
		Limit:      ints[2],
		RetryAfter: time.Duration(ints[3]) * time.Millisecond,
	}
	r.log(key, result)
	return result, nil
}

// Reset clears a counter
func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	return r.redis.Del(ctx, key).Err()
}

func (r *RedisLimiter) log(key string, result Result) {
	if !result.Allowed {
		r.logger.Warn("rate limit exceeded",
			"key", key,
			"current", result.Count,
			"limit", result.Limit,
			"retry_after", result.RetryAfter)
		return
	}
	r.logger.Debug("rate limit check passed",
		"key", key,
		"current", result.Count,
		"limit", result.Limit)
}

// MemoryLimiter keeps counters in process
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow
	now     func() time.Time
}

type fixedWindow struct {
	count   int64
	resetAt time.Time
}

// NewMemoryLimiter creates an in-process limiter
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*fixedWindow),
		now:     time.Now,
	}
}

// Allow counts one request for key
func (m *MemoryLimiter) Allow(_ context.Context, key string, limit int64, window time.Duration) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &fixedWindow{resetAt: now.Add(window)}
		m.windows[key] = w
	}
	w.count++

	if w.count > limit {
		return Result{Count: w.count, Limit: limit, RetryAfter: w.resetAt.Sub(now)}, nil
	}
	return Result{Allowed: true, Count: w.count, Limit: limit}, nil
}
