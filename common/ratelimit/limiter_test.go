package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

func TestMemoryLimiter_FixedWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter()
	l.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 1; i <= 2; i++ {
		res, err := l.Allow(ctx, "k", 2, time.Second)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, int64(i), res.Count)
	}

	now = now.Add(300 * time.Millisecond)
	res, err := l.Allow(ctx, "k", 2, time.Second)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 700*time.Millisecond, res.RetryAfter)

	// other keys have their own window
	res, _ = l.Allow(ctx, "other", 2, time.Second)
	assert.True(t, res.Allowed)

	now = now.Add(time.Second)
	res, _ = l.Allow(ctx, "k", 2, time.Second)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.Count)
}

func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	ctx := context.Background()
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	defer client.Close()

	l := NewRedisLimiter(client, nopLogger{})
	key := "rate_limit:test:" + time.Now().Format(time.RFC3339Nano)
	defer l.Reset(ctx, key)

	for i := 0; i < 3; i++ {
		res, err := l.Allow(ctx, key, 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}

	res, err := l.Allow(ctx, key, 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(4), res.Count)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}
