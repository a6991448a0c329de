package ratelimit

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterWindow(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	now := time.Unix(1700000000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	r, _ := l.Allow(ctx, "a")
	assert.True(t, r.Allowed)
	assert.Equal(t, 1, r.Remaining)

	r, _ = l.Allow(ctx, "a")
	assert.True(t, r.Allowed)
	assert.Equal(t, 0, r.Remaining)

	r, _ = l.Allow(ctx, "a")
	assert.False(t, r.Allowed)
	assert.Equal(t, now.Add(time.Minute), r.ResetAt)

	r, _ = l.Allow(ctx, "b")
	assert.True(t, r.Allowed, "keys are independent")

	now = now.Add(time.Minute)
	r, _ = l.Allow(ctx, "a")
	assert.True(t, r.Allowed, "window rolled over")
	assert.Equal(t, 1, r.Remaining)
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (Result, error) {
	return Result{}, errors.New("redis down")
}

func TestMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(NewMemoryLimiter(1, time.Minute), func(c *fiber.Ctx) string {
		return c.Get("X-User")
	}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	hit := func(user string) (int, string) {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode, resp.Header.Get("X-RateLimit-Remaining")
	}

	status, remaining := hit("u1")
	assert.Equal(t, fiber.StatusNoContent, status)
	assert.Equal(t, "0", remaining)

	status, _ = hit("u1")
	assert.Equal(t, fiber.StatusTooManyRequests, status)

	status, _ = hit("u2")
	assert.Equal(t, fiber.StatusNoContent, status)
}

func TestMiddlewareFailsOpen(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(brokenLimiter{}, nil))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestNewFromURLFallsBack(t *testing.T) {
	l, closeFn := NewFromURL(context.Background(), "", 5, time.Minute)
	assert.IsType(t, &MemoryLimiter{}, l)
	assert.NoError(t, closeFn())

	l, _ = NewFromURL(context.Background(), "not a url", 5, time.Minute)
	assert.IsType(t, &MemoryLimiter{}, l)
}

func TestRedisLimiter(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	l := NewRedisLimiter(client, 2, time.Minute)
	key := uuid.NewString()
	ctx := context.Background()

	for i, want := range []bool{true, true, false} {
		r, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, r.Allowed, "hit %d", i+1)
	}
	client.Del(ctx, l.prefix+key)
}
