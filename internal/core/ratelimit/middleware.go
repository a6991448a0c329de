package ratelimit

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// KeyFunc picks the bucket a request counts against.
type KeyFunc func(c *fiber.Ctx) string

// Middleware rejects requests over the limit with 429. Limiter errors let
// the request through.
func Middleware(limiter Limiter, keyFn KeyFunc) fiber.Handler {
	if keyFn == nil {
		keyFn = func(c *fiber.Ctx) string { return c.IP() }
	}

	return func(c *fiber.Ctx) error {
		key := keyFn(c)
		if key == "" {
			key = c.IP()
		}

		res, err := limiter.Allow(c.UserContext(), key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("⚠️ Rate limiter unavailable, allowing request")
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please slow down",
			})
		}
		return c.Next()
	}
}
