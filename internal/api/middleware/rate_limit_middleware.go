package middleware

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/crosspost/internal/common"
	"github.com/maheshrc27/crosspost/internal/service"
)

type RateLimitMiddleware struct {
	limiter *service.RateLimiter
}

func NewRateLimitMiddleware(limiter *service.RateLimiter) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter}
}

// RateLimit must run after AuthMiddleware. When the counter store is down
// requests are let through.
func (m *RateLimitMiddleware) RateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key, _ := c.Locals("rate_key").(string)
		if key == "" {
			key = "ip:" + c.IP()
		}

		remaining, err := m.limiter.Allow(c.Context(), key)
		var rl *common.RateLimitError
		switch {
		case errors.As(err, &rl):
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(rl.RetryAfter/time.Second)))
			c.Set("X-RateLimit-Limit", strconv.Itoa(rl.Limit))
			c.Set("X-RateLimit-Remaining", "0")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       rl.Error(),
				"retry_after": int(rl.RetryAfter / time.Second),
			})
		case err != nil:
			slog.Warn("rate limiter unavailable", "error", err)
			return c.Next()
		}

		if limit := m.limiter.Limit(); limit > 0 {
			c.Set("X-RateLimit-Limit", strconv.Itoa(limit))
			c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		}
		return c.Next()
	}
}
