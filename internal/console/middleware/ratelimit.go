package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tair/product-console/pkg/logger"
)

// RateLimiter caps console actions per page session with a redis sliding window
type RateLimiter struct {
	redis       *redis.Client
	maxRequests int
	window      time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(redisClient *redis.Client, maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:       redisClient,
		maxRequests: maxRequests,
		window:      window,
	}
}

// Middleware returns the rate limiting handler. Without redis, or with a
// limit of zero, every request passes.
func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl.redis == nil || rl.maxRequests <= 0 {
			return c.Next()
		}

		identifier := "ip:" + c.IP()
		if id := SessionID(c); id != "" {
			identifier = "session:" + id
		}

		allowed, remaining, resetTime, err := rl.checkLimit(c.UserContext(), identifier)
		if err != nil {
			logger.Error(c.UserContext()).
				Err(err).
				Str("identifier", identifier).
				Msg("Rate limiter error")
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.maxRequests))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

		if !allowed {
			logger.Warn(c.UserContext()).
				Str("identifier", identifier).
				Int("limit", rl.maxRequests).
				Msg("Rate limit exceeded")

			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": fiber.Map{
					"kind":    "RateLimited",
					"message": fmt.Sprintf("Too many requests. Try again in %v", time.Until(resetTime).Round(time.Second)),
				},
			})
		}

		return c.Next()
	}
}

// checkLimit records this request and reports whether it fits the window
func (rl *RateLimiter) checkLimit(ctx context.Context, identifier string) (bool, int, time.Time, error) {
	key := "console:ratelimit:" + identifier
	now := time.Now()
	windowStart := now.Add(-rl.window)

	pipe := rl.redis.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: now.UnixNano(),
	})
	pipe.Expire(ctx, key, rl.window+time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, time.Time{}, err
	}

	count := countCmd.Val()
	remaining := rl.maxRequests - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}

	return count < int64(rl.maxRequests), remaining, now.Add(rl.window), nil
}
