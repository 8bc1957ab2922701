package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tair/product-console/pkg/logger"
)

// CacheMiddleware caches successful GET responses in redis for ttl. It is
// mounted on read-only routes shared by every session, such as the farm list.
func CacheMiddleware(redisClient *redis.Client, ttl time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if redisClient == nil || ttl <= 0 || c.Method() != fiber.MethodGet {
			return c.Next()
		}

		ctx := c.UserContext()
		cacheKey := generateCacheKey(c)

		cached, err := redisClient.Get(ctx, cacheKey).Bytes()
		if err == nil && len(cached) > 0 {
			logger.Debug(ctx).
				Str("path", c.Path()).
				Str("cache_key", cacheKey).
				Msg("Cache hit")

			c.Set("X-Cache", "HIT")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Send(cached)
		}

		if err := c.Next(); err != nil {
			return err
		}

		if c.Response().StatusCode() != fiber.StatusOK {
			return nil
		}

		body := c.Response().Body()
		if err := redisClient.Set(ctx, cacheKey, body, ttl).Err(); err != nil {
			logger.Warn(ctx).
				Err(err).
				Str("cache_key", cacheKey).
				Msg("Failed to cache response")
		} else {
			logger.Debug(ctx).
				Str("path", c.Path()).
				Dur("ttl", ttl).
				Int("size", len(body)).
				Msg("Response cached")
		}
		c.Set("X-Cache", "MISS")
		return nil
	}
}

func generateCacheKey(c *fiber.Ctx) string {
	hash := sha256.Sum256([]byte(c.Path() + "?" + string(c.Request().URI().QueryString())))
	return "console:cache:" + hex.EncodeToString(hash[:])
}
