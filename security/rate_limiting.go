package security

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RateLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
	log    zerolog.Logger
}

func NewRateLimiter(redisClient *redis.Client, limit int64, window time.Duration, log zerolog.Logger) *RateLimiter {
	if limit <= 0 {
		limit = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		redis:  redisClient,
		limit:  limit,
		window: window,
		log:    log,
	}
}

// SubmitRateLimit caps donation submissions per client IP. Requests go
// through when redis is unavailable.
func (r *RateLimiter) SubmitRateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if r.redis == nil {
				return next(c)
			}

			ctx := c.Request().Context()
			key := fmt.Sprintf("ratelimit:submit:%s", c.RealIP())

			count, err := r.redis.Incr(ctx, key).Result()
			if err != nil {
				r.log.Warn().Err(err).Str("key", key).Msg("rate limit check skipped")
				return next(c)
			}
			if count == 1 {
				if err := r.redis.Expire(ctx, key, r.window).Err(); err != nil {
					r.log.Warn().Err(err).Str("key", key).Msg("rate limit expire")
				}
			}
			if count > r.limit {
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error": "Too many donation attempts. Please try again later.",
				})
			}

			return next(c)
		}
	}
}

// Anti-bot protection
func (r *RateLimiter) AntiBotMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isSuspiciousUserAgent(c.Request().Header.Get("User-Agent")) {
				return c.JSON(http.StatusForbidden, map[string]string{
					"error": "Access denied",
				})
			}
			return next(c)
		}
	}
}

func isSuspiciousUserAgent(ua string) bool {
	ua = strings.ToLower(ua)
	for _, pattern := range []string{"bot", "crawler", "spider", "scraper"} {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
