package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kp-forecasting/forecast-client/common/ratelimit"
)

// RateLimit rejects requests beyond limit per window and per client IP with 429.
// Limiter errors let the request through.
func RateLimit(limiter ratelimit.Limiter, limit int64, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := "rate_limit:client:" + c.RealIP()

			result, err := limiter.Allow(c.Request().Context(), key, limit, window)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":               "Too many requests",
					"limit":               result.Limit,
					"retry_after_seconds": retryAfter,
				})
			}

			return next(c)
		}
	}
}
