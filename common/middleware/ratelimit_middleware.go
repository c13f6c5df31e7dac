// Package middleware holds echo middleware shared by HTTP services.
package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/framefold/canvas/common/ratelimit"
)

// fixedWindowSeconds matches the limiter's Lua window for global and
// per-user checks.
const fixedWindowSeconds = 60

// GlobalRateLimit caps requests across every caller so a traffic spike
// degrades into 429s instead of taking the service down. Limiter errors
// fail open; rejecting traffic because Redis blinked would invert the
// protection.
func GlobalRateLimit(limiter *ratelimit.RateLimiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			result, err := limiter.CheckGlobalLimit(c.Request().Context(), limit)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "global_rate_limit_exceeded",
					"message": "Service is experiencing high load. Please try again later.",
					"details": map[string]interface{}{
						"limit":               result.Limit,
						"window_seconds":      fixedWindowSeconds,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}

// UserRateLimit caps requests per authenticated user. It reads the
// "username" context key set by the auth middleware; anonymous requests
// pass through and are left to the global limit. Limiter errors fail open.
func UserRateLimit(limiter *ratelimit.RateLimiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			username, ok := c.Get("username").(string)
			if !ok || username == "" {
				return next(c)
			}

			result, err := limiter.CheckUserLimit(c.Request().Context(), username, limit, fixedWindowSeconds)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "user_rate_limit_exceeded",
					"message": "You have exceeded your request quota. Please wait before trying again.",
					"details": map[string]interface{}{
						"username":            username,
						"limit":               result.Limit,
						"window_seconds":      fixedWindowSeconds,
						"current_count":       result.CurrentCount,
						"retry_after_seconds": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}
