package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UsernameKey is the context key for storing the authenticated username
	UsernameKey ContextKey = "username"

	// APIKeyKey is the context key for the caller's model-provider API key.
	// Runs forward it on the snapshot so llm and image-gen processors can
	// authenticate as the caller instead of the platform.
	APIKeyKey ContextKey = "api_key"
)

// ExtractUsername extracts the X-User-ID header (and the optional
// X-API-Key header) into the request context. Canvas ownership checks
// downstream key off this username.
//
// Usage:
//
//	e := echo.New()
//	e.Use(middleware.ExtractUsername())
//
// Accessing in handlers:
//
//	username := middleware.GetUsername(c)
func ExtractUsername() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			username := c.Request().Header.Get("X-User-ID")
			if username != "" {
				c.Set(string(UsernameKey), username)
			}

			apiKey := c.Request().Header.Get("X-API-Key")
			if apiKey != "" {
				c.Set(string(APIKeyKey), apiKey)
			}

			return next(c)
		}
	}
}

// ExtractUsernameStrict is a stricter version that rejects requests
// missing the X-User-ID header outright
func ExtractUsernameStrict() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			username := c.Request().Header.Get("X-User-ID")
			if username == "" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error": "X-User-ID header is required",
				})
			}

			c.Set(string(UsernameKey), username)
			if apiKey := c.Request().Header.Get("X-API-Key"); apiKey != "" {
				c.Set(string(APIKeyKey), apiKey)
			}
			return next(c)
		}
	}
}

// GetUsername retrieves the username from the request context.
// Returns empty string if not set.
func GetUsername(c echo.Context) string {
	username := c.Get(string(UsernameKey))
	if username == nil {
		return ""
	}
	return username.(string)
}

// GetAPIKey retrieves the caller's model-provider API key from the request
// context. Empty when the caller did not send one; processors then fall
// back to the platform key.
func GetAPIKey(c echo.Context) string {
	apiKey := c.Get(string(APIKeyKey))
	if apiKey == nil {
		return ""
	}
	return apiKey.(string)
}

// RequireUsername ensures a username exists in context.
// Returns an error response if not found.
func RequireUsername(c echo.Context) (string, error) {
	username := GetUsername(c)
	if username == "" {
		err := c.JSON(http.StatusUnauthorized, map[string]interface{}{
			"error": "authentication required (X-User-ID header missing)",
		})
		return "", err
	}
	return username, nil
}
