package middleware

import (
	"github.com/labstack/echo/v4"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UploaderKey is the context key for the caller identity attached
	// to admitted releases
	UploaderKey ContextKey = "uploader"

	// AnonymousUploader is recorded when the identity service supplied
	// no caller
	AnonymousUploader = "anonymous"
)

// ExtractUploader extracts the X-User-ID header set by the identity
// service and stores it in the request context. The value is an opaque
// string; this service performs no authentication of its own.
func ExtractUploader() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uploader := c.Request().Header.Get("X-User-ID")
			if uploader != "" {
				c.Set(string(UploaderKey), uploader)
			}
			return next(c)
		}
	}
}

// GetUploader returns the caller identity from the request context,
// or AnonymousUploader when none was supplied
func GetUploader(c echo.Context) string {
	if uploader, ok := c.Get(string(UploaderKey)).(string); ok && uploader != "" {
		return uploader
	}
	return AnonymousUploader
}
