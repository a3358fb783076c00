package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	requestIDHeader = echo.HeaderXRequestID
	requestIDKey    = "request_id"
)

// RequestIDMiddleware reuses a valid incoming X-Request-ID or assigns a
// fresh UUID, and echoes it back on the response.
func RequestIDMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, err := uuid.Parse(c.Request().Header.Get(requestIDHeader))
			if err != nil {
				id = uuid.New()
			}
			c.Set(requestIDKey, id)
			c.Response().Header().Set(requestIDHeader, id.String())
			return next(c)
		}
	}
}

// RequestUUID returns the id assigned by RequestIDMiddleware, or
// uuid.Nil when the middleware did not run.
func RequestUUID(c echo.Context) uuid.UUID {
	if id, ok := c.Get(requestIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.Nil
}

// RequestID is RequestUUID as a string, empty when unset.
func RequestID(c echo.Context) string {
	if id := RequestUUID(c); id != uuid.Nil {
		return id.String()
	}
	return ""
}
