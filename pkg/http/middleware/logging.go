package middleware

import (
	"time"

	applogger "CypherFeed/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging emits one debug line per request. It is a no-op when
// no logger is configured; 5xx and slow requests are covered by the
// metrics middleware.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			l.Debug("http request",
				applogger.String("method", c.Request().Method),
				applogger.String("uri", c.Request().RequestURI),
				applogger.String("remote", c.RealIP()),
				applogger.Int("status", c.Response().Status),
				applogger.Duration("latency", time.Since(start)),
			)
			return err
		}
	}
}
