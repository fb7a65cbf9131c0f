package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// UnmatchedRoute labels admin requests that hit no registered route, so
// scanners cannot grow the path label set.
const UnmatchedRoute = "unmatched"

// AdminAccess logs each admin request and records it in the admin HTTP
// collectors under its route pattern.
func AdminAccess(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = UnmatchedRoute
		}
		status := c.Writer.Status()
		RecordHTTPRequest(c.Request.Method, route, status, elapsed)

		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = logger.Error()
		case status >= 400:
			ev = logger.Warn()
		default:
			ev = logger.Debug()
		}
		ev.Str("method", c.Request.Method).
			Str("route", route).
			Str("url", c.Request.URL.Path).
			Int("status", status).
			Dur("elapsed", elapsed).
			Msg("admin request")
	}
}
