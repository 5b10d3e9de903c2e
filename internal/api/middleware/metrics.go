package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/radiorec/radiorec/internal/observability/metrics"
)

// NewMetrics records request counts and latencies by route pattern.
// Server-sent event routes are skipped; they track their own connections.
func NewMetrics(m *metrics.HTTPMetrics, skip func(path string) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil || (skip != nil && skip(c.Path())) {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			m.RecordHTTPRequest(c.Request().Method, path, status, time.Since(start).Seconds())
			if err != nil {
				m.RecordHTTPRequestError(c.Request().Method, path, "handler")
			}
			return err
		}
	}
}
