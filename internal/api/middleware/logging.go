// Package middleware provides echo middleware for the control API.
package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/radiorec/radiorec/internal/logger"
)

// NewRequestLogger logs every request at debug level and failures at warn.
func NewRequestLogger(log logger.Logger, skipper middleware.Skipper) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:     skipper,
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if log == nil {
				return nil
			}
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.String("ip", v.RemoteIP),
				logger.Duration("latency", v.Latency),
			}
			if v.Error != nil || v.Status >= 400 {
				if v.Error != nil {
					fields = append(fields, logger.Error(v.Error))
				}
				log.Warn("request failed", fields...)
				return nil
			}
			log.Debug("request", fields...)
			return nil
		},
	})
}
