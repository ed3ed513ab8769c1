// Package middleware provides HTTP middleware for the coordinator and
// presence-node gin routers. This file logs each request as a structured event, correlated
// by request id, at a level matching its response status.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/streamspace/presence/internal/logger"
)

// StructuredLoggerConfig controls which requests StructuredLogger logs and
// how much detail it includes.
type StructuredLoggerConfig struct {
	// SkipPaths lists request paths to omit from logging entirely.
	SkipPaths []string

	// LogQuery includes the raw query string when true.
	LogQuery bool
}

// DefaultStructuredLoggerConfig skips /health and logs query strings.
func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{
		SkipPaths: []string{"/health"},
		LogQuery:  true,
	}
}

// StructuredLogger logs every request with DefaultStructuredLoggerConfig.
func StructuredLogger() gin.HandlerFunc {
	return StructuredLoggerWithConfig(DefaultStructuredLoggerConfig())
}

// StructuredLoggerWithConfig logs requests per cfg.
func StructuredLoggerWithConfig(cfg StructuredLoggerConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if skip[path] {
			c.Next()
			return
		}

		start := time.Now()
		raw := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		event := logger.HTTP().With().
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Logger()

		if cfg.LogQuery && raw != "" {
			event = event.With().Str("query", raw).Logger()
		}
		if len(c.Errors) > 0 {
			event = event.With().Str("errors", c.Errors.String()).Logger()
		}

		switch {
		case status >= 500:
			event.Error().Msg("request completed")
		case status >= 400:
			event.Warn().Msg("request completed")
		default:
			event.Info().Msg("request completed")
		}
	}
}
