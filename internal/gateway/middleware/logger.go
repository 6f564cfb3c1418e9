package middleware

import (
	"log/slog"
	"time"

	"cityalert/internal/logger"

	"github.com/gin-gonic/gin"
)

// Logger writes one line per request and opens a span around it so the
// Incident and Conversational API spans nest under the request.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		sc := logger.StartSpan(c.Request.Context(), c.Request.Method+" "+c.FullPath())
		defer sc.End()
		ctx := logger.WithLogFields(sc.Context(), logger.LogFields{Component: "cityalert.gateway"})
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		// handlers may have enriched the context
		ctx = c.Request.Context()
		switch {
		case status >= 500:
			slog.ErrorContext(ctx, "request failed", attrs...)
		case status >= 400:
			slog.WarnContext(ctx, "request error", attrs...)
		default:
			slog.InfoContext(ctx, "request", attrs...)
		}
	}
}
