package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"cityalert/internal/failure"
	"cityalert/internal/logger"

	"github.com/gin-gonic/gin"
)

// Recovery turns a handler panic into a 500 with the same error body the
// alert and session handlers use. The session id, when routed, is logged
// with the stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			ctx := c.Request.Context()
			if id := c.Param("id"); id != "" {
				ctx = logger.WithLogFields(ctx, logger.LogFields{SessionID: logger.Ptr(id)})
			}
			slog.ErrorContext(ctx, "handler panic",
				"panic", rec,
				"route", c.FullPath(),
				"stack", logger.Truncate(string(debug.Stack()), 4096),
			)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "internal server error",
				"kind":  failure.KindUnknown.String(),
			})
		}()
		c.Next()
	}
}
