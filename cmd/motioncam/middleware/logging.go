package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs one line per request through slog. Long-lived streams are
// logged when they end.
func RequestLogger(c *gin.Context) {
	start := time.Now()
	c.Next()

	level := slog.LevelDebug
	if c.Writer.Status() >= 500 {
		level = slog.LevelError
	} else if c.Writer.Status() >= 400 {
		level = slog.LevelWarn
	}
	slog.Log(c.Request.Context(), level, "HTTP request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"took", time.Since(start),
		"remote", c.ClientIP(),
	)
}
