package api

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/facecheck/internal/observability"
)

// LoggingMiddleware logs each request with slog. Requests that carry a
// student identity (path param or an already-parsed form) get it attached
// to the log line so enrollment and verification traffic can be correlated
// per student.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration", duration.String(),
			"ip", c.ClientIP(),
		}
		if id := requestStudentID(c); id != "" {
			attrs = append(attrs, "student_id", id)
		}
		slog.Info("request", attrs...)

		observability.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			fmt.Sprintf("%d", status),
		).Observe(duration.Seconds())
	}
}

// requestStudentID pulls the student identity out of the request after the
// handler ran. It only reads forms the handler already parsed; logging must
// never force a multipart body parse itself.
func requestStudentID(c *gin.Context) string {
	if id := c.Param("id"); id != "" {
		return id
	}
	if mf := c.Request.MultipartForm; mf != nil {
		if vals := mf.Value["student_id"]; len(vals) > 0 {
			return vals[0]
		}
	}
	return c.Request.PostForm.Get("student_id")
}
