package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pawsense/pawsense-backend/internal/platform/ctxutil"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

// RequestLogger emits one line per request after the handler chain ran,
// leveled by response status.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if log == nil {
			return
		}

		status := c.Writer.Status()
		fields := requestFields(c, status, time.Since(start))
		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}

// requestFields assembles the log attributes. The route template is preferred
// over the raw URL path to keep the path field low-cardinality; unmatched
// routes fall back to the URL.
func requestFields(c *gin.Context, status int, took time.Duration) []any {
	path := c.FullPath()
	if path == "" {
		path = c.Request.URL.Path
	}

	fields := []any{
		"method", strings.ToUpper(c.Request.Method),
		"path", path,
		"status", status,
		"duration_ms", took.Milliseconds(),
	}

	if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
		if td.TraceID != "" {
			fields = append(fields, "trace_id", td.TraceID)
		}
		if td.RequestID != "" {
			fields = append(fields, "request_id", td.RequestID)
		}
	}

	switch id := ctxutil.GetIdentity(c.Request.Context()); {
	case id.IsUser():
		fields = append(fields, "user_id", id.UserID.String())
	case id.IsDevice():
		fields = append(fields, "device", id.DeviceExternalID)
	}
	return fields
}
