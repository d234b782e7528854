package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/pawsense/pawsense-backend/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
)

// AttachTraceContext resolves trace and request IDs for the request and
// propagates them to the request context, the gin keys, and the response
// headers. Callers that send their own IDs keep them, so a retrying client
// correlates across attempts.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := resolveTraceID(c)
		reqID := headerOrNew(c, headerRequestID)

		ctx := ctxutil.WithTraceData(c.Request.Context(), &ctxutil.TraceData{
			TraceID:   traceID,
			RequestID: reqID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Set("trace_id", traceID)
		c.Set("request_id", reqID)
		c.Writer.Header().Set(headerTraceID, traceID)
		c.Writer.Header().Set(headerRequestID, reqID)
		c.Next()
	}
}

// resolveTraceID prefers the caller's header, then the active OTel span, then
// mints a fresh ID.
func resolveTraceID(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader(headerTraceID)); v != "" {
		return v
	}
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return uuid.New().String()
}

func headerOrNew(c *gin.Context, header string) string {
	if v := strings.TrimSpace(c.GetHeader(header)); v != "" {
		return v
	}
	return uuid.New().String()
}
