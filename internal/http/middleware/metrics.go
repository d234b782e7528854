package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pawsense/pawsense-backend/internal/observability"
)

// Metrics records request rate, latency, and the in-flight gauge per route.
// With metrics disabled it degrades to a pass-through.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		m.ApiInflightInc()
		defer m.ApiInflightDec()
		start := time.Now()

		c.Next()

		// The route template keeps label cardinality bounded.
		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
