package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/neardup/metrics"
)

// Metrics records request counts and latency per route template. Requests
// that matched no route are grouped under "unmatched".
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.ObserveRequest(path, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
