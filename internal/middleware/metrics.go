package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bi-platform/apikeys/internal/telemetry"
)

// MetricsMiddleware records http_requests_total and http_request_duration_seconds for every
// request except those whose route template is listed in skip (probes, typically).
//
// The path label is the matched route template, not the raw URL, so key ids never become
// label values. Unmatched requests use "<no-route>".
func MetricsMiddleware(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}
		if skipped[path] {
			return
		}

		method := c.Request.Method
		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
