package middleware

import (
	"context"

	"github.com/erp/fulfillment/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// Profiling labels CPU samples taken while serving a request with the
// method and route pattern. Unmatched routes and /health are left unlabelled.
func Profiling(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if !enabled || route == "" || route == "/health" {
			c.Next()
			return
		}

		labels := map[string]string{
			telemetry.ProfilingLabelMethod: c.Request.Method,
			telemetry.ProfilingLabelRoute:  route,
		}
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
