package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/lessonpay-backend/internal/observability"
)

// unmeteredRoutes are scraped or probed too often to be worth a series.
var unmeteredRoutes = map[string]struct{}{
	"/metrics":     {},
	"/healthcheck": {},
	"/readyz":      {},
}

// Metrics records request count and latency per route template. Unmatched
// paths share the "unmatched" label so scanners cannot blow up cardinality.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if _, skip := unmeteredRoutes[route]; skip {
			c.Next()
			return
		}
		if route == "" {
			route = "unmatched"
		}

		m.ApiInflightInc()
		start := time.Now()
		c.Next()
		m.ApiInflightDec()

		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
