package telemetry

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var httpRequests = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "crosstate_http_request_duration_seconds",
	Help:    "HTTP request latency, by route and status.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "route", "status"})

// HTTPMiddleware logs each request and records its latency. Routes are
// labelled by the registered pattern, not the raw path, to keep metric
// cardinality bounded.
func HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		status := c.Writer.Status()
		httpRequests.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())

		slog.InfoContext(c.Request.Context(),
			fmt.Sprintf("http: %s %s -> %d", c.Request.Method, c.Request.URL.Path, status),
			"duration", time.Since(start).String())
	}
}
