package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests handled by the gateway.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	sessionRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_refreshes_total",
			Help: "Session cookie refresh cycles, by outcome.",
		},
		[]string{"outcome"},
	)
)

// PrometheusMiddleware records request counts and latency. The route
// template (FullPath) is used rather than the raw URL to keep label
// cardinality bounded; unmatched routes count under "unmatched".
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// ObserveSessionRefresh counts one relay refresh cycle.
// Outcomes: "user", "anonymous", "error".
func ObserveSessionRefresh(outcome string) {
	sessionRefreshesTotal.WithLabelValues(outcome).Inc()
}
