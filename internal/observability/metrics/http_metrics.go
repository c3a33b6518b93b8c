package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics records request counts and latency per route template.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	httpMetricsOnce sync.Once
	httpMetrics     *HTTPMetrics
)

func NewHTTPMetrics(cfg Config) *HTTPMetrics {
	httpMetricsOnce.Do(func() {
		httpMetrics = newHTTPMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return httpMetrics
}

func newHTTPMetrics(registerer prometheus.Registerer, cfg Config) *HTTPMetrics {
	constLabels := constLabelsFor(cfg)
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "donate_http_requests_total",
		Help:        "HTTP requests by route and status code.",
		ConstLabels: constLabels,
	}, []string{"method", "route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "donate_http_request_duration_seconds",
		Help:        "HTTP request latency by route.",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: constLabels,
	}, []string{"method", "route"})
	registerer.MustRegister(requests, duration)
	return &HTTPMetrics{requests: requests, duration: duration}
}

// GinMiddleware observes every request once the handler chain returns.
// Unmatched routes are grouped under a single label value.
func (m *HTTPMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
