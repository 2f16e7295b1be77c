package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filedeck_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "filedeck_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "route"},
	)

	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filedeck_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"method", "result"},
	)

	contentBytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filedeck_content_bytes_uploaded_total",
			Help: "Total bytes uploaded",
		},
	)

	shareDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filedeck_share_downloads_total",
			Help: "Total downloads via public links",
		},
		[]string{"kind"},
	)
)

// Metrics records one sample per request, labelled by route
// pattern rather than raw path.
func Metrics(service string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		route := c.Route().Path
		status := statusOf(c, err)
		httpRequestsTotal.WithLabelValues(service, c.Method(), route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(service, c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

func RecordAuthAttempt(method string, ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	authAttemptsTotal.WithLabelValues(method, result).Inc()
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

func RecordUpload(bytes int64) {
	contentBytesUploaded.Add(float64(bytes))
}

// RecordShareDownload counts one public download; kind is file or folder.
func RecordShareDownload(kind string) {
	shareDownloadsTotal.WithLabelValues(kind).Inc()
}
