package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/marketplace-console/internal/moderation/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	consoleRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	consoleRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "console_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	consoleTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_transitions_total",
		Help: "Lifecycle transitions by entity kind, transition and result code.",
	}, []string{"kind", "transition", "result"})

	consoleNotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_notifications_total",
		Help: "Notification deliveries by event and success status.",
	}, []string{"event", "status"})

	consoleDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_notify_deliveries_total",
		Help: "Notification endpoint deliveries by event and success status, after retries.",
	}, []string{"event", "status"})

	consoleBulkItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_bulk_items_total",
		Help: "Items processed by bulk operations by operation and result.",
	}, []string{"operation", "result"})

	consoleHealthChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_health_checks_total",
		Help: "Dependency checks by dependency and result.",
	}, []string{"dependency", "result"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		consoleRequestsTotal.WithLabelValues(method, path, status).Inc()
		consoleRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordTransition records a transition attempt. An empty code is a success.
func RecordTransition(kind model.Kind, name model.TransitionName, code model.ErrorCode) {
	result := "ok"
	if code != "" {
		result = string(code)
	}
	consoleTransitionsTotal.WithLabelValues(string(kind), string(name), result).Inc()
}

// RecordNotification records a notification delivery attempt.
func RecordNotification(event model.EventType, success bool) {
	consoleNotificationsTotal.WithLabelValues(string(event), outcome(success)).Inc()
}

// RecordDelivery records the final outcome of a notification endpoint delivery.
func RecordDelivery(event model.EventType, success bool) {
	consoleDeliveriesTotal.WithLabelValues(string(event), outcome(success)).Inc()
}

// RecordHealthCheck records a dependency check result.
func RecordHealthCheck(dependency string, success bool) {
	consoleHealthChecksTotal.WithLabelValues(dependency, outcome(success)).Inc()
}

func recordBulk(operation string, succeeded, failed int) {
	consoleBulkItemsTotal.WithLabelValues(operation, "success").Add(float64(succeeded))
	consoleBulkItemsTotal.WithLabelValues(operation, "failure").Add(float64(failed))
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
