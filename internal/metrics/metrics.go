// Package metrics exposes Prometheus collectors for the HTTP surface and
// the checkout/webhook domain operations.
package metrics

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
			Name: "petneeds_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "petneeds_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	checkouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petneeds_checkouts_total",
			Help: "Total number of checkout attempts",
		},
		[]string{"status"},
	)

	webhookNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "petneeds_payment_notifications_total",
			Help: "Total number of gateway notifications processed",
		},
		[]string{"transaction_status", "result"},
	)
)

// HTTPMiddleware records request counts and latencies per route. The
// templated route path keeps cardinality bounded.
func HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path, status).
			Observe(time.Since(start).Seconds())
	}
}

// RecordCheckout counts one checkout attempt.
func RecordCheckout(success bool) {
	checkouts.WithLabelValues(outcome(success)).Inc()
}

// RecordWebhook counts one processed gateway notification by its
// transaction status.
func RecordWebhook(transactionStatus string, success bool) {
	if transactionStatus == "" {
		transactionStatus = "unknown"
	}
	webhookNotifications.WithLabelValues(transactionStatus, outcome(success)).Inc()
}

func outcome(success bool) string {
	if success {
		return "ok"
	}
	return "error"
}
