// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HourRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "club_hour_requests_total",
		Help: "Hour request lifecycle transitions.",
	}, []string{"action"})

	HoursCredited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "club_hours_credited_total",
		Help: "Hours added to student balances on approval.",
	}, []string{"bucket"})

	BalanceAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "club_balance_adjustments_total",
		Help: "Manual balance adjustments by admins.",
	}, []string{"kind"})

	AttendanceSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "club_attendance_submissions_total",
		Help: "Meeting check-in attempts by outcome.",
	}, []string{"result"})

	PhotoUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "club_photo_uploads_total",
		Help: "Proof photo copies to storage and the mirror by outcome.",
	}, []string{"target", "result"})

	QueueMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "club_queue_messages_total",
		Help: "Background jobs processed by type and outcome.",
	}, []string{"type", "result"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "club_http_request_duration_seconds",
		Help:    "API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Result labels an outcome from an error.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// GinMiddleware records request latency by matched route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPDuration.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
