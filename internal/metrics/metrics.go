// Package metrics exposes Prometheus collectors for the collector service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OutcomeAccepted labels a report that was logged and delivered.
const OutcomeAccepted = "accepted"

var (
	reportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acra_reports_total",
			Help: "Total number of crash reports handled, labeled by outcome (accepted or failed stage).",
		},
		[]string{"outcome"},
	)

	crashLogBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "acra_crash_log_bytes_total",
			Help: "Total number of bytes appended to the crash log.",
		},
	)

	mailDeliveryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acra_mail_delivery_duration_seconds",
			Help:    "Histogram of SMTP delivery latencies, labeled by result.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"result"},
	)

	activeWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "acra_active_workers",
			Help: "Number of workers currently processing a report.",
		},
	)

	queueWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "acra_queue_wait_seconds",
			Help:    "Histogram of time a report waited for a free worker.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveReport increments the report counter for the given outcome.
func ObserveReport(outcome string) {
	reportsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCrashLogAppend records bytes written to the crash log.
func ObserveCrashLogAppend(n int) {
	if n > 0 {
		crashLogBytesTotal.Add(float64(n))
	}
}

// ObserveMailDelivery records the duration of one SMTP send.
func ObserveMailDelivery(err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	mailDeliveryDurationSeconds.WithLabelValues(result).Observe(duration.Seconds())
}

// ObserveQueueWait records how long a job sat in the queue.
func ObserveQueueWait(duration time.Duration) {
	queueWaitSeconds.Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
