package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payhub_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payhub_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	authFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payhub_auth_failures_total",
		Help: "Rejected logins and sessions by reason",
	}, []string{"reason"})

	payslipJobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payhub_payslip_job_duration_seconds",
		Help:    "Duration of payslip processing jobs",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})

	payslipSweeps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payhub_payslip_sweep_operations_total",
		Help: "Stale payslips handled by the sweeper, by result",
	}, []string{"result"})

	staffImportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payhub_staff_import_rows_total",
		Help: "CSV staff import rows by result",
	}, []string{"result"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payhub_payslip_queue_depth",
		Help: "Payslip jobs waiting in the queue",
	})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "payhub_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	}, []string{"name"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveAuthFailure counts a rejected login or session.
func ObserveAuthFailure(reason string) {
	authFailures.WithLabelValues(reason).Inc()
}

// ObservePayslipJob records the duration of a processing job with a result label.
func ObservePayslipJob(result string, duration time.Duration) {
	payslipJobDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func ObserveSweep(result string) {
	payslipSweeps.WithLabelValues(result).Inc()
}

// ObserveImportRows adds n rows with the given result to the import counter.
func ObserveImportRows(result string, n int) {
	if n <= 0 {
		return
	}
	staffImportRows.WithLabelValues(result).Add(float64(n))
}

func SetQueueDepth(depth int64) {
	if depth < 0 {
		depth = 0
	}
	queueDepth.Set(float64(depth))
}

func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}
