package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	apiRequestsTotal       *prometheus.CounterVec
	apiLatencySeconds      *prometheus.HistogramVec
	apiErrorsTotal         *prometheus.CounterVec
	gradingsTotal          *prometheus.CounterVec
	gradingDurationSeconds *prometheus.HistogramVec
	gradingQueueDepth      prometheus.Gauge
	judgeCallsTotal        *prometheus.CounterVec
	feedbackAttemptsTotal  *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for the API and
// the grading pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kodelab",
			Name:      "api_requests_total",
			Help:      "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kodelab",
			Name:      "api_latency_seconds",
			Help:      "Latency distribution for API requests.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kodelab",
			Name:      "api_errors_total",
			Help:      "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		gradingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kodelab",
			Subsystem: "grading",
			Name:      "runs_total",
			Help:      "Graded submissions partitioned by terminal verdict.",
		}, []string{"result"})

		gradingDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kodelab",
			Subsystem: "grading",
			Name:      "duration_seconds",
			Help:      "Wall clock time spent grading one submission.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"language"})

		gradingQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kodelab",
			Subsystem: "grading",
			Name:      "in_flight",
			Help:      "Submissions currently being graded by this instance.",
		})

		judgeCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kodelab",
			Subsystem: "judge",
			Name:      "calls_total",
			Help:      "Executor calls made per test case, partitioned by outcome.",
		}, []string{"outcome"})

		feedbackAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kodelab",
			Subsystem: "feedback",
			Name:      "attempts_total",
			Help:      "Feedback generation attempts, partitioned by outcome.",
		}, []string{"outcome"})

		prometheus.MustRegister(
			apiRequestsTotal,
			apiLatencySeconds,
			apiErrorsTotal,
			gradingsTotal,
			gradingDurationSeconds,
			gradingQueueDepth,
			judgeCallsTotal,
			feedbackAttemptsTotal,
		)
	})
}

// APIRequests exposes the counter for served requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram for requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the counter for error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// GradingRuns exposes the counter for terminal grading verdicts.
func GradingRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return gradingsTotal
}

// GradingDuration exposes the histogram for grading wall time.
func GradingDuration() *prometheus.HistogramVec {
	RegisterMetrics()
	return gradingDurationSeconds
}

// GradingInFlight exposes the gauge for submissions being graded now.
func GradingInFlight() prometheus.Gauge {
	RegisterMetrics()
	return gradingQueueDepth
}

// JudgeCalls exposes the counter for per-case executor calls.
func JudgeCalls() *prometheus.CounterVec {
	RegisterMetrics()
	return judgeCallsTotal
}

// FeedbackAttempts exposes the counter for feedback generation attempts.
func FeedbackAttempts() *prometheus.CounterVec {
	RegisterMetrics()
	return feedbackAttemptsTotal
}
