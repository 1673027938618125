package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total inbound HTTP requests on the gin services
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "endpoint", "status"},
	)

	// RequestDuration tracks inbound HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "endpoint"},
	)

	// APIRequestsTotal tracks outbound calls to the payment gateway
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paygate_api_requests_total",
			Help: "Total number of requests sent to the payment gateway",
		},
		[]string{"method", "resource", "outcome"},
	)

	// APIRequestDuration tracks outbound call latency
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "paygate_api_request_duration_seconds",
			Help:    "Payment gateway request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "resource"},
	)

	// CancellationsTotal tracks cancellation attempts per target and outcome
	CancellationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paygate_cancellations_total",
			Help: "Total number of cancellation requests by target and outcome",
		},
		[]string{"target", "outcome"},
	)

	// ToleratedErrorsTotal tracks gateway rejections absorbed during allocation
	ToleratedErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "paygate_tolerated_errors_total",
			Help: "Gateway errors treated as nothing to do during cancel allocation",
		},
		[]string{"phase", "code"},
	)

	// CancelledAmount tracks amounts cancelled through the client
	CancelledAmount = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "paygate_cancelled_amount",
			Help:    "Cancelled amounts in payment currency units",
			Buckets: []float64{10, 50, 100, 500, 1000, 5000},
		},
	)

	// CircuitBreakerState tracks circuit breaker state (0=closed, 1=open, 2=half-open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"service", "circuit_name"},
	)

	// CircuitBreakerFailures tracks circuit breaker failures
	CircuitBreakerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of circuit breaker failures",
		},
		[]string{"service", "circuit_name"},
	)

	// BulkheadActiveRequests tracks active requests in bulkhead
	BulkheadActiveRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bulkhead_active_requests",
			Help: "Number of active requests in bulkhead",
		},
		[]string{"service", "bulkhead_name"},
	)

	// BulkheadRejectedRequests tracks rejected requests by bulkhead
	BulkheadRejectedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkhead_rejected_requests_total",
			Help: "Total number of rejected requests by bulkhead",
		},
		[]string{"service", "bulkhead_name"},
	)

	// SandboxTransactionsTotal tracks transactions booked by the sandbox gateway
	SandboxTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandbox_transactions_total",
			Help: "Transactions processed by the sandbox gateway",
		},
		[]string{"type", "status"},
	)

	// ChaosFailureRate tracks chaos engineering failure simulations
	ChaosFailureRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chaos_failure_enabled",
			Help: "Whether chaos failure mode is enabled (1=enabled, 0=disabled)",
		},
		[]string{"service"},
	)

	// ChaosSlowMode tracks slow response simulation
	ChaosSlowMode = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chaos_slow_mode_enabled",
			Help: "Whether chaos slow mode is enabled (1=enabled, 0=disabled)",
		},
		[]string{"service"},
	)

	// MerchantOrdersTotal tracks merchant checkouts by status
	MerchantOrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchant_orders_total",
			Help: "Total number of merchant checkouts",
		},
		[]string{"status"},
	)
)

// PrometheusMiddleware creates a Gin middleware for automatic metrics collection
func PrometheusMiddleware(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		RequestsTotal.WithLabelValues(
			serviceName,
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()

		RequestDuration.WithLabelValues(
			serviceName,
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

// ObserveAPICall records one outbound gateway call
func ObserveAPICall(method, resource, outcome string, started time.Time) {
	APIRequestsTotal.WithLabelValues(method, resource, outcome).Inc()
	APIRequestDuration.WithLabelValues(method, resource).Observe(time.Since(started).Seconds())
}
