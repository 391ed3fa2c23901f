package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Payment Gateway Metrics
	gatewayCallsTotal   *prometheus.CounterVec
	gatewayCallDuration *prometheus.HistogramVec

	// Exchange Metrics
	exchangeCallsTotal   *prometheus.CounterVec
	exchangeCallDuration *prometheus.HistogramVec

	// Chain Verifier Metrics
	verifierChecksTotal     *prometheus.CounterVec
	verifierAttemptsPerSwap *prometheus.HistogramVec

	// Swap Workflow Metrics
	swapsStartedTotal    *prometheus.CounterVec
	swapsFinalizedTotal  *prometheus.CounterVec
	swapWorkflowDuration *prometheus.HistogramVec
	swapCompensations    *prometheus.CounterVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Payment Gateway Metrics
		gatewayCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_calls_total",
				Help: "Total number of payment gateway calls by operation and status",
			},
			[]string{"operation", "status"},
		),
		gatewayCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_call_duration_seconds",
				Help:    "Duration of payment gateway calls in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"operation"},
		),

		// Exchange Metrics
		exchangeCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "exchange_calls_total",
				Help: "Total number of exchange API calls by operation and status",
			},
			[]string{"operation", "status"},
		),
		exchangeCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "exchange_call_duration_seconds",
				Help:    "Duration of exchange API calls in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"operation"},
		),

		// Chain Verifier Metrics
		verifierChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_checks_total",
				Help: "Total number of chain explorer lookups by result",
			},
			[]string{"result"},
		),
		verifierAttemptsPerSwap: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "verifier_attempts_per_swap",
				Help:    "Number of explorer polls needed to settle a verification",
				Buckets: []float64{1, 2, 3, 5, 10},
			},
			[]string{"found"},
		),

		// Swap Workflow Metrics
		swapsStartedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swaps_started_total",
				Help: "Total number of swap workflows started by direction",
			},
			[]string{"direction"},
		),
		swapsFinalizedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swaps_finalized_total",
				Help: "Total number of swap workflows finalized by direction and outcome",
			},
			[]string{"direction", "outcome"},
		),
		swapWorkflowDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "swap_workflow_duration_seconds",
				Help:    "Duration of swap workflow execution in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"direction", "outcome"},
		),
		swapCompensations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "swap_compensations_total",
				Help: "Total number of gateway reservations released after a failed commit",
			},
			[]string{"direction", "status"},
		),

		// Database Metrics
		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		// HTTP Metrics
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Gateway metric helpers

// RecordGatewayCall records a payment gateway call with duration.
func (m *Metrics) RecordGatewayCall(operation, status string, duration float64) {
	m.gatewayCallsTotal.WithLabelValues(operation, status).Inc()
	m.gatewayCallDuration.WithLabelValues(operation).Observe(duration)
}

// Exchange metric helpers

// RecordExchangeCall records an exchange API call with duration.
func (m *Metrics) RecordExchangeCall(operation, status string, duration float64) {
	m.exchangeCallsTotal.WithLabelValues(operation, status).Inc()
	m.exchangeCallDuration.WithLabelValues(operation).Observe(duration)
}

// Verifier metric helpers

// RecordVerifierCheck records a single chain explorer lookup.
func (m *Metrics) RecordVerifierCheck(result string) {
	m.verifierChecksTotal.WithLabelValues(result).Inc()
}

// RecordVerifierAttempts records how many polls a verification took.
func (m *Metrics) RecordVerifierAttempts(found bool, attempts int) {
	label := "false"
	if found {
		label = "true"
	}
	m.verifierAttemptsPerSwap.WithLabelValues(label).Observe(float64(attempts))
}

// Swap workflow metric helpers

// RecordSwapStarted records a swap workflow start.
func (m *Metrics) RecordSwapStarted(direction string) {
	m.swapsStartedTotal.WithLabelValues(direction).Inc()
}

// RecordSwapFinalized records a swap workflow finish with duration.
func (m *Metrics) RecordSwapFinalized(direction, outcome string, duration float64) {
	m.swapsFinalizedTotal.WithLabelValues(direction, outcome).Inc()
	m.swapWorkflowDuration.WithLabelValues(direction, outcome).Observe(duration)
}

// RecordSwapCompensation records a gateway reservation release attempt.
func (m *Metrics) RecordSwapCompensation(direction, status string) {
	m.swapCompensations.WithLabelValues(direction, status).Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

// Helper functions

func statusCodeToString(code int) string {
	// Group status codes by class
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
