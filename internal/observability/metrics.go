// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Settlement metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	TradesExecuted    prometheus.Counter
	ProtocolFees      *prometheus.CounterVec
	FeesDistributed   *prometheus.CounterVec
	RevealsInFlight   prometheus.Counter

	// Event metrics
	EventsPublished *prometheus.CounterVec
	WSClients       prometheus.Gauge

	// HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RateLimited         prometheus.Counter

	// Health metrics
	UptimeSeconds prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "intent_settlement"
	}

	return &Metrics{
		// Settlement metrics
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "operations_total",
			Help:      "Total number of settlement operations by outcome",
		}, []string{"operation", "status"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "operation_duration_seconds",
			Help:      "Settlement operation duration in seconds, transaction included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		TradesExecuted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "trades_executed_total",
			Help:      "Total number of executed reveals",
		}),
		ProtocolFees: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "protocol_fees_collected_total",
			Help:      "Protocol fees collected in base units by mint",
		}, []string{"mint"}),
		FeesDistributed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "fees_distributed_total",
			Help:      "Fees paid out in base units by mint and pool",
		}, []string{"mint", "pool"}),
		RevealsInFlight: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "reveal_lock_contended_total",
			Help:      "Reveals rejected because the same commitment was already executing",
		}),

		// Event metrics
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Events handed to a sink by sink and status",
		}, []string{"sink", "status"}),
		WSClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "websocket_clients",
			Help:      "Connected websocket event subscribers",
		}),

		// HTTP metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code",
		}, []string{"route", "method", "code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		RateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),

		// Health metrics
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOperation records the outcome and duration of a settlement operation.
func RecordOperation(operation, status string, seconds float64) {
	DefaultMetrics.OperationsTotal.WithLabelValues(operation, status).Inc()
	DefaultMetrics.OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordTrade records an executed reveal and the fee it collected.
func RecordTrade(mint string, protocolFee uint64) {
	DefaultMetrics.TradesExecuted.Inc()
	DefaultMetrics.ProtocolFees.WithLabelValues(mint).Add(float64(protocolFee))
}

// RecordDistribution records the shares paid out by a settle.
func RecordDistribution(mint string, stakers, treasury, bounty uint64) {
	DefaultMetrics.FeesDistributed.WithLabelValues(mint, "liquidity_stakers").Add(float64(stakers))
	DefaultMetrics.FeesDistributed.WithLabelValues(mint, "treasury").Add(float64(treasury))
	DefaultMetrics.FeesDistributed.WithLabelValues(mint, "mev_bounty").Add(float64(bounty))
}

// RecordRevealContended counts a reveal rejected by the in-flight guard.
func RecordRevealContended() {
	DefaultMetrics.RevealsInFlight.Inc()
}

// RecordPublish records an event delivery attempt.
func RecordPublish(sink string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.EventsPublished.WithLabelValues(sink, status).Inc()
}

// SetWSClients updates the websocket subscriber gauge.
func SetWSClients(n int) {
	DefaultMetrics.WSClients.Set(float64(n))
}

// RecordHTTPRequest records one served request.
func RecordHTTPRequest(route, method, code string, seconds float64) {
	DefaultMetrics.HTTPRequests.WithLabelValues(route, method, code).Inc()
	DefaultMetrics.HTTPRequestDuration.WithLabelValues(route).Observe(seconds)
}

// RecordRateLimited counts a request rejected by the rate limiter.
func RecordRateLimited() {
	DefaultMetrics.RateLimited.Inc()
}
