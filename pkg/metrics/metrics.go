package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var (
	registry           *prometheus.Registry
	registryOnce       sync.Once
	defaultMetricsPath = "/metrics"
	metricsEnabled     = true

	// Telemetry backend fetch metrics
	FetchRequestsTotal *prometheus.CounterVec
	FetchPagesTotal    *prometheus.CounterVec
	FetchErrors        *prometheus.CounterVec
	FetchLatency       *prometheus.HistogramVec
	EventsFetched      *prometheus.CounterVec

	// Flattening metrics
	RowsFlattened   prometheus.Counter
	MalformedEvents prometheus.Counter

	// Lifecycle analysis metrics
	CallsSummarized prometheus.Counter
	RTPTimeoutCalls prometheus.Counter

	// HTTP API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// AMQP metrics
	AMQPPublishedMessages *prometheus.CounterVec
	AMQPConnectionErrors  *prometheus.CounterVec
	AMQPConnectionStatus  prometheus.Gauge

	// WebSocket metrics
	WebSocketClients prometheus.Gauge
)

// Init initializes all metrics and registers them with Prometheus
func Init(logger *logrus.Logger) {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		FetchRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calltriage_fetch_requests_total",
				Help: "Total number of telemetry backend search requests",
			},
			[]string{"phase"},
		)

		FetchPagesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calltriage_fetch_pages_total",
				Help: "Total number of result pages fetched from the telemetry backend",
			},
			[]string{"phase"},
		)

		FetchErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calltriage_fetch_errors_total",
				Help: "Total number of failed telemetry backend requests",
			},
			[]string{"phase"},
		)

		FetchLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "calltriage_fetch_latency_seconds",
				Help:    "Latency of telemetry backend search requests",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
			},
			[]string{"phase"},
		)

		EventsFetched = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calltriage_events_fetched_total",
				Help: "Total number of raw events fetched from the telemetry backend",
			},
			[]string{"phase"},
		)

		RowsFlattened = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "calltriage_rows_flattened_total",
				Help: "Total number of events flattened into rows",
			},
		)

		MalformedEvents = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "calltriage_malformed_events_total",
				Help: "Total number of events skipped because they could not be parsed",
			},
		)

		CallsSummarized = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "calltriage_calls_summarized_total",
				Help: "Total number of call lifecycle summaries produced",
			},
		)

		RTPTimeoutCalls = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "calltriage_rtp_timeout_calls_total",
				Help: "Total number of calls implicated in RTP timeout analysis",
			},
		)

		HTTPRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calltriage_http_requests_total",
				Help: "Total number of HTTP API requests",
			},
			[]string{"path", "method", "status"},
		)

		HTTPRequestDuration = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "calltriage_http_request_duration_seconds",
				Help:    "Duration of HTTP API requests",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
			},
			[]string{"path"},
		)

		AMQPPublishedMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calltriage_amqp_published_messages_total",
				Help: "Total number of messages published to AMQP",
			},
			[]string{"message_type"},
		)

		AMQPConnectionErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calltriage_amqp_connection_errors_total",
				Help: "Total number of AMQP connection errors",
			},
			[]string{"error_type"},
		)

		AMQPConnectionStatus = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "calltriage_amqp_connection_status",
				Help: "Status of AMQP connection (1 = connected, 0 = disconnected)",
			},
		)

		WebSocketClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "calltriage_websocket_clients",
				Help: "Number of connected WebSocket clients",
			},
		)

		registry.MustRegister(
			FetchRequestsTotal,
			FetchPagesTotal,
			FetchErrors,
			FetchLatency,
			EventsFetched,

			RowsFlattened,
			MalformedEvents,

			CallsSummarized,
			RTPTimeoutCalls,

			HTTPRequestsTotal,
			HTTPRequestDuration,

			AMQPPublishedMessages,
			AMQPConnectionErrors,
			AMQPConnectionStatus,

			WebSocketClients,
		)

		logger.Info("Prometheus metrics initialized")
	})
}

// GetRegistry returns the prometheus registry
func GetRegistry() *prometheus.Registry {
	return registry
}

// SetMetricsPath sets the HTTP path for metrics endpoint
func SetMetricsPath(path string) {
	defaultMetricsPath = path
}

// EnableMetrics enables or disables metrics collection
func EnableMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IsMetricsEnabled returns whether metrics are enabled
func IsMetricsEnabled() bool {
	return metricsEnabled
}

// RegisterHandler registers the metrics HTTP handler
func RegisterHandler(mux *http.ServeMux) {
	if metricsEnabled {
		handler := promhttp.HandlerFor(
			registry,
			promhttp.HandlerOpts{
				EnableOpenMetrics: true,
				Registry:          registry,
			},
		)
		mux.Handle(defaultMetricsPath, handler)
	}
}

// StartMetrics initializes the metrics service
func StartMetrics(logger *logrus.Logger, enabled bool) {
	if !enabled {
		EnableMetrics(false)
		logger.Info("Metrics collection is disabled")
		return
	}

	Init(logger)
	EnableMetrics(true)
	logger.WithField("metrics_path", defaultMetricsPath).Info("Metrics endpoint initialized")
}
