// Package observability provides Prometheus metrics, OpenTelemetry tracing
// setup and HTTP middleware for monitoring aython.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// SandboxBuckets covers snippet runs from 10ms up to container builds.
var SandboxBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aython_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds by method and route.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aython_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// InFlightRequests tracks HTTP requests currently being served.
	InFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "aython_requests_in_flight",
			Help: "In-flight requests",
		},
	)

	// RPCCallsTotal counts JSON-RPC calls by method and result code (0 = success).
	RPCCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aython_rpc_calls_total",
			Help: "JSON-RPC calls",
		},
		[]string{"method", "code"},
	)

	// ProviderRequestsTotal counts requests sent to generation backends.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aython_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ProviderLatency records backend provider latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aython_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "model"},
	)

	// ProviderTokensTotal counts tokens processed by direction (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aython_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "model", "direction"},
	)

	// GenerationAttemptsTotal counts generation attempts by outcome
	// (valid, invalid, backend_error).
	GenerationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aython_generation_attempts_total",
			Help: "Generation attempts",
		},
		[]string{"outcome"},
	)

	// GenerationsTotal counts generation loop results
	// (success, exhausted, cancelled, panic).
	GenerationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aython_generations_total",
			Help: "Generation loop results",
		},
		[]string{"result"},
	)

	// SandboxExecutionsTotal counts sandbox runs by sandbox kind and outcome
	// (ok, nonzero, timeout, failure).
	SandboxExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aython_sandbox_executions_total",
			Help: "Sandbox executions",
		},
		[]string{"sandbox", "outcome"},
	)

	// SandboxDuration records sandbox run wall time in seconds.
	SandboxDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aython_sandbox_duration_seconds",
			Help:    "Sandbox execution duration",
			Buckets: SandboxBuckets,
		},
		[]string{"sandbox"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aython_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		InFlightRequests,
		RPCCallsTotal,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		GenerationAttemptsTotal,
		GenerationsTotal,
		SandboxExecutionsTotal,
		SandboxDuration,
		RateLimitRejectedTotal,
	)
}
