// Package observability provides Prometheus metrics for translation
// requests, the credential vault and the MCP server's HTTP surface.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts HTTP requests served by the MCP server by method,
	// status class and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dolmetsch_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dolmetsch_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dolmetsch_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// ProviderRequestsTotal counts HTTP attempts sent to providers. status is
	// "ok" or the error kind.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dolmetsch_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"provider", "mode", "status"},
	)

	// ProviderLatency records provider attempt latency in seconds.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dolmetsch_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "mode"},
	)

	// ProviderTokensTotal counts tokens reported by providers by direction
	// (input/output).
	ProviderTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dolmetsch_provider_tokens_total",
			Help: "Token count",
		},
		[]string{"provider", "direction"},
	)

	// ProtocolFallbacksTotal counts requests repeated with a fallback
	// protocol.
	ProtocolFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dolmetsch_protocol_fallbacks_total",
			Help: "Protocol fallbacks",
		},
		[]string{"from", "to"},
	)

	// StreamFallbacksTotal counts streams abandoned for a single
	// non-streaming request.
	StreamFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dolmetsch_stream_fallbacks_total",
			Help: "Streaming fallbacks",
		},
		[]string{"provider"},
	)

	// AuthRejectionsTotal counts requests refused by the auth middleware,
	// by reason (unauthenticated/rate_limited).
	AuthRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dolmetsch_auth_rejections_total",
			Help: "Requests rejected by authentication or rate limiting",
		},
		[]string{"reason"},
	)

	// VaultKeyDerivationsTotal counts PBKDF2 key derivations.
	VaultKeyDerivationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dolmetsch_vault_key_derivations_total",
			Help: "Vault key derivations",
		},
	)

	// VaultCacheLookupsTotal counts plaintext cache lookups by result
	// (hit/miss).
	VaultCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dolmetsch_vault_cache_lookups_total",
			Help: "Vault cache lookups",
		},
		[]string{"result"},
	)

	// VaultDecryptFailuresTotal counts failed decryptions by error kind.
	VaultDecryptFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dolmetsch_vault_decrypt_failures_total",
			Help: "Vault decrypt failures",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		ProviderRequestsTotal,
		ProviderLatency,
		ProviderTokensTotal,
		ProtocolFallbacksTotal,
		StreamFallbacksTotal,
		AuthRejectionsTotal,
		VaultKeyDerivationsTotal,
		VaultCacheLookupsTotal,
		VaultDecryptFailuresTotal,
	)
}
