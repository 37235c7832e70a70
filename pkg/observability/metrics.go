// Package observability holds the Prometheus collectors exported on /metrics.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values shared by the counters below.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeDenied  = "denied"
	OutcomeCached  = "cached"
	OutcomeRefused = "refused"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querygate_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	chatTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_chat_turns_total",
			Help: "Chat turns by outcome.",
		},
		[]string{"outcome"},
	)

	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_query_executions_total",
			Help: "Confirmed query executions by engine and outcome.",
		},
		[]string{"engine", "outcome"},
	)

	queryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querygate_query_duration_seconds",
			Help:    "Query execution latency by engine.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"engine"},
	)

	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_llm_requests_total",
			Help: "Language model requests by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	mcpToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querygate_mcp_tool_calls_total",
			Help: "Calls to tools on the built-in MCP server by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		chatTurnsTotal,
		queryExecutionsTotal,
		queryDurationSeconds,
		llmRequestsTotal,
		mcpToolCallsTotal,
	)
}

func ObserveChatTurn(outcome string) {
	chatTurnsTotal.WithLabelValues(outcome).Inc()
}

// ObserveQueryExecution records one execution. Denied executions never reach
// the engine, so their duration is not observed.
func ObserveQueryExecution(engine, outcome string, elapsed time.Duration) {
	queryExecutionsTotal.WithLabelValues(engine, outcome).Inc()
	if outcome != OutcomeDenied {
		queryDurationSeconds.WithLabelValues(engine).Observe(elapsed.Seconds())
	}
}

func ObserveLLMRequest(provider, outcome string) {
	llmRequestsTotal.WithLabelValues(provider, outcome).Inc()
}

func ObserveMCPToolCall(tool, outcome string) {
	mcpToolCallsTotal.WithLabelValues(tool, outcome).Inc()
}
