package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apeyolo_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "apeyolo_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apeyolo_model_calls_total",
			Help: "Model gateway calls by model and outcome",
		},
		[]string{"model", "outcome"},
	)

	ModelLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "apeyolo_model_latency_seconds",
			Help:    "Model gateway call latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45, 90, 180},
		},
		[]string{"model"},
	)

	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apeyolo_tool_calls_total",
			Help: "Tool invocations by tool and status",
		},
		[]string{"tool", "status"},
	)

	PlanRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apeyolo_plan_runs_total",
			Help: "Deterministic plan executions by category",
		},
		[]string{"category"},
	)

	ConsensusOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apeyolo_consensus_total",
			Help: "Dual-brain consensus outcomes",
		},
		[]string{"outcome"},
	)

	TickDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apeyolo_ticks_total",
			Help: "Tick decisions",
		},
		[]string{"decision"},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "apeyolo_tick_duration_seconds",
			Help: "Tick duration in seconds",
		},
	)

	PendingProposals = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "apeyolo_pending_proposals",
			Help: "Proposals awaiting human approval",
		},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "apeyolo_active_streams",
			Help: "Open SSE streams",
		},
	)
)
