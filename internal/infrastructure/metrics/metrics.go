package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Assistant-API Metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"method", "endpoint"},
	)

	// Run status transition counter
	RunTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "api",
			Name:      "run_transitions_total",
			Help:      "Total run status transitions",
		},
		[]string{"to_status"},
	)

	// Run step counter
	RunStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "api",
			Name:      "run_steps_total",
			Help:      "Total run steps created",
		},
		[]string{"step_type"},
	)

	// Tool call counters
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "api",
			Name:      "tool_calls_total",
			Help:      "Total server side tool invocations",
		},
		[]string{"tool_name", "status"},
	)

	// LLM call duration histogram
	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "assistant",
			Subsystem: "api",
			Name:      "llm_call_duration_seconds",
			Help:      "Chat completion call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"model", "status"},
	)

	// Queue depth gauge
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "assistant",
			Subsystem: "api",
			Name:      "queue_depth",
			Help:      "Run task queue depth",
		},
	)

	// Run task counter
	RunTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "assistant",
			Subsystem: "api",
			Name:      "run_tasks_total",
			Help:      "Total run tasks processed",
		},
		[]string{"status"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordRunTransition records a run entering a status
func RecordRunTransition(toStatus string) {
	RunTransitionsTotal.WithLabelValues(toStatus).Inc()
}

// RecordRunStep records a run step creation
func RecordRunStep(stepType string) {
	RunStepsTotal.WithLabelValues(stepType).Inc()
}

// RecordToolCall records a server side tool invocation
func RecordToolCall(toolName, status string) {
	ToolCallsTotal.WithLabelValues(toolName, status).Inc()
}

// RecordLLMCall records a chat completion call
func RecordLLMCall(model, status string, durationSec float64) {
	LLMCallDuration.WithLabelValues(model, status).Observe(durationSec)
}

// SetQueueDepth sets the current queue depth
func SetQueueDepth(depth int) {
	QueueDepth.Set(float64(depth))
}

// RecordRunTask records a run task execution
func RecordRunTask(status string) {
	RunTasksTotal.WithLabelValues(status).Inc()
}
