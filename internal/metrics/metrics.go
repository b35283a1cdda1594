package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	InboundMessages  *prometheus.CounterVec
	OutboundMessages *prometheus.CounterVec
	DroppedMessages  *prometheus.CounterVec
	LLMRequests      *prometheus.CounterVec
	LLMLatency       *prometheus.HistogramVec
	ToolExecutions   *prometheus.CounterVec
	AgentTurns       *prometheus.CounterVec
	ActionsDetected  *prometheus.CounterVec
	HumanHandoffs    prometheus.Counter
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			InboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inbound_messages_total",
				Help:      "Total inbound WhatsApp messages processed.",
			}, []string{"persona"}),
			OutboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbound_messages_total",
				Help:      "Total outbound WhatsApp messages sent.",
			}, []string{"type"}),
			DroppedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_messages_total",
				Help:      "Total inbound messages dropped by the router.",
			}, []string{"reason"}),
			LLMRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Total inference service requests by outcome.",
			}, []string{"kind", "status"}),
			LLMLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "Latency distribution for inference service calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"kind", "status"}),
			ToolExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tool_executions_total",
				Help:      "Total agent tool executions by tool and status.",
			}, []string{"tool", "status"}),
			AgentTurns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_turns_total",
				Help:      "Total agent loop turns by terminal node.",
			}, []string{"node"}),
			ActionsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_detected_total",
				Help:      "Total post-hoc actions detected by type and status.",
			}, []string{"type", "status"}),
			HumanHandoffs: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "human_handoffs_total",
				Help:      "Total conversations handed off to a human.",
			}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.InboundMessages,
			metricsInstance.OutboundMessages,
			metricsInstance.DroppedMessages,
			metricsInstance.LLMRequests,
			metricsInstance.LLMLatency,
			metricsInstance.ToolExecutions,
			metricsInstance.AgentTurns,
			metricsInstance.ActionsDetected,
			metricsInstance.HumanHandoffs,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
