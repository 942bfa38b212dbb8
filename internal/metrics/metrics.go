// Package metrics exposes pipeline counters over a Prometheus endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so callers never branch on enablement.
type Metrics struct {
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	gateRejects  *prometheus.CounterVec
	hookBlocks   prometheus.Counter
	prompts      prometheus.Counter
	timeouts     prometheus.Counter
	remoteCalls  *prometheus.CounterVec
}

// New registers the pipeline collectors with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "patina",
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool name and terminal status.",
		}, []string{"tool", "status"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "patina",
			Name:      "tool_duration_seconds",
			Help:      "Wall time of tool execution.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		gateRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "patina",
			Name:      "gate_rejections_total",
			Help:      "Calls stopped before execution, by gate.",
		}, []string{"gate"}),
		hookBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "patina",
			Name:      "hook_blocks_total",
			Help:      "Calls blocked by an exit-2 hook.",
		}),
		prompts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "patina",
			Name:      "permission_prompts_total",
			Help:      "First-time approval prompts shown.",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "patina",
			Name:      "tool_timeouts_total",
			Help:      "Executions killed at their deadline.",
		}),
		remoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "patina",
			Name:      "remote_calls_total",
			Help:      "Calls dispatched to capability servers.",
		}, []string{"server", "outcome"}),
	}
	reg.MustRegister(
		m.toolCalls, m.toolDuration, m.gateRejects,
		m.hookBlocks, m.prompts, m.timeouts, m.remoteCalls,
	)
	return m
}

// ObserveCall records a terminal result for a tool.
func (m *Metrics) ObserveCall(toolName, status string, seconds float64) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(toolName, status).Inc()
	if seconds >= 0 {
		m.toolDuration.WithLabelValues(toolName).Observe(seconds)
	}
}

// GateRejected records a call stopped at a pipeline gate.
func (m *Metrics) GateRejected(gate string) {
	if m == nil {
		return
	}
	m.gateRejects.WithLabelValues(gate).Inc()
}

// HookBlocked records an exit-2 hook block.
func (m *Metrics) HookBlocked() {
	if m == nil {
		return
	}
	m.hookBlocks.Inc()
}

// Prompted records a first-time approval prompt.
func (m *Metrics) Prompted() {
	if m == nil {
		return
	}
	m.prompts.Inc()
}

// TimedOut records a deadline kill.
func (m *Metrics) TimedOut() {
	if m == nil {
		return
	}
	m.timeouts.Inc()
}

// RemoteCall records a dispatch to a capability server.
func (m *Metrics) RemoteCall(serverName, outcome string) {
	if m == nil {
		return
	}
	m.remoteCalls.WithLabelValues(serverName, outcome).Inc()
}
