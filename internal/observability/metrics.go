package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bridge's Prometheus collectors. Each instance owns its
// registry so servers and tests never collide on registration.
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.ActivityReceived("message")
//	http.Handle("/metrics", metrics.Handler())
type Metrics struct {
	registry *prometheus.Registry

	// ActivitiesReceived counts inbound activities.
	// Labels: type (message|conversationUpdate|...)
	ActivitiesReceived *prometheus.CounterVec

	// ActivitiesDropped counts inbound activities not forwarded.
	// Labels: reason (duplicate|self|policy|mention|unauthorized|untrusted_service_url)
	ActivitiesDropped *prometheus.CounterVec

	// PolicyDecisions counts access decisions.
	// Labels: kind (personal|channel|groupChat), allowed (true|false)
	PolicyDecisions *prometheus.CounterVec

	// CommandsExecuted counts slash commands.
	// Labels: command
	CommandsExecuted *prometheus.CounterVec

	// AgentRequestDuration measures agent latency in seconds.
	// Labels: status (success|error)
	AgentRequestDuration *prometheus.HistogramVec

	// OutboundSends counts replies sent to Teams.
	// Labels: status (success|error)
	OutboundSends *prometheus.CounterVec

	// Retries counts retried attempts by upstream HTTP status.
	// Labels: target (connector|attachment|agent), status_code
	Retries *prometheus.CounterVec

	// AttachmentDownloads counts attachment fetches.
	// Labels: outcome (success|blocked|too_large|error)
	AttachmentDownloads *prometheus.CounterVec

	// ConversationReferences tracks stored conversation references.
	ConversationReferences prometheus.Gauge
}

// NewMetrics creates the collectors on a fresh registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ActivitiesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamsbridge_activities_received_total",
				Help: "Total number of inbound activities by type",
			},
			[]string{"type"},
		),

		ActivitiesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamsbridge_activities_dropped_total",
				Help: "Total number of inbound activities not forwarded, by reason",
			},
			[]string{"reason"},
		),

		PolicyDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamsbridge_policy_decisions_total",
				Help: "Total number of access policy decisions by conversation kind and outcome",
			},
			[]string{"kind", "allowed"},
		),

		CommandsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamsbridge_commands_executed_total",
				Help: "Total number of slash commands executed",
			},
			[]string{"command"},
		),

		AgentRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "teamsbridge_agent_request_duration_seconds",
				Help:    "Duration of agent requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),

		OutboundSends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamsbridge_outbound_sends_total",
				Help: "Total number of activities sent to Teams by status",
			},
			[]string{"status"},
		),

		Retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamsbridge_retries_total",
				Help: "Total number of retried attempts by target and upstream status code",
			},
			[]string{"target", "status_code"},
		),

		AttachmentDownloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamsbridge_attachment_downloads_total",
				Help: "Total number of attachment downloads by outcome",
			},
			[]string{"outcome"},
		),

		ConversationReferences: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "teamsbridge_conversation_references",
				Help: "Number of stored conversation references",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ActivitiesReceived,
		m.ActivitiesDropped,
		m.PolicyDecisions,
		m.CommandsExecuted,
		m.AgentRequestDuration,
		m.OutboundSends,
		m.Retries,
		m.AttachmentDownloads,
		m.ConversationReferences,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ActivityReceived(activityType string) {
	if activityType == "" {
		activityType = "unknown"
	}
	m.ActivitiesReceived.WithLabelValues(activityType).Inc()
}

func (m *Metrics) ActivityDropped(reason string) {
	m.ActivitiesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordPolicyDecision(kind string, allowed bool) {
	m.PolicyDecisions.WithLabelValues(kind, strconv.FormatBool(allowed)).Inc()
}

func (m *Metrics) CommandExecuted(name string) {
	m.CommandsExecuted.WithLabelValues(name).Inc()
}

// RecordAgentRequest records the duration of one agent call.
func (m *Metrics) RecordAgentRequest(status string, durationSeconds float64) {
	m.AgentRequestDuration.WithLabelValues(status).Observe(durationSeconds)
}

func (m *Metrics) OutboundSent(status string) {
	m.OutboundSends.WithLabelValues(status).Inc()
}

// RetryAttempted records a retry caused by an upstream status. Zero means the
// status was unknown.
func (m *Metrics) RetryAttempted(target string, statusCode int) {
	code := "unknown"
	if statusCode > 0 {
		code = strconv.Itoa(statusCode)
	}
	m.Retries.WithLabelValues(target, code).Inc()
}

func (m *Metrics) AttachmentDownloaded(outcome string) {
	m.AttachmentDownloads.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetConversationReferences(n int) {
	m.ConversationReferences.Set(float64(n))
}
