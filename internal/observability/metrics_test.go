package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	// Two instances must not panic on duplicate registration.
	first := NewMetrics()
	second := NewMetrics()
	first.ActivityReceived("message")

	if got := testutil.ToFloat64(first.ActivitiesReceived.WithLabelValues("message")); got != 1 {
		t.Errorf("first counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(second.ActivitiesReceived.WithLabelValues("message")); got != 0 {
		t.Errorf("second counter = %v, want 0", got)
	}
}

func TestMetricsRecorders(t *testing.T) {
	m := NewMetrics()

	m.ActivityReceived("")
	m.ActivityDropped("policy")
	m.ActivityDropped("policy")
	m.RecordPolicyDecision("channel", false)
	m.CommandExecuted("help")
	m.OutboundSent("success")
	m.RetryAttempted("connector", 429)
	m.RetryAttempted("agent", 0)
	m.AttachmentDownloaded("blocked")
	m.SetConversationReferences(3)
	m.RecordAgentRequest("success", 0.25)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"unknown activity type", testutil.ToFloat64(m.ActivitiesReceived.WithLabelValues("unknown")), 1},
		{"dropped by policy", testutil.ToFloat64(m.ActivitiesDropped.WithLabelValues("policy")), 2},
		{"policy denied", testutil.ToFloat64(m.PolicyDecisions.WithLabelValues("channel", "false")), 1},
		{"help executed", testutil.ToFloat64(m.CommandsExecuted.WithLabelValues("help")), 1},
		{"sent", testutil.ToFloat64(m.OutboundSends.WithLabelValues("success")), 1},
		{"retry 429", testutil.ToFloat64(m.Retries.WithLabelValues("connector", "429")), 1},
		{"retry unknown", testutil.ToFloat64(m.Retries.WithLabelValues("agent", "unknown")), 1},
		{"blocked download", testutil.ToFloat64(m.AttachmentDownloads.WithLabelValues("blocked")), 1},
		{"references", testutil.ToFloat64(m.ConversationReferences), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	if count := testutil.CollectAndCount(m.AgentRequestDuration); count != 1 {
		t.Errorf("agent histogram series = %d, want 1", count)
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.OutboundSent("error")

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `teamsbridge_outbound_sends_total{status="error"} 1`) {
		t.Errorf("exposition missing outbound counter:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("exposition missing Go runtime metrics")
	}
}
