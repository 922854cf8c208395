package gateway

import (
	"context"
	"fmt"
	"time"
)

// Status summarises the bridge for operators.
type Status struct {
	Initialized    bool      `json:"initialized"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	Uptime         string    `json:"uptime,omitempty"`
	AppID          string    `json:"app_id"`
	AuthEnabled    bool      `json:"auth_enabled"`
	DMPolicy       string    `json:"dm_policy"`
	GroupPolicy    string    `json:"group_policy"`
	RequireMention bool      `json:"require_mention"`
	ReplyStyle     string    `json:"reply_style"`
	AdaptiveCards  bool      `json:"adaptive_cards"`
	AgentProvider  string    `json:"agent_provider"`
	Tenants        int       `json:"tenants"`
	Teams          int       `json:"teams"`
	Channels       int       `json:"channels"`
	Conversations  int       `json:"conversations"`
	References     int       `json:"references"`
	Commands       []string  `json:"commands"`
}

// Extension is the read-only observability surface handed to the host.
type Extension struct {
	s *Server
}

// Extension returns the observability surface of s.
func (s *Server) Extension() *Extension {
	return &Extension{s: s}
}

// GetStatus reports configuration and runtime counters.
func (e *Extension) GetStatus(ctx context.Context) (Status, error) {
	s := e.s
	refs, err := s.store.Len(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("count references: %w", err)
	}

	r := s.runtime
	r.mu.RLock()
	status := Status{
		Initialized:   r.initialized,
		StartedAt:     r.startedAt,
		Tenants:       len(r.tenants),
		Teams:         len(r.teams),
		Conversations: len(r.conversations),
	}
	for _, byID := range r.channels {
		status.Channels += len(byID)
	}
	r.mu.RUnlock()

	if status.Initialized {
		status.Uptime = s.now().Sub(status.StartedAt).Round(time.Second).String()
	}
	status.AppID = s.config.AppID
	status.AuthEnabled = s.auth.Enabled()
	status.DMPolicy = string(s.policies.DM)
	status.GroupPolicy = string(s.policies.Group)
	status.RequireMention = s.policies.RequireMention
	status.ReplyStyle = string(s.compose.Style)
	status.AdaptiveCards = s.compose.UseAdaptiveCards
	status.AgentProvider = s.config.Agent.Provider
	status.References = refs
	status.Commands = s.registry.Names()
	return status, nil
}

// ListTeams returns the teams seen since Init, ordered by id.
func (e *Extension) ListTeams() []TeamSummary {
	return e.s.runtime.teamList()
}

// ListChannels returns the channels of teamID, or all channels when teamID
// is empty.
func (e *Extension) ListChannels(teamID string) []ChannelSummary {
	return e.s.runtime.channelList(teamID)
}

// GetMessageStats returns inbound message counters.
func (e *Extension) GetMessageStats() MessageStats {
	return e.s.runtime.stats()
}

// statusText renders the reply of the /status command.
func (s *Server) statusText(ctx context.Context) string {
	status, err := s.Extension().GetStatus(ctx)
	if err != nil {
		return "Bridge status is unavailable right now."
	}
	stats := s.runtime.stats()
	return fmt.Sprintf("**Teams bridge**\n\n"+
		"- Uptime: %s\n"+
		"- DM policy: %s, group policy: %s\n"+
		"- Mention required: %t\n"+
		"- Conversations: %d, teams: %d, channels: %d\n"+
		"- Messages processed: %d, forwarded: %d",
		orDash(status.Uptime), status.DMPolicy, status.GroupPolicy,
		status.RequireMention,
		status.Conversations, status.Teams, status.Channels,
		stats.Processed, stats.Forwarded)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
