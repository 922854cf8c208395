package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/haasonsaas/teamsbridge/internal/botframework"
)

// RuntimeState is what the bridge has observed since Init. It is reset on
// Shutdown.
type RuntimeState struct {
	mu sync.RWMutex

	initialized bool
	startedAt   time.Time

	tenants       map[string]struct{}
	teams         map[string]*TeamSummary
	channels      map[string]map[string]*ChannelSummary
	conversations map[string]struct{}

	processed    int64
	byKind       map[botframework.ConversationKind]int64
	forwarded    int64
	commands     int64
	sendFailures int64
	dropped      map[string]int64
}

// TeamSummary describes a team the bot has received messages from.
type TeamSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	ChannelCount int       `json:"channel_count"`
	LastSeen     time.Time `json:"last_seen"`
}

// ChannelSummary describes a team channel the bot has received messages from.
type ChannelSummary struct {
	ID       string    `json:"id"`
	Name     string    `json:"name,omitempty"`
	TeamID   string    `json:"team_id"`
	LastSeen time.Time `json:"last_seen"`
}

// MessageStats counts inbound message handling outcomes.
type MessageStats struct {
	Processed     int64            `json:"processed"`
	Forwarded     int64            `json:"forwarded"`
	Commands      int64            `json:"commands"`
	SendFailures  int64            `json:"send_failures"`
	Conversations int              `json:"conversations"`
	ByKind        map[string]int64 `json:"by_kind"`
	Dropped       map[string]int64 `json:"dropped"`
}

func newRuntimeState() *RuntimeState {
	r := &RuntimeState{}
	r.resetLocked()
	return r
}

func (r *RuntimeState) resetLocked() {
	r.initialized = false
	r.startedAt = time.Time{}
	r.tenants = map[string]struct{}{}
	r.teams = map[string]*TeamSummary{}
	r.channels = map[string]map[string]*ChannelSummary{}
	r.conversations = map[string]struct{}{}
	r.processed = 0
	r.byKind = map[botframework.ConversationKind]int64{}
	r.forwarded = 0
	r.commands = 0
	r.sendFailures = 0
	r.dropped = map[string]int64{}
}

func (r *RuntimeState) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resetLocked()
}

func (r *RuntimeState) markInitialized(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.initialized = true
	r.startedAt = at
}

// observe records a message that passed the self/type filter.
func (r *RuntimeState) observe(a *botframework.Activity, kind botframework.ConversationKind, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.processed++
	r.byKind[kind]++
	if a.Conversation.ID != "" {
		r.conversations[a.Conversation.ID] = struct{}{}
	}
	if tenant := a.TenantID(); tenant != "" {
		r.tenants[tenant] = struct{}{}
	}

	team := a.Team()
	if team == nil || team.ID == "" {
		return
	}
	summary, ok := r.teams[team.ID]
	if !ok {
		summary = &TeamSummary{ID: team.ID}
		r.teams[team.ID] = summary
	}
	if team.Name != "" {
		summary.Name = team.Name
	}
	summary.LastSeen = at

	channel := a.Channel()
	if channel == nil || channel.ID == "" {
		return
	}
	byID, ok := r.channels[team.ID]
	if !ok {
		byID = map[string]*ChannelSummary{}
		r.channels[team.ID] = byID
	}
	ch, ok := byID[channel.ID]
	if !ok {
		ch = &ChannelSummary{ID: channel.ID, TeamID: team.ID}
		byID[channel.ID] = ch
	}
	if channel.Name != "" {
		ch.Name = channel.Name
	}
	ch.LastSeen = at
	summary.ChannelCount = len(byID)
}

func (r *RuntimeState) recordDrop(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[reason]++
}

func (r *RuntimeState) recordForwarded() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forwarded++
}

func (r *RuntimeState) recordCommand() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands++
}

func (r *RuntimeState) recordSendFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendFailures++
}

func (r *RuntimeState) teamList() []TeamSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TeamSummary, 0, len(r.teams))
	for _, t := range r.teams {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// channelList returns the channels of teamID, or of every team when teamID
// is empty.
func (r *RuntimeState) channelList(teamID string) []ChannelSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []ChannelSummary{}
	for tid, byID := range r.channels {
		if teamID != "" && tid != teamID {
			continue
		}
		for _, ch := range byID {
			out = append(out, *ch)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TeamID != out[j].TeamID {
			return out[i].TeamID < out[j].TeamID
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *RuntimeState) stats() MessageStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byKind := make(map[string]int64, len(r.byKind))
	for k, v := range r.byKind {
		byKind[string(k)] = v
	}
	dropped := make(map[string]int64, len(r.dropped))
	for k, v := range r.dropped {
		dropped[k] = v
	}
	return MessageStats{
		Processed:     r.processed,
		Forwarded:     r.forwarded,
		Commands:      r.commands,
		SendFailures:  r.sendFailures,
		Conversations: len(r.conversations),
		ByKind:        byKind,
		Dropped:       dropped,
	}
}
