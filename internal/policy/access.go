// Package policy decides whether an inbound sender may reach the agent.
package policy

import (
	"fmt"
	"strings"

	"github.com/haasonsaas/teamsbridge/internal/botframework"
)

// DMPolicy governs personal (one-to-one) conversations.
type DMPolicy string

const (
	DMOpen      DMPolicy = "open"
	DMPairing   DMPolicy = "pairing"
	DMAllowlist DMPolicy = "allowlist"
	DMDisabled  DMPolicy = "disabled"
)

// GroupPolicy governs channels and group chats.
type GroupPolicy string

const (
	GroupOpen      GroupPolicy = "open"
	GroupAllowlist GroupPolicy = "allowlist"
	GroupDisabled  GroupPolicy = "disabled"
)

// Wildcard matches any sender in an allow-list.
const Wildcard = "*"

// Decision reasons.
const (
	ReasonDMOpen              = "dm_open"
	ReasonDMPairing           = "dm_pairing"
	ReasonDMDisabled          = "dm_disabled"
	ReasonDMAllowlisted       = "dm_allowlisted"
	ReasonDMNotAllowlisted    = "dm_not_allowlisted"
	ReasonGroupOpen           = "group_open"
	ReasonGroupDisabled       = "group_disabled"
	ReasonGroupAllowlisted    = "group_allowlisted"
	ReasonGroupNotAllowlisted = "group_not_allowlisted"
)

// Policies is the access configuration, fixed at startup.
type Policies struct {
	DM             DMPolicy
	Group          GroupPolicy
	AllowFrom      []string
	GroupAllowFrom []string
	RequireMention bool
}

// Decision is the outcome of an access check.
type Decision struct {
	Allowed bool
	Reason  string
}

// ParseDMPolicy validates a configured DM policy.
func ParseDMPolicy(raw string) (DMPolicy, error) {
	switch p := DMPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case DMOpen, DMPairing, DMAllowlist, DMDisabled:
		return p, nil
	default:
		return "", fmt.Errorf("unknown dm policy %q (want open, pairing, allowlist or disabled)", raw)
	}
}

// ParseGroupPolicy validates a configured group policy.
func ParseGroupPolicy(raw string) (GroupPolicy, error) {
	switch p := GroupPolicy(strings.ToLower(strings.TrimSpace(raw))); p {
	case GroupOpen, GroupAllowlist, GroupDisabled:
		return p, nil
	default:
		return "", fmt.Errorf("unknown group policy %q (want open, allowlist or disabled)", raw)
	}
}

// Decide reports whether senderID may trigger the agent in a conversation of
// the given kind. Mention gating is a separate check; see NeedsMention.
func Decide(senderID string, kind botframework.ConversationKind, p Policies) Decision {
	if kind.IsGroup() {
		switch p.Group {
		case GroupOpen:
			return Decision{Allowed: true, Reason: ReasonGroupOpen}
		case GroupDisabled:
			return Decision{Allowed: false, Reason: ReasonGroupDisabled}
		}
		if SenderAllowed(senderID, p.EffectiveGroupAllowFrom()) {
			return Decision{Allowed: true, Reason: ReasonGroupAllowlisted}
		}
		return Decision{Allowed: false, Reason: ReasonGroupNotAllowlisted}
	}

	switch p.DM {
	case DMOpen:
		return Decision{Allowed: true, Reason: ReasonDMOpen}
	case DMDisabled:
		return Decision{Allowed: false, Reason: ReasonDMDisabled}
	case DMPairing:
		return Decision{Allowed: true, Reason: ReasonDMPairing}
	}
	if SenderAllowed(senderID, p.AllowFrom) {
		return Decision{Allowed: true, Reason: ReasonDMAllowlisted}
	}
	return Decision{Allowed: false, Reason: ReasonDMNotAllowlisted}
}

// EffectiveGroupAllowFrom returns the group allow-list, falling back to the
// DM allow-list when no group list is configured.
func (p Policies) EffectiveGroupAllowFrom() []string {
	if len(p.GroupAllowFrom) > 0 {
		return p.GroupAllowFrom
	}
	return p.AllowFrom
}

// NeedsMention reports whether a message of this kind must mention the bot.
func NeedsMention(kind botframework.ConversationKind, p Policies) bool {
	return p.RequireMention && kind.IsGroup()
}

// WasMentioned reports whether any mention targets botID. A nil or empty
// mention list means not mentioned.
func WasMentioned(mentions []botframework.Entity, botID string) bool {
	if botID == "" {
		return false
	}
	for _, m := range mentions {
		if m.Mentioned != nil && m.Mentioned.ID == botID {
			return true
		}
	}
	return false
}

// SenderAllowed reports whether senderID matches an allow-list entry exactly
// (case-sensitive, surrounding space ignored) or the list holds "*".
func SenderAllowed(senderID string, allow []string) bool {
	sender := normalizeAllowToken(senderID)
	for _, entry := range allow {
		token := normalizeAllowToken(entry)
		if token == "" {
			continue
		}
		if token == Wildcard {
			return true
		}
		if sender != "" && token == sender {
			return true
		}
	}
	return false
}

func normalizeAllowToken(value string) string {
	return strings.TrimSpace(value)
}
