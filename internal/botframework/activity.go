// Package botframework implements the slice of the Microsoft Bot Framework
// protocol a Teams bot needs: the activity schema, inbound JWT verification,
// outbound connector calls and turn/conversation-reference plumbing.
package botframework

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// Activity types.
const (
	ActivityTypeMessage            = "message"
	ActivityTypeTyping             = "typing"
	ActivityTypeConversationUpdate = "conversationUpdate"
	ActivityTypeEvent              = "event"
	ActivityTypeInvoke             = "invoke"
)

// Attachment content types.
const (
	ContentTypeAdaptiveCard = "application/vnd.microsoft.card.adaptive"
	ContentTypeFileDownload = "application/vnd.microsoft.teams.file.download.info"
)

// TextFormatMarkdown marks message text as markdown.
const TextFormatMarkdown = "markdown"

// ConversationKind classifies where a message was posted.
type ConversationKind string

const (
	KindPersonal  ConversationKind = "personal"
	KindChannel   ConversationKind = "channel"
	KindGroupChat ConversationKind = "groupChat"
)

// IsGroup reports whether the kind is a multi-party conversation.
func (k ConversationKind) IsGroup() bool {
	return k == KindChannel || k == KindGroupChat
}

// ChannelAccount identifies a user or bot.
type ChannelAccount struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
	Role        string `json:"role,omitempty"`
}

// ConversationAccount identifies a conversation.
type ConversationAccount struct {
	ID               string `json:"id"`
	Name             string `json:"name,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
}

// Entity is a loosely typed activity entity. Only mentions are interpreted.
type Entity struct {
	Type      string          `json:"type"`
	Mentioned *ChannelAccount `json:"mentioned,omitempty"`
	Text      string          `json:"text,omitempty"`
}

// Attachment is a file or card attached to an activity.
type Attachment struct {
	ContentType string          `json:"contentType"`
	ContentURL  string          `json:"contentUrl,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
	Name        string          `json:"name,omitempty"`
}

// DownloadURL returns the URL to fetch the attachment from. Teams file
// uploads carry it inside the content as downloadUrl.
func (a Attachment) DownloadURL() string {
	if a.ContentType == ContentTypeFileDownload && len(a.Content) > 0 {
		var info struct {
			DownloadURL string `json:"downloadUrl"`
		}
		if err := json.Unmarshal(a.Content, &info); err == nil && strings.TrimSpace(info.DownloadURL) != "" {
			return strings.TrimSpace(info.DownloadURL)
		}
	}
	return strings.TrimSpace(a.ContentURL)
}

// TeamInfo identifies a team.
type TeamInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ChannelInfo identifies a team channel.
type ChannelInfo struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// TenantInfo identifies the Azure AD tenant.
type TenantInfo struct {
	ID string `json:"id"`
}

// ChannelData is the Teams-specific channelData payload.
type ChannelData struct {
	Tenant  *TenantInfo  `json:"tenant,omitempty"`
	Team    *TeamInfo    `json:"team,omitempty"`
	Channel *ChannelInfo `json:"channel,omitempty"`
}

// Activity is a Bot Framework activity.
type Activity struct {
	Type         string              `json:"type"`
	ID           string              `json:"id,omitempty"`
	Timestamp    *time.Time          `json:"timestamp,omitempty"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	ChannelID    string              `json:"channelId,omitempty"`
	From         ChannelAccount      `json:"from"`
	Conversation ConversationAccount `json:"conversation"`
	Recipient    ChannelAccount      `json:"recipient"`
	Text         string              `json:"text,omitempty"`
	TextFormat   string              `json:"textFormat,omitempty"`
	ReplyToID    string              `json:"replyToId,omitempty"`
	Locale       string              `json:"locale,omitempty"`
	Entities     []Entity            `json:"entities,omitempty"`
	Attachments  []Attachment        `json:"attachments,omitempty"`
	ChannelData  *ChannelData        `json:"channelData,omitempty"`
	Name         string              `json:"name,omitempty"`
}

// Kind derives the conversation kind. An explicit conversationType wins;
// otherwise channelData carrying a channel id means a channel post.
func (a *Activity) Kind() ConversationKind {
	switch strings.ToLower(strings.TrimSpace(a.Conversation.ConversationType)) {
	case "personal":
		return KindPersonal
	case "channel":
		return KindChannel
	case "groupchat":
		return KindGroupChat
	}
	if a.ChannelData != nil && a.ChannelData.Channel != nil && a.ChannelData.Channel.ID != "" {
		return KindChannel
	}
	return KindPersonal
}

// Mentions returns the mention entities of the activity.
func (a *Activity) Mentions() []Entity {
	var out []Entity
	for _, e := range a.Entities {
		if strings.EqualFold(e.Type, "mention") {
			out = append(out, e)
		}
	}
	return out
}

// TenantID returns the tenant from channelData, falling back to the
// conversation.
func (a *Activity) TenantID() string {
	if a.ChannelData != nil && a.ChannelData.Tenant != nil && a.ChannelData.Tenant.ID != "" {
		return a.ChannelData.Tenant.ID
	}
	return a.Conversation.TenantID
}

// Team returns the team info from channelData, if any.
func (a *Activity) Team() *TeamInfo {
	if a.ChannelData == nil {
		return nil
	}
	return a.ChannelData.Team
}

// Channel returns the channel info from channelData, if any.
func (a *Activity) Channel() *ChannelInfo {
	if a.ChannelData == nil {
		return nil
	}
	return a.ChannelData.Channel
}

var (
	mentionMarkup = regexp.MustCompile(`(?is)<at[^>]*>.*?</at>`)
	spaceRuns     = regexp.MustCompile(`[ \t]{2,}`)
)

// StripMentions removes <at>…</at> mention markup. Line breaks in the
// remaining text are preserved.
func StripMentions(text string) string {
	cleaned := mentionMarkup.ReplaceAllString(text, " ")
	cleaned = spaceRuns.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// ResourceResponse is returned by the connector for a created activity.
type ResourceResponse struct {
	ID string `json:"id"`
}
