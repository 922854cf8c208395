// Package reply turns agent and command output into outbound Teams
// activities.
package reply

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/teamsbridge/internal/botframework"
)

// AdaptiveCardVersion is the card schema version emitted.
const AdaptiveCardVersion = "1.5"

const adaptiveCardSchema = "http://adaptivecards.io/schemas/adaptive-card.json"

// Style selects whether replies thread under the triggering message.
type Style string

const (
	StyleThread   Style = "thread"
	StyleTopLevel Style = "top-level"
)

// ParseStyle validates a configured reply style. Empty means thread.
func ParseStyle(raw string) (Style, error) {
	switch s := Style(strings.ToLower(strings.TrimSpace(raw))); s {
	case "":
		return StyleThread, nil
	case StyleThread, StyleTopLevel:
		return s, nil
	default:
		return "", fmt.Errorf("unknown reply style %q (want thread or top-level)", raw)
	}
}

// Action is a link button rendered on a card.
type Action struct {
	Title string
	URL   string
}

// Target identifies what the reply answers.
type Target struct {
	// ReplyToID is the id of the triggering activity, empty for proactive
	// sends.
	ReplyToID string
}

// Options controls rendering.
type Options struct {
	UseAdaptiveCards bool
	Style            Style
	Title            string
	ImageURL         string
	Actions          []Action
}

// Compose builds the outbound message activity for text.
func Compose(text string, target Target, opts Options) *botframework.Activity {
	activity := &botframework.Activity{Type: botframework.ActivityTypeMessage}

	if opts.UseAdaptiveCards {
		card, err := json.Marshal(AdaptiveCard(text, opts))
		if err == nil {
			activity.Attachments = []botframework.Attachment{{
				ContentType: botframework.ContentTypeAdaptiveCard,
				Content:     card,
			}}
		} else {
			activity.Text = text
			activity.TextFormat = botframework.TextFormatMarkdown
		}
	} else {
		activity.Text = text
		activity.TextFormat = botframework.TextFormatMarkdown
	}

	if opts.Style != StyleTopLevel && target.ReplyToID != "" {
		activity.ReplyToID = target.ReplyToID
	}
	return activity
}

// AdaptiveCard builds the card payload for text.
func AdaptiveCard(text string, opts Options) map[string]any {
	body := make([]map[string]any, 0, 3)
	if title := strings.TrimSpace(opts.Title); title != "" {
		body = append(body, map[string]any{
			"type":   "TextBlock",
			"text":   title,
			"weight": "Bolder",
			"size":   "Medium",
			"wrap":   true,
		})
	}
	body = append(body, map[string]any{
		"type": "TextBlock",
		"text": text,
		"wrap": true,
	})
	if img := strings.TrimSpace(opts.ImageURL); img != "" {
		body = append(body, map[string]any{
			"type": "Image",
			"url":  img,
		})
	}

	card := map[string]any{
		"type":    "AdaptiveCard",
		"$schema": adaptiveCardSchema,
		"version": AdaptiveCardVersion,
		"body":    body,
	}

	actions := make([]map[string]any, 0, len(opts.Actions))
	for _, a := range opts.Actions {
		if strings.TrimSpace(a.URL) == "" {
			continue
		}
		actions = append(actions, map[string]any{
			"type":  "Action.OpenUrl",
			"title": a.Title,
			"url":   a.URL,
		})
	}
	if len(actions) > 0 {
		card["actions"] = actions
	}
	return card
}
