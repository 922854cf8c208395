package botframework

import (
	"context"
	"errors"

	"github.com/haasonsaas/teamsbridge/internal/conversation"
)

// Sender posts activities into a conversation.
type Sender interface {
	SendActivity(ctx context.Context, ref conversation.Reference, activity *Activity) (*ResourceResponse, error)
}

// Turn is one inbound activity together with the means to reply to it.
type Turn struct {
	Activity *Activity
	sender   Sender
	ref      conversation.Reference
}

// NewTurn builds a turn for an inbound activity.
func NewTurn(activity *Activity, sender Sender) *Turn {
	return &Turn{
		Activity: activity,
		sender:   sender,
		ref:      ReferenceFromActivity(activity),
	}
}

// Reference returns the conversation reference of the turn.
func (t *Turn) Reference() conversation.Reference {
	return t.ref
}

// Send addresses activity to the turn's conversation and posts it.
func (t *Turn) Send(ctx context.Context, activity *Activity) (*ResourceResponse, error) {
	if t.sender == nil {
		return nil, errors.New("turn has no sender")
	}
	ApplyReference(activity, t.ref)
	return t.sender.SendActivity(ctx, t.ref, activity)
}

// ContinueConversation runs fn with a turn bound to a stored reference,
// for sends that are not a reply to an inbound activity.
func ContinueConversation(ctx context.Context, sender Sender, ref conversation.Reference, fn func(ctx context.Context, turn *Turn) error) error {
	activity := &Activity{
		Type:       ActivityTypeEvent,
		Name:       "ContinueConversation",
		ServiceURL: ref.ServiceURL,
		ChannelID:  ref.ChannelID,
		From:       ChannelAccount{ID: ref.User.ID, Name: ref.User.Name, AADObjectID: ref.User.AADObjectID},
		Recipient:  ChannelAccount{ID: ref.Bot.ID, Name: ref.Bot.Name},
		Conversation: ConversationAccount{
			ID:               ref.Conversation.ID,
			Name:             ref.Conversation.Name,
			ConversationType: ref.Conversation.ConversationType,
			TenantID:         ref.Conversation.TenantID,
		},
		Locale: ref.Locale,
	}
	turn := &Turn{Activity: activity, sender: sender, ref: ref}
	return fn(ctx, turn)
}
