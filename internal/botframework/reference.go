package botframework

import (
	"time"

	"github.com/haasonsaas/teamsbridge/internal/conversation"
)

// ReferenceFromActivity captures the addressing information of an inbound
// activity so a reply can be posted later.
func ReferenceFromActivity(a *Activity) conversation.Reference {
	return conversation.Reference{
		ActivityID: a.ID,
		User: conversation.Account{
			ID:          a.From.ID,
			Name:        a.From.Name,
			AADObjectID: a.From.AADObjectID,
		},
		Bot: conversation.Account{
			ID:   a.Recipient.ID,
			Name: a.Recipient.Name,
		},
		Conversation: conversation.Conversation{
			ID:               a.Conversation.ID,
			Name:             a.Conversation.Name,
			ConversationType: a.Conversation.ConversationType,
			TenantID:         a.TenantID(),
		},
		ChannelID:  a.ChannelID,
		ServiceURL: a.ServiceURL,
		Locale:     a.Locale,
		UpdatedAt:  time.Now(),
	}
}

// ApplyReference addresses an outbound activity to the conversation in ref.
// The bot becomes the sender and the stored user the recipient.
func ApplyReference(a *Activity, ref conversation.Reference) {
	if a.ChannelID == "" {
		a.ChannelID = ref.ChannelID
	}
	a.ServiceURL = ref.ServiceURL
	a.From = ChannelAccount{ID: ref.Bot.ID, Name: ref.Bot.Name, Role: "bot"}
	a.Recipient = ChannelAccount{ID: ref.User.ID, Name: ref.User.Name, AADObjectID: ref.User.AADObjectID}
	a.Conversation = ConversationAccount{
		ID:               ref.Conversation.ID,
		Name:             ref.Conversation.Name,
		ConversationType: ref.Conversation.ConversationType,
		TenantID:         ref.Conversation.TenantID,
	}
	if a.Locale == "" {
		a.Locale = ref.Locale
	}
}
