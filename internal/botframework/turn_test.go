package botframework

import (
	"context"
	"testing"

	"github.com/haasonsaas/teamsbridge/internal/conversation"
)

type recordingSender struct {
	refs       []conversation.Reference
	activities []*Activity
}

func (s *recordingSender) SendActivity(ctx context.Context, ref conversation.Reference, activity *Activity) (*ResourceResponse, error) {
	s.refs = append(s.refs, ref)
	s.activities = append(s.activities, activity)
	return &ResourceResponse{ID: "sent"}, nil
}

func inboundActivity() *Activity {
	return &Activity{
		Type:         ActivityTypeMessage,
		ID:           "in-1",
		ServiceURL:   "https://smba.trafficmanager.net/amer/",
		ChannelID:    "msteams",
		From:         ChannelAccount{ID: "29:user", Name: "Ada"},
		Recipient:    ChannelAccount{ID: "28:bot", Name: "Relay"},
		Conversation: ConversationAccount{ID: "conv-1", ConversationType: "personal"},
		ChannelData:  &ChannelData{Tenant: &TenantInfo{ID: "t-1"}},
		Locale:       "en-US",
	}
}

func TestReferenceFromActivity(t *testing.T) {
	ref := ReferenceFromActivity(inboundActivity())

	if ref.ActivityID != "in-1" || ref.User.ID != "29:user" || ref.Bot.ID != "28:bot" {
		t.Errorf("ReferenceFromActivity() = %+v", ref)
	}
	if ref.Conversation.ID != "conv-1" || ref.Conversation.TenantID != "t-1" {
		t.Errorf("conversation = %+v", ref.Conversation)
	}
	if ref.ServiceURL != "https://smba.trafficmanager.net/amer/" || ref.Locale != "en-US" {
		t.Errorf("ref = %+v", ref)
	}
}

func TestTurn_Send(t *testing.T) {
	sender := &recordingSender{}
	turn := NewTurn(inboundActivity(), sender)

	out := &Activity{Type: ActivityTypeMessage, Text: "reply"}
	resp, err := turn.Send(context.Background(), out)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if resp.ID != "sent" {
		t.Errorf("resp.ID = %q", resp.ID)
	}
	if out.From.ID != "28:bot" || out.Recipient.ID != "29:user" || out.Conversation.ID != "conv-1" {
		t.Errorf("outbound not addressed: %+v", out)
	}
	if len(sender.refs) != 1 || sender.refs[0].ServiceURL != turn.Reference().ServiceURL {
		t.Errorf("sender refs = %+v", sender.refs)
	}
}

func TestTurn_SendWithoutSender(t *testing.T) {
	turn := NewTurn(inboundActivity(), nil)
	if _, err := turn.Send(context.Background(), &Activity{}); err == nil {
		t.Error("expected error without sender")
	}
}

func TestContinueConversation(t *testing.T) {
	sender := &recordingSender{}
	ref := ReferenceFromActivity(inboundActivity())

	called := false
	err := ContinueConversation(context.Background(), sender, ref, func(ctx context.Context, turn *Turn) error {
		called = true
		if turn.Activity.Type != ActivityTypeEvent || turn.Activity.Conversation.ID != "conv-1" {
			t.Errorf("turn activity = %+v", turn.Activity)
		}
		_, err := turn.Send(ctx, &Activity{Type: ActivityTypeMessage, Text: "proactive"})
		return err
	})
	if err != nil {
		t.Fatalf("ContinueConversation() error = %v", err)
	}
	if !called {
		t.Fatal("callback not invoked")
	}
	if len(sender.activities) != 1 || sender.activities[0].ReplyToID != "" {
		t.Errorf("activities = %+v", sender.activities)
	}
}
