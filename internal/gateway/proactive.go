package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/haasonsaas/teamsbridge/internal/botframework"
	"github.com/haasonsaas/teamsbridge/internal/reply"
)

var (
	// ErrUnknownConversation is returned by SendProactive when no reference
	// has been stored for the conversation.
	ErrUnknownConversation = errors.New("unknown conversation")
	// ErrEmptyMessage is returned by SendProactive for blank text.
	ErrEmptyMessage = errors.New("message text is empty")
)

// SendProactive posts text into a conversation the bot has seen before.
// The message is top-level; there is no inbound activity to thread under.
func (s *Server) SendProactive(ctx context.Context, conversationID, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	ref, ok, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("load conversation reference: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConversation, conversationID)
	}

	activity := reply.Compose(text, reply.Target{}, s.compose)
	return botframework.ContinueConversation(ctx, s.sender, ref, func(ctx context.Context, turn *botframework.Turn) error {
		return s.send(ctx, turn, activity)
	})
}

type proactiveRequest struct {
	ConversationID string `json:"conversation_id"`
	Text           string `json:"text"`
}

func (s *Server) handleProactive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.config.Webhook.AdminToken == "" {
		writeJSONError(w, http.StatusNotFound, "proactive messaging is disabled")
		return
	}
	if !s.authorizedAdmin(r) {
		writeJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req proactiveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActivityBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		writeJSONError(w, http.StatusBadRequest, "conversation_id is required")
		return
	}

	err := s.SendProactive(r.Context(), req.ConversationID, req.Text)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
	case errors.Is(err, ErrEmptyMessage):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnknownConversation):
		writeJSONError(w, http.StatusNotFound, err.Error())
	default:
		s.logger.Error("proactive send failed", "conversation_id", req.ConversationID, "error", err)
		writeJSONError(w, http.StatusBadGateway, "send failed")
	}
}

// authorizedAdmin reports whether r carries the admin token. Without a
// configured token every request is authorized.
func (s *Server) authorizedAdmin(r *http.Request) bool {
	want := s.config.Webhook.AdminToken
	if want == "" {
		return true
	}
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(want)) == 1
}
