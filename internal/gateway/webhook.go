package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/haasonsaas/teamsbridge/internal/botframework"
	"github.com/haasonsaas/teamsbridge/internal/cache"
	"github.com/haasonsaas/teamsbridge/internal/observability"
)

// maxActivityBytes caps the size of one webhook delivery.
const maxActivityBytes = 1 << 20

// HandleWebhook receives a Bot Framework activity delivery. Once the
// request is authenticated and decoded it is always acknowledged with 200,
// including when the pipeline fails.
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var activity botframework.Activity
	body := http.MaxBytesReader(w, r.Body, maxActivityBytes)
	if err := json.NewDecoder(body).Decode(&activity); err != nil {
		s.logger.Warn("invalid activity payload", "error", err)
		http.Error(w, "invalid activity", http.StatusBadRequest)
		return
	}
	s.metrics.ActivityReceived(activity.Type)

	ctx := s.context()
	ctx = observability.WithRequestID(ctx, uuid.NewString())
	ctx = observability.WithConversationID(ctx, activity.Conversation.ID)
	ctx = s.tracer.ExtractHTTP(ctx, r.Header)

	if err := s.auth.Verify(r.Context(), r, &activity); err != nil {
		s.logger.WarnContext(ctx, "rejected webhook delivery", "error", err)
		s.drop(dropUnauthorized)
		status := http.StatusUnauthorized
		if errors.Is(err, botframework.ErrUntrustedServiceURL) {
			status = http.StatusForbidden
		}
		http.Error(w, http.StatusText(status), status)
		return
	}

	if activity.ID != "" && s.dedupe.Seen(cache.ActivityKey(activity.Conversation.ID, activity.ID)) {
		s.logger.DebugContext(ctx, "duplicate activity", "activity_id", activity.ID)
		s.drop(dropDuplicate)
		w.WriteHeader(http.StatusOK)
		return
	}

	s.handleTurn(ctx, botframework.NewTurn(&activity, s.sender))
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleTurn(ctx context.Context, turn *botframework.Turn) {
	defer func() {
		if r := recover(); r != nil {
			s.onTurnError(ctx, turn, errors.New("panic while processing activity"))
			s.logger.ErrorContext(ctx, "activity pipeline panic", "panic", r)
		}
	}()
	if err := s.ProcessActivity(ctx, turn); err != nil {
		s.onTurnError(ctx, turn, err)
	}
}
