package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/teamsbridge/internal/agent"
	"github.com/haasonsaas/teamsbridge/internal/attachments"
	"github.com/haasonsaas/teamsbridge/internal/botframework"
	"github.com/haasonsaas/teamsbridge/internal/commands"
	"github.com/haasonsaas/teamsbridge/internal/net/ssrf"
	"github.com/haasonsaas/teamsbridge/internal/policy"
	"github.com/haasonsaas/teamsbridge/internal/reply"
	"github.com/haasonsaas/teamsbridge/internal/retry"
)

// Drop reasons recorded in metrics and runtime stats.
const (
	dropDuplicate    = "duplicate"
	dropSelf         = "self"
	dropPolicy       = "policy"
	dropMention      = "mention"
	dropUnauthorized = "unauthorized"
	dropEmpty        = "empty"
)

// ProcessActivity runs one inbound activity through the pipeline:
// filter, reference, policy, mention gate, then command or agent.
// Policy denials and mention suppressions return nil. A non-nil error is a
// failure the turn-error boundary should log.
func (s *Server) ProcessActivity(ctx context.Context, turn *botframework.Turn) error {
	if turn == nil || turn.Activity == nil {
		return nil
	}
	a := turn.Activity
	if a.Type != botframework.ActivityTypeMessage {
		s.logger.Debug("ignoring non-message activity", "type", a.Type)
		return nil
	}
	if s.isSelf(a) {
		s.metrics.ActivityDropped(dropSelf)
		return nil
	}

	kind := a.Kind()
	ctx, span := s.tracer.TraceActivity(ctx, a.Type, a.Conversation.ID, string(kind))
	defer span.End()

	// The reference is stored before any policy decision so proactive sends
	// work even for conversations whose messages are filtered.
	if err := s.store.Save(ctx, a.Conversation.ID, turn.Reference()); err != nil {
		s.logger.Warn("failed to store conversation reference",
			"conversation_id", a.Conversation.ID, "error", err)
	}
	s.runtime.observe(a, kind, s.now())

	decision := policy.Decide(a.From.ID, kind, s.policies)
	s.metrics.RecordPolicyDecision(string(kind), decision.Allowed)
	if !decision.Allowed {
		s.logger.Debug("sender blocked by policy",
			"sender_id", a.From.ID, "kind", kind, "reason", decision.Reason)
		s.drop(dropPolicy)
		return nil
	}

	if policy.NeedsMention(kind, s.policies) && !policy.WasMentioned(a.Mentions(), a.Recipient.ID) {
		s.logger.Debug("message suppressed without mention",
			"sender_id", a.From.ID, "conversation_id", a.Conversation.ID)
		s.drop(dropMention)
		return nil
	}

	text := botframework.StripMentions(a.Text)

	if match, ok := s.registry.Match(text); ok {
		return s.runCommand(ctx, turn, match, text, kind)
	}
	return s.forwardToAgent(ctx, turn, text, kind)
}

func (s *Server) isSelf(a *botframework.Activity) bool {
	from := strings.TrimSpace(a.From.ID)
	if from == "" {
		return false
	}
	if from == strings.TrimSpace(a.Recipient.ID) {
		return true
	}
	appID := strings.TrimSpace(s.config.AppID)
	return appID != "" && (from == appID || from == "28:"+appID)
}

func (s *Server) drop(reason string) {
	s.metrics.ActivityDropped(reason)
	s.runtime.recordDrop(reason)
}

func (s *Server) runCommand(ctx context.Context, turn *botframework.Turn, match *commands.Match, text string, kind botframework.ConversationKind) error {
	a := turn.Activity
	result := s.registry.Execute(ctx, match, &commands.Invocation{
		Args:           match.Args,
		RawText:        text,
		SenderID:       a.From.ID,
		SenderName:     a.From.Name,
		ConversationID: a.Conversation.ID,
		Kind:           kind,
	})
	s.metrics.CommandExecuted(match.Command.Name)
	s.runtime.recordCommand()
	return s.respond(ctx, turn, result)
}

func (s *Server) forwardToAgent(ctx context.Context, turn *botframework.Turn, text string, kind botframework.ConversationKind) error {
	a := turn.Activity
	file := s.fetchAttachment(ctx, a)
	if text == "" && file == nil {
		s.drop(dropEmpty)
		return nil
	}

	req := agent.Request{
		ConversationID: a.Conversation.ID,
		SenderID:       a.From.ID,
		SenderName:     a.From.Name,
		Kind:           kind,
		Text:           fmt.Sprintf("[%s]: %s", senderTag(a.From), text),
		Attachment:     file,
	}

	stopTyping := s.typing.Start(ctx, func(ctx context.Context) error {
		_, err := turn.Send(ctx, &botframework.Activity{Type: botframework.ActivityTypeTyping})
		return err
	})

	agentCtx, span := s.tracer.TraceAgentRequest(ctx, s.config.Agent.Provider)
	started := s.now()
	answer, err := s.agent.Reply(agentCtx, req)
	elapsed := s.now().Sub(started)
	stopTyping()
	if err != nil {
		s.tracer.RecordError(span, err)
		span.End()
		s.metrics.RecordAgentRequest("error", elapsed.Seconds())
		return fmt.Errorf("agent reply: %w", err)
	}
	span.End()
	s.metrics.RecordAgentRequest("success", elapsed.Seconds())
	s.runtime.recordForwarded()

	return s.respond(ctx, turn, answer)
}

// fetchAttachment downloads the first downloadable attachment. Guard
// rejections and transfer failures are logged and processing continues.
func (s *Server) fetchAttachment(ctx context.Context, a *botframework.Activity) *attachments.File {
	for _, att := range a.Attachments {
		if att.DownloadURL() == "" {
			continue
		}
		file, err := s.downloader.Fetch(ctx, att)
		switch {
		case err == nil && file != nil:
			s.metrics.AttachmentDownloaded("success")
			return file
		case err == nil:
			return nil
		}

		var blocked *ssrf.SSRFBlockedError
		outcome := "error"
		switch {
		case errors.As(err, &blocked):
			outcome = "blocked"
		case errors.Is(err, attachments.ErrTooLarge):
			outcome = "too_large"
		}
		s.metrics.AttachmentDownloaded(outcome)
		s.logger.Warn("attachment not downloaded",
			"outcome", outcome, "name", att.Name, "error", err)
		return nil
	}
	return nil
}

func senderTag(from botframework.ChannelAccount) string {
	if name := strings.TrimSpace(from.Name); name != "" {
		return name
	}
	return from.ID
}

// respond composes text as a reply to the turn and delivers it. Empty text
// and the silent token send nothing.
func (s *Server) respond(ctx context.Context, turn *botframework.Turn, text string) error {
	if strings.TrimSpace(text) == "" || reply.IsSilentReplyText(text) {
		return nil
	}
	activity := reply.Compose(text, reply.Target{ReplyToID: turn.Activity.ID}, s.compose)
	return s.deliver(ctx, turn, activity)
}

// deliver sends with retries. Failures that were retryable, and sends cut
// short by shutdown, are logged and swallowed. Anything else is returned.
func (s *Server) deliver(ctx context.Context, turn *botframework.Turn, activity *botframework.Activity) error {
	err := s.send(ctx, turn, activity)
	if err == nil {
		return nil
	}
	s.runtime.recordSendFailure()

	if retry.IsRetryable(err) || errors.Is(err, context.Canceled) {
		s.logger.Error("reply delivery failed",
			"conversation_id", turn.Activity.Conversation.ID, "error", err)
		return nil
	}
	return fmt.Errorf("deliver reply: %w", err)
}

// send posts activity through the retry executor.
func (s *Server) send(ctx context.Context, turn *botframework.Turn, activity *botframework.Activity) error {
	ctx, span := s.tracer.TraceSend(ctx, turn.Reference().Conversation.ID)
	defer span.End()

	_, err := retry.Do(ctx, s.retryConfig("connector"), func(ctx context.Context) (*botframework.ResourceResponse, error) {
		return turn.Send(ctx, activity)
	})
	if err != nil {
		s.tracer.RecordError(span, err)
		s.metrics.OutboundSent("error")
		return err
	}
	s.metrics.OutboundSent("success")
	return nil
}

func (s *Server) retryConfig(target string) retry.Config {
	return retry.Config{
		MaxRetries: s.config.Retries(),
		BaseDelay:  s.config.RetryBaseDelay(),
		Sleep:      s.sleep,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			status, _ := retry.StatusOf(err)
			if s.metrics != nil {
				s.metrics.RetryAttempted(target, status)
			}
			s.logger.Warn("retrying request",
				"target", target, "attempt", attempt+1, "delay", delay, "status", status, "error", err)
		},
	}
}

// onTurnError is the last stop for pipeline failures. The delivery is still
// acknowledged to the channel service.
func (s *Server) onTurnError(ctx context.Context, turn *botframework.Turn, err error) {
	a := turn.Activity
	s.logger.ErrorContext(ctx, "turn failed",
		"activity_id", a.ID,
		"conversation_id", a.Conversation.ID,
		"error", err,
	)
}
