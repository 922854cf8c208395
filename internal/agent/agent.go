// Package agent adapts the downstream conversational agent the bridge relays
// to. The agent itself lives elsewhere; these are clients for it.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haasonsaas/teamsbridge/internal/attachments"
	"github.com/haasonsaas/teamsbridge/internal/botframework"
	"github.com/haasonsaas/teamsbridge/internal/retry"
)

// Provider names.
const (
	ProviderHTTP      = "http"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderEcho      = "echo"
)

// Request is one message forwarded to the agent.
type Request struct {
	ConversationID string
	SenderID       string
	SenderName     string
	Kind           botframework.ConversationKind
	// Text is the sender-tagged message, e.g. "[Ada]: hello".
	Text       string
	Attachment *attachments.File
}

// Agent produces a reply for a forwarded message. An empty reply means
// nothing is sent back.
type Agent interface {
	Reply(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to the Agent interface.
type Func func(ctx context.Context, req Request) (string, error)

// Reply calls f.
func (f Func) Reply(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Config selects and configures a provider.
type Config struct {
	Provider     string
	URL          string
	Token        string
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Timeout      time.Duration
	Retry        retry.Config
}

// New builds the configured agent client.
func New(cfg Config, logger *slog.Logger) (Agent, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderHTTP:
		return NewHTTPAgent(cfg, logger)
	case ProviderAnthropic:
		return NewAnthropicAgent(cfg, logger)
	case ProviderOpenAI:
		return NewOpenAIAgent(cfg, logger)
	case ProviderEcho:
		return Echo{}, nil
	default:
		return nil, fmt.Errorf("unknown agent provider %q", cfg.Provider)
	}
}

// Echo replies with the text it was given. Useful for wiring checks.
type Echo struct{}

// Reply returns the request text.
func (Echo) Reply(ctx context.Context, req Request) (string, error) {
	return req.Text, nil
}

// promptText renders the request as a single user message for LLM providers.
func promptText(req Request) string {
	if req.Attachment == nil {
		return req.Text
	}
	return fmt.Sprintf("%s\n\n[attachment: %s (%s, %d bytes)]",
		req.Text, req.Attachment.Name, req.Attachment.ContentType, len(req.Attachment.Data))
}
