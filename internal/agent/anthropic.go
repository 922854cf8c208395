package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicAgent answers with a Claude model.
type AnthropicAgent struct {
	client    anthropic.Client
	model     string
	system    string
	maxTokens int64
	logger    *slog.Logger
}

// NewAnthropicAgent creates an Anthropic-backed agent.
func NewAnthropicAgent(cfg Config, logger *slog.Logger) (*AnthropicAgent, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("agent api_key is required for the anthropic provider")
	}
	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.Retry.MaxRetries),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicAgent{
		client:    anthropic.NewClient(options...),
		model:     model,
		system:    cfg.SystemPrompt,
		maxTokens: int64(cfg.MaxTokens),
		logger:    logger.With("component", "agent.anthropic"),
	}, nil
}

// Reply sends req as a single user turn.
func (a *AnthropicAgent) Reply(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(promptText(req))),
		},
	}
	if a.system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: a.system}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(sb.String()), nil
}
