package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = openai.GPT4o

// OpenAIAgent answers with an OpenAI-compatible chat completion endpoint.
type OpenAIAgent struct {
	client    *openai.Client
	model     string
	system    string
	maxTokens int
	logger    *slog.Logger
}

// NewOpenAIAgent creates an OpenAI-backed agent.
func NewOpenAIAgent(cfg Config, logger *slog.Logger) (*OpenAIAgent, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("agent api_key is required for the openai provider")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIAgent{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     model,
		system:    cfg.SystemPrompt,
		maxTokens: cfg.MaxTokens,
		logger:    logger.With("component", "agent.openai"),
	}, nil
}

// Reply sends req as a single user turn.
func (a *OpenAIAgent) Reply(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if a.system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: a.system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: promptText(req),
	})

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     a.model,
		Messages:  messages,
		MaxTokens: a.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
