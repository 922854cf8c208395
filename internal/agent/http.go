package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/haasonsaas/teamsbridge/internal/retry"
)

// HTTPAgent posts each message to an agent webhook and reads the reply from
// the JSON response.
type HTTPAgent struct {
	url    string
	token  string
	client *http.Client
	retry  retry.Config
	logger *slog.Logger
}

type httpAttachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data"`
}

type httpRequest struct {
	ConversationID   string          `json:"conversation_id"`
	ConversationType string          `json:"conversation_type"`
	SenderID         string          `json:"sender_id"`
	SenderName       string          `json:"sender_name,omitempty"`
	Text             string          `json:"text"`
	Attachment       *httpAttachment `json:"attachment,omitempty"`
}

type httpResponse struct {
	Reply string `json:"reply"`
}

// NewHTTPAgent creates an HTTP agent client.
func NewHTTPAgent(cfg Config, logger *slog.Logger) (*HTTPAgent, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("agent url is required for the http provider")
	}
	return &HTTPAgent{
		url:    strings.TrimSpace(cfg.URL),
		token:  cfg.Token,
		client: &http.Client{Timeout: cfg.Timeout},
		retry:  cfg.Retry,
		logger: logger.With("component", "agent.http"),
	}, nil
}

// Reply forwards req and returns the agent's reply. Throttling and server
// errors are retried.
func (a *HTTPAgent) Reply(ctx context.Context, req Request) (string, error) {
	payload := httpRequest{
		ConversationID:   req.ConversationID,
		ConversationType: string(req.Kind),
		SenderID:         req.SenderID,
		SenderName:       req.SenderName,
		Text:             req.Text,
	}
	if req.Attachment != nil {
		payload.Attachment = &httpAttachment{
			Name:        req.Attachment.Name,
			ContentType: req.Attachment.ContentType,
			Data:        req.Attachment.Data,
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal agent request: %w", err)
	}

	return retry.Do(ctx, a.retry, func(ctx context.Context) (string, error) {
		return a.post(ctx, body)
	})
}

func (a *HTTPAgent) post(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create agent request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return "", nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", &retry.StatusError{
			Status:     resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
			Err:        fmt.Errorf("agent returned: %s", strings.TrimSpace(string(snippet))),
		}
	}

	var out httpResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return "", nil
		}
		return "", fmt.Errorf("decode agent response: %w", err)
	}
	return out.Reply, nil
}
