package botframework

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/haasonsaas/teamsbridge/internal/conversation"
	"github.com/haasonsaas/teamsbridge/internal/retry"
)

const (
	// BotFrameworkScope is the OAuth scope for connector calls.
	BotFrameworkScope = "https://api.botframework.com/.default"
	// MultiTenantTokenURL issues tokens for multi-tenant bot registrations.
	MultiTenantTokenURL = "https://login.microsoftonline.com/botframework.com/oauth2/v2.0/token"

	maxErrorBody = 4 << 10
)

// ConnectorConfig configures outbound connector calls.
type ConnectorConfig struct {
	AppID       string
	AppPassword string
	// TenantID selects a single-tenant token endpoint when set.
	TenantID string
	// TokenURL overrides the token endpoint derived from TenantID.
	TokenURL   string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// TokenURLFor returns the token endpoint for a tenant.
func TokenURLFor(tenantID string) string {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return MultiTenantTokenURL
	}
	return "https://login.microsoftonline.com/" + url.PathEscape(tenantID) + "/oauth2/v2.0/token"
}

// Connector posts activities to the Bot Framework connector service.
type Connector struct {
	client *http.Client
	tokens oauth2.TokenSource
	logger *slog.Logger
}

// NewConnector creates a connector. Without an app id requests are sent
// unauthenticated, which only the local emulator accepts.
func NewConnector(cfg ConnectorConfig) *Connector {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Connector{
		client: client,
		logger: logger.With("component", "botframework.connector"),
	}
	if strings.TrimSpace(cfg.AppID) != "" {
		tokenURL := cfg.TokenURL
		if tokenURL == "" {
			tokenURL = TokenURLFor(cfg.TenantID)
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppPassword,
			TokenURL:     tokenURL,
			Scopes:       []string{BotFrameworkScope},
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, client)
		c.tokens = cc.TokenSource(ctx)
	}
	return c
}

// SendActivity posts activity into the conversation of ref. A reply to a
// specific activity is posted when activity.ReplyToID is set. Non-2xx
// responses are returned as *retry.StatusError.
func (c *Connector) SendActivity(ctx context.Context, ref conversation.Reference, activity *Activity) (*ResourceResponse, error) {
	if activity == nil {
		return nil, errors.New("activity is nil")
	}
	endpoint, err := activitiesURL(ref.ServiceURL, ref.Conversation.ID, activity.ReplyToID)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(activity)
	if err != nil {
		return nil, fmt.Errorf("marshal activity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("acquire connector token: %w", err)
		}
		token.SetAuthHeader(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send activity: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &retry.StatusError{
			Status:     resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
			Err:        fmt.Errorf("connector send failed: %s", strings.TrimSpace(string(snippet))),
		}
	}

	var out ResourceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		c.logger.Debug("connector response not decodable", "error", err)
	}
	return &out, nil
}

func activitiesURL(serviceURL, conversationID, replyToID string) (string, error) {
	serviceURL = strings.TrimRight(strings.TrimSpace(serviceURL), "/")
	if serviceURL == "" {
		return "", errors.New("service url is required")
	}
	if strings.TrimSpace(conversationID) == "" {
		return "", errors.New("conversation id is required")
	}
	endpoint := serviceURL + "/v3/conversations/" + url.PathEscape(conversationID) + "/activities"
	if replyToID != "" {
		endpoint += "/" + url.PathEscape(replyToID)
	}
	return endpoint, nil
}
