package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/haasonsaas/teamsbridge/internal/policy"
	"github.com/haasonsaas/teamsbridge/internal/reply"
)

// Environment fallbacks for the bot credentials. Values in the file win.
const (
	EnvAppID       = "MICROSOFT_APP_ID"
	EnvAppPassword = "MICROSOFT_APP_PASSWORD"
	EnvTenantID    = "MICROSOFT_APP_TENANT_ID"
)

// Defaults.
const (
	DefaultWebhookHost      = "0.0.0.0"
	DefaultWebhookPort      = 3978
	DefaultWebhookPath      = "/api/messages"
	DefaultMaxRetries       = 3
	DefaultRetryBaseDelayMs = 1000
	DefaultAttachmentBytes  = 25 << 20
	DefaultDownloadTimeout  = 30
	DefaultAgentTimeout     = 120
	DefaultStoreDriver      = "memory"
)

// Config is the main configuration structure for teamsbridge.
type Config struct {
	Version int `yaml:"version,omitempty" jsonschema:"minimum=0"`

	AppID       string `yaml:"app_id,omitempty"`
	AppPassword string `yaml:"app_password,omitempty"`
	TenantID    string `yaml:"tenant_id,omitempty"`

	Webhook WebhookConfig `yaml:"webhook,omitempty"`

	DMPolicy       string   `yaml:"dm_policy,omitempty" jsonschema:"enum=open,enum=pairing,enum=allowlist,enum=disabled"`
	GroupPolicy    string   `yaml:"group_policy,omitempty" jsonschema:"enum=open,enum=allowlist,enum=disabled"`
	AllowFrom      []string `yaml:"allow_from,omitempty"`
	GroupAllowFrom []string `yaml:"group_allow_from,omitempty"`
	RequireMention *bool    `yaml:"require_mention,omitempty"`

	ReplyStyle       string `yaml:"reply_style,omitempty" jsonschema:"enum=thread,enum=top-level"`
	UseAdaptiveCards *bool  `yaml:"use_adaptive_cards,omitempty"`

	MaxRetries       *int `yaml:"max_retries,omitempty" jsonschema:"minimum=0"`
	RetryBaseDelayMs *int `yaml:"retry_base_delay_ms,omitempty" jsonschema:"minimum=1"`

	Attachments AttachmentsConfig `yaml:"attachments,omitempty"`
	Store       StoreConfig       `yaml:"store,omitempty"`
	Agent       AgentConfig       `yaml:"agent,omitempty"`
	Logging     LoggingConfig     `yaml:"logging,omitempty"`
	Tracing     TracingConfig     `yaml:"tracing,omitempty"`
}

type WebhookConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty" jsonschema:"minimum=0,maximum=65535"`
	Path string `yaml:"path,omitempty"`
	// AdminToken protects POST /proactive. Empty disables the endpoint.
	AdminToken string `yaml:"admin_token,omitempty"`
	// SkipAuth disables inbound JWT verification. Local emulator use only.
	SkipAuth bool `yaml:"skip_auth,omitempty"`
}

type AttachmentsConfig struct {
	MaxBytes int64 `yaml:"max_bytes,omitempty" jsonschema:"minimum=0"`
	// AllowedHosts replaces the built-in platform domain suffixes.
	AllowedHosts   []string `yaml:"allowed_hosts,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" jsonschema:"minimum=0"`
}

type StoreConfig struct {
	Driver string `yaml:"driver,omitempty" jsonschema:"enum=memory,enum=sqlite,enum=postgres"`
	Path   string `yaml:"path,omitempty"`
	DSN    string `yaml:"dsn,omitempty"`
	// InstanceID tags the references this process writes. Shutdown clears
	// only those rows. Postgres defaults to a random id per process.
	InstanceID string `yaml:"instance_id,omitempty"`
}

type AgentConfig struct {
	Provider       string `yaml:"provider,omitempty" jsonschema:"enum=http,enum=anthropic,enum=openai,enum=echo"`
	URL            string `yaml:"url,omitempty"`
	Token          string `yaml:"token,omitempty"`
	APIKey         string `yaml:"api_key,omitempty"`
	BaseURL        string `yaml:"base_url,omitempty"`
	Model          string `yaml:"model,omitempty"`
	SystemPrompt   string `yaml:"system_prompt,omitempty"`
	MaxTokens      int    `yaml:"max_tokens,omitempty" jsonschema:"minimum=0"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty" jsonschema:"minimum=0"`
}

type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=warning,enum=error"`
	Format string `yaml:"format,omitempty" jsonschema:"enum=json,enum=text"`
}

type TracingConfig struct {
	Endpoint     string  `yaml:"endpoint,omitempty"`
	Insecure     bool    `yaml:"insecure,omitempty"`
	SamplingRate float64 `yaml:"sampling_rate,omitempty" jsonschema:"minimum=0,maximum=1"`
	Environment  string  `yaml:"environment,omitempty"`
}

// ConfigValidationError collects every problem found in a configuration.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return ""
	}
	return "invalid config: " + strings.Join(e.Issues, "; ")
}

// Load reads, validates and returns the configuration at path, with
// environment fallbacks and defaults applied.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := ValidateRaw(raw); err != nil {
		return nil, err
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyEnvFallbacks(cfg, os.Getenv)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv builds a configuration from defaults and credential environment
// variables alone.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	applyEnvFallbacks(cfg, os.Getenv)
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvFallbacks(cfg *Config, getenv func(string) string) {
	if strings.TrimSpace(cfg.AppID) == "" {
		cfg.AppID = strings.TrimSpace(getenv(EnvAppID))
	}
	if strings.TrimSpace(cfg.AppPassword) == "" {
		cfg.AppPassword = getenv(EnvAppPassword)
	}
	if strings.TrimSpace(cfg.TenantID) == "" {
		cfg.TenantID = strings.TrimSpace(getenv(EnvTenantID))
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	if cfg.Webhook.Host == "" {
		cfg.Webhook.Host = DefaultWebhookHost
	}
	if cfg.Webhook.Port == 0 {
		cfg.Webhook.Port = DefaultWebhookPort
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = DefaultWebhookPath
	}
	if cfg.DMPolicy == "" {
		cfg.DMPolicy = string(policy.DMPairing)
	}
	if cfg.GroupPolicy == "" {
		cfg.GroupPolicy = string(policy.GroupAllowlist)
	}
	if cfg.RequireMention == nil {
		cfg.RequireMention = boolPtr(true)
	}
	if cfg.ReplyStyle == "" {
		cfg.ReplyStyle = string(reply.StyleThread)
	}
	if cfg.UseAdaptiveCards == nil {
		cfg.UseAdaptiveCards = boolPtr(true)
	}
	if cfg.MaxRetries == nil {
		n := DefaultMaxRetries
		cfg.MaxRetries = &n
	}
	if cfg.RetryBaseDelayMs == nil {
		n := DefaultRetryBaseDelayMs
		cfg.RetryBaseDelayMs = &n
	}
	if cfg.Attachments.MaxBytes == 0 {
		cfg.Attachments.MaxBytes = DefaultAttachmentBytes
	}
	if cfg.Attachments.TimeoutSeconds == 0 {
		cfg.Attachments.TimeoutSeconds = DefaultDownloadTimeout
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = DefaultStoreDriver
	}
	if cfg.Agent.Provider == "" {
		cfg.Agent.Provider = "http"
	}
	if cfg.Agent.TimeoutSeconds == 0 {
		cfg.Agent.TimeoutSeconds = DefaultAgentTimeout
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate reports every invalid field. Defaults must already be applied.
func (c *Config) Validate() error {
	var issues []string
	if err := ValidateVersion(c.Version); err != nil {
		issues = append(issues, err.Error())
	}
	if strings.TrimSpace(c.AppID) == "" {
		issues = append(issues, "app_id is required (or set "+EnvAppID+")")
	}
	if strings.TrimSpace(c.AppPassword) == "" {
		issues = append(issues, "app_password is required (or set "+EnvAppPassword+")")
	}
	if c.Webhook.Port < 1 || c.Webhook.Port > 65535 {
		issues = append(issues, fmt.Sprintf("webhook.port must be between 1 and 65535, got %d", c.Webhook.Port))
	}
	if !strings.HasPrefix(c.Webhook.Path, "/") {
		issues = append(issues, "webhook.path must start with /")
	}
	if _, err := policy.ParseDMPolicy(c.DMPolicy); err != nil {
		issues = append(issues, "dm_policy: "+err.Error())
	}
	if _, err := policy.ParseGroupPolicy(c.GroupPolicy); err != nil {
		issues = append(issues, "group_policy: "+err.Error())
	}
	if _, err := reply.ParseStyle(c.ReplyStyle); err != nil {
		issues = append(issues, "reply_style: "+err.Error())
	}
	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		issues = append(issues, "max_retries must be >= 0")
	}
	if c.RetryBaseDelayMs != nil && *c.RetryBaseDelayMs < 1 {
		issues = append(issues, fmt.Sprintf("retry_base_delay_ms must be >= 1, got %d", *c.RetryBaseDelayMs))
	}
	if c.Attachments.MaxBytes < 0 {
		issues = append(issues, "attachments.max_bytes must be >= 0")
	}
	switch c.Store.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Store.Path) == "" {
			issues = append(issues, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if strings.TrimSpace(c.Store.DSN) == "" {
			issues = append(issues, "store.dsn is required for the postgres driver")
		}
	default:
		issues = append(issues, fmt.Sprintf("store.driver %q is not supported", c.Store.Driver))
	}
	issues = append(issues, c.Agent.validate()...)
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		issues = append(issues, "tracing.sampling_rate must be between 0 and 1")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}

func (a AgentConfig) validate() []string {
	switch strings.ToLower(a.Provider) {
	case "http":
		if strings.TrimSpace(a.URL) == "" {
			return []string{"agent.url is required for the http provider"}
		}
	case "anthropic", "openai":
		if strings.TrimSpace(a.APIKey) == "" {
			return []string{fmt.Sprintf("agent.api_key is required for the %s provider", strings.ToLower(a.Provider))}
		}
	case "echo":
	default:
		return []string{fmt.Sprintf("agent.provider %q is not supported", a.Provider)}
	}
	return nil
}

// Policies returns the parsed access policies. Call after Validate.
func (c *Config) Policies() policy.Policies {
	dm, _ := policy.ParseDMPolicy(c.DMPolicy)
	group, _ := policy.ParseGroupPolicy(c.GroupPolicy)
	return policy.Policies{
		DM:             dm,
		Group:          group,
		AllowFrom:      c.AllowFrom,
		GroupAllowFrom: c.GroupAllowFrom,
		RequireMention: c.RequireMention == nil || *c.RequireMention,
	}
}

// RetryBaseDelay returns retry_base_delay_ms as a duration.
func (c *Config) RetryBaseDelay() time.Duration {
	if c.RetryBaseDelayMs == nil {
		return DefaultRetryBaseDelayMs * time.Millisecond
	}
	return time.Duration(*c.RetryBaseDelayMs) * time.Millisecond
}

// Retries returns max_retries, defaulting when unset.
func (c *Config) Retries() int {
	if c.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *c.MaxRetries
}

// AdaptiveCards reports whether replies are rendered as Adaptive Cards.
func (c *Config) AdaptiveCards() bool {
	return c.UseAdaptiveCards == nil || *c.UseAdaptiveCards
}

func boolPtr(v bool) *bool { return &v }
