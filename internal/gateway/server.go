// Package gateway hosts the Teams bridge: it receives Bot Framework webhook
// deliveries, runs each activity through the access policy, command router
// and agent, and posts replies back through the connector.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/teamsbridge/internal/agent"
	"github.com/haasonsaas/teamsbridge/internal/attachments"
	"github.com/haasonsaas/teamsbridge/internal/botframework"
	"github.com/haasonsaas/teamsbridge/internal/cache"
	"github.com/haasonsaas/teamsbridge/internal/commands"
	"github.com/haasonsaas/teamsbridge/internal/config"
	"github.com/haasonsaas/teamsbridge/internal/conversation"
	"github.com/haasonsaas/teamsbridge/internal/net/ssrf"
	"github.com/haasonsaas/teamsbridge/internal/observability"
	"github.com/haasonsaas/teamsbridge/internal/policy"
	"github.com/haasonsaas/teamsbridge/internal/reply"
	"github.com/haasonsaas/teamsbridge/internal/typing"
)

// Deps are the collaborators of a Server. Nil fields are built from the
// configuration.
type Deps struct {
	Logger        *slog.Logger
	Agent         agent.Agent
	Sender        botframework.Sender
	Store         conversation.Store
	Authenticator *botframework.Authenticator
	Downloader    *attachments.Downloader
	Commands      *commands.Registry
	Metrics       *observability.Metrics
	Tracer        *observability.Tracer
	Typing        *typing.Indicator

	// Sleep overrides retry waits (tests).
	Sleep func(ctx context.Context, d time.Duration) error
	// Now overrides the clock (tests).
	Now func() time.Time
}

// Server is the bridge. One Server owns all state; nothing is global.
type Server struct {
	config   *config.Config
	policies policy.Policies
	compose  reply.Options
	logger   *slog.Logger

	agent      agent.Agent
	sender     botframework.Sender
	store      conversation.Store
	ownsStore  bool
	auth       *botframework.Authenticator
	downloader *attachments.Downloader
	registry   *commands.Registry
	dedupe     *cache.Deduper
	typing     *typing.Indicator
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time

	runtime *RuntimeState

	mu           sync.Mutex
	initialized  bool
	baseCtx      context.Context
	cancel       context.CancelFunc
	scheduler    *cron.Cron
	httpServer   *http.Server
	httpListener net.Listener
}

// New builds a Server from a validated configuration.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	style, err := reply.ParseStyle(cfg.ReplyStyle)
	if err != nil {
		return nil, err
	}
	if _, err := policy.ParseDMPolicy(cfg.DMPolicy); err != nil {
		return nil, err
	}
	if _, err := policy.ParseGroupPolicy(cfg.GroupPolicy); err != nil {
		return nil, err
	}

	s := &Server{
		config:   cfg,
		policies: cfg.Policies(),
		compose: reply.Options{
			UseAdaptiveCards: cfg.AdaptiveCards(),
			Style:            style,
		},
		logger:     logger.With("component", "gateway"),
		agent:      deps.Agent,
		sender:     deps.Sender,
		store:      deps.Store,
		auth:       deps.Authenticator,
		downloader: deps.Downloader,
		registry:   deps.Commands,
		typing:     deps.Typing,
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		sleep:      deps.Sleep,
		now:        now,
		dedupe:     cache.NewDeduper(cache.DedupeOptions{}),
		runtime:    newRuntimeState(),
	}

	allowed := ssrf.DefaultAllowedSuffixes
	if len(cfg.Attachments.AllowedHosts) > 0 {
		allowed = cfg.Attachments.AllowedHosts
	}

	if s.agent == nil {
		a, err := agent.New(agent.Config{
			Provider:     cfg.Agent.Provider,
			URL:          cfg.Agent.URL,
			Token:        cfg.Agent.Token,
			APIKey:       cfg.Agent.APIKey,
			BaseURL:      cfg.Agent.BaseURL,
			Model:        cfg.Agent.Model,
			SystemPrompt: cfg.Agent.SystemPrompt,
			MaxTokens:    cfg.Agent.MaxTokens,
			Timeout:      time.Duration(cfg.Agent.TimeoutSeconds) * time.Second,
			Retry:        s.retryConfig("agent"),
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("agent: %w", err)
		}
		s.agent = a
	}
	if s.sender == nil {
		s.sender = botframework.NewConnector(botframework.ConnectorConfig{
			AppID:       cfg.AppID,
			AppPassword: cfg.AppPassword,
			TenantID:    cfg.TenantID,
			Logger:      logger,
		})
	}
	if s.store == nil {
		store, err := openStore(cfg.Store)
		if err != nil {
			return nil, err
		}
		s.store = store
		s.ownsStore = true
	}
	if s.auth == nil {
		appID := cfg.AppID
		if cfg.Webhook.SkipAuth {
			appID = ""
		}
		s.auth = botframework.NewAuthenticator(botframework.AuthConfig{
			AppID:                  appID,
			TrustedServiceSuffixes: ssrf.DefaultAllowedSuffixes,
			Logger:                 logger,
		})
	}
	if s.downloader == nil {
		s.downloader = attachments.NewDownloader(attachments.Config{
			MaxBytes:        cfg.Attachments.MaxBytes,
			AllowedSuffixes: allowed,
			Timeout:         time.Duration(cfg.Attachments.TimeoutSeconds) * time.Second,
			Retry:           s.retryConfig("attachment"),
			Logger:          logger,
		})
	}
	if s.registry == nil {
		s.registry = commands.NewRegistry(logger)
	}
	if s.typing == nil {
		s.typing = typing.New(typing.Config{Logger: logger})
	}
	if s.metrics == nil {
		s.metrics = observability.NewMetrics()
	}
	if s.tracer == nil {
		s.tracer, _ = observability.NewTracer(observability.TraceConfig{ServiceName: "teamsbridge"})
	}
	return s, nil
}

func openStore(cfg config.StoreConfig) (conversation.Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return conversation.NewMemoryStore(), nil
	case "sqlite":
		store, err := conversation.NewSQLStore(conversation.SQLConfig{Path: cfg.Path, Owner: cfg.InstanceID})
		if err != nil {
			return nil, fmt.Errorf("open conversation store: %w", err)
		}
		return store, nil
	case "postgres":
		pgConfig := conversation.DefaultPostgresConfig()
		pgConfig.Owner = cfg.InstanceID
		if pgConfig.Owner == "" {
			pgConfig.Owner = uuid.NewString()
		}
		store, err := conversation.NewPostgresStore(cfg.DSN, pgConfig)
		if err != nil {
			return nil, fmt.Errorf("open conversation store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// Init registers the built-in commands, starts background maintenance and
// marks the bridge ready. Calling Init twice is a no-op.
func (s *Server) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	if s.policies.DM == policy.DMPairing {
		s.logger.Warn("dm_policy pairing is not implemented as a pairing flow; all direct messages are allowed")
	}

	commands.RegisterBuiltins(s.registry, s.statusText)

	s.baseCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	s.scheduler = cron.New()
	if _, err := s.scheduler.AddFunc("@every 1m", s.maintain); err != nil {
		s.cancel()
		return fmt.Errorf("schedule maintenance: %w", err)
	}
	s.scheduler.Start()

	s.runtime.markInitialized(s.now())
	s.initialized = true
	s.logger.Info("teams bridge initialized",
		"dm_policy", s.policies.DM,
		"group_policy", s.policies.Group,
		"require_mention", s.policies.RequireMention,
		"reply_style", s.compose.Style,
		"auth", s.auth.Enabled(),
	)
	return nil
}

// maintain expires dedupe entries and refreshes the reference gauge.
func (s *Server) maintain() {
	removed := s.dedupe.Sweep()
	ctx, cancel := context.WithTimeout(s.context(), 10*time.Second)
	defer cancel()
	n, err := s.store.Len(ctx)
	if err != nil {
		s.logger.Warn("count conversation references", "error", err)
		return
	}
	s.metrics.SetConversationReferences(n)
	s.logger.Debug("maintenance complete", "dedupe_expired", removed, "references", n)
}

// Shutdown stops the HTTP listener and background jobs, aborts in-flight
// retries, clears the conversation references this instance wrote and
// resets runtime state.
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel first: http.Server.Shutdown waits for handlers, and a handler
	// parked in a retry backoff only returns once the base context ends.
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	scheduler := s.scheduler
	s.scheduler = nil
	s.initialized = false
	s.mu.Unlock()

	s.stopHTTPServer(ctx)

	if scheduler != nil {
		select {
		case <-scheduler.Stop().Done():
		case <-ctx.Done():
		}
	}

	var errs []error
	if err := s.store.ClearAll(ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear conversation references: %w", err))
	}
	s.dedupe.Clear()
	s.runtime.reset()
	s.metrics.SetConversationReferences(0)

	if s.ownsStore {
		if closer, ok := s.store.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close conversation store: %w", err))
			}
		}
	}
	s.logger.Info("teams bridge stopped")
	return errors.Join(errs...)
}

// context returns the server-wide context cancelled on Shutdown.
func (s *Server) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

// Registry exposes the command registry so hosts can add commands.
func (s *Server) Registry() *commands.Registry {
	return s.registry
}

// Metrics exposes the server's metrics.
func (s *Server) Metrics() *observability.Metrics {
	return s.metrics
}
