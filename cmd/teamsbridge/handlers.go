package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/haasonsaas/teamsbridge/internal/config"
	"github.com/haasonsaas/teamsbridge/internal/gateway"
	"github.com/haasonsaas/teamsbridge/internal/observability"
)

const (
	defaultConfigPath = "teamsbridge.yaml"
	envConfigPath     = "TEAMSBRIDGE_CONFIG"
	shutdownTimeout   = 30 * time.Second
)

// resolveConfigPath picks the flag value, then TEAMSBRIDGE_CONFIG, then the
// default file name.
func resolveConfigPath(path string) string {
	if p := strings.TrimSpace(path); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv(envConfigPath)); p != "" {
		return p
	}
	return defaultConfigPath
}

// loadConfig reads path. A missing default file falls back to environment
// variables only.
func loadConfig(path string) (*config.Config, error) {
	if path == defaultConfigPath {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			slog.Info("no config file found, using environment", "path", path)
			return config.FromEnv()
		}
	}
	return config.Load(path)
}

// runServe loads configuration, starts the bridge and blocks until a signal
// arrives.
func runServe(ctx context.Context, configPath string, debug bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	level := cfg.Logging.Level
	if debug {
		level = "debug"
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	slog.SetDefault(logger)

	logger.Info("starting teams bridge",
		"version", version,
		"commit", commit,
		"config", configPath,
		"debug", debug,
	)

	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "teamsbridge",
		ServiceVersion: version,
		Environment:    cfg.Tracing.Environment,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		EnableInsecure: cfg.Tracing.Insecure,
	})

	server, err := gateway.New(cfg, gateway.Deps{
		Logger: logger,
		Tracer: tracer,
	})
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize bridge: %w", err)
	}
	if err := server.StartHTTP(); err != nil {
		_ = server.Shutdown(context.Background())
		return err
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("tracer shutdown: %w", err))
	}
	return errors.Join(errs...)
}

func runConfigValidate(out io.Writer, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		var validation *config.ConfigValidationError
		if errors.As(err, &validation) {
			fmt.Fprintf(out, "%s is invalid:\n", configPath)
			for _, issue := range validation.Issues {
				fmt.Fprintf(out, "  - %s\n", issue)
			}
		}
		return err
	}
	fmt.Fprintf(out, "%s is valid (webhook %s:%d%s, dm_policy=%s, group_policy=%s, agent=%s)\n",
		configPath, cfg.Webhook.Host, cfg.Webhook.Port, cfg.Webhook.Path,
		cfg.DMPolicy, cfg.GroupPolicy, cfg.Agent.Provider)
	return nil
}

func runConfigSchema(out io.Writer) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return fmt.Errorf("build schema: %w", err)
	}
	_, err = fmt.Fprintln(out, string(schema))
	return err
}
