// Package main provides the CLI entry point for the Teams bridge.
//
// The bridge receives Microsoft Teams messages through the Bot Framework
// webhook, applies access policy and mention gating, routes slash commands
// and forwards everything else to a single agent.
//
// # Basic Usage
//
// Start the server:
//
//	teamsbridge serve --config teamsbridge.yaml
//
// Validate a configuration file:
//
//	teamsbridge config validate --config teamsbridge.yaml
//
// # Environment Variables
//
//   - TEAMSBRIDGE_CONFIG: Path to configuration file (default: teamsbridge.yaml)
//   - MICROSOFT_APP_ID: Bot app id, when app_id is not configured
//   - MICROSOFT_APP_PASSWORD: Bot app password, when app_password is not configured
//   - MICROSOFT_APP_TENANT_ID: Single-tenant bot tenant, when tenant_id is not configured
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "teamsbridge",
		Short: "Relay Microsoft Teams conversations to an agent",
		Long: `teamsbridge connects a Microsoft Teams bot to a single agent.

Inbound messages arrive on the Bot Framework webhook, pass the DM and group
access policies and are answered by slash commands or by the agent.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildConfigCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}
