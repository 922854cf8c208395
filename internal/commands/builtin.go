package commands

import (
	"context"
	"fmt"
	"strings"
)

// StatusFunc renders the reply of the built-in /status command.
type StatusFunc func(ctx context.Context) string

// RegisterBuiltins registers /help and /status.
func RegisterBuiltins(r *Registry, status StatusFunc) {
	mustRegister := func(cmd *Command) {
		if err := r.Register(cmd); err != nil {
			panic(fmt.Sprintf("failed to register builtin command %q: %v", cmd.Name, err))
		}
	}

	mustRegister(&Command{
		Name:        "help",
		Description: "Show available commands",
		Usage:       "/help",
		Source:      "builtin",
		Handler:     helpHandler(r),
	})

	mustRegister(&Command{
		Name:        "status",
		Description: "Show bridge status",
		Usage:       "/status",
		Source:      "builtin",
		Handler: func(ctx context.Context, inv *Invocation) (string, error) {
			if status == nil {
				return "Bridge is running.", nil
			}
			return status(ctx), nil
		},
	})
}

func helpHandler(r *Registry) Handler {
	return func(ctx context.Context, inv *Invocation) (string, error) {
		visible := r.ListVisible()
		if len(visible) == 0 {
			return "No commands available.", nil
		}

		var sb strings.Builder
		sb.WriteString("**Available commands**\n\n")
		for _, cmd := range visible {
			sb.WriteString("- `/")
			sb.WriteString(cmd.Name)
			sb.WriteString("`")
			if cmd.Description != "" {
				sb.WriteString(": ")
				sb.WriteString(cmd.Description)
			}
			sb.WriteString("\n")
		}
		return strings.TrimRight(sb.String(), "\n"), nil
	}
}
