// Package commands routes slash commands typed into a conversation to
// registered handlers.
package commands

import (
	"context"

	"github.com/haasonsaas/teamsbridge/internal/botframework"
)

// Command represents a registered slash command.
type Command struct {
	// Name is the command name without the leading slash (e.g., "help")
	Name string `json:"name"`

	// Description is a short description of what the command does
	Description string `json:"description,omitempty"`

	// Usage shows how to use the command
	Usage string `json:"usage,omitempty"`

	// Hidden hides the command from help listings
	Hidden bool `json:"hidden,omitempty"`

	// Handler is the function that executes the command
	Handler Handler `json:"-"`

	// Source identifies where this command came from (builtin, host)
	Source string `json:"source,omitempty"`
}

// Handler processes a command invocation and returns the reply text. An
// empty reply sends nothing.
type Handler func(ctx context.Context, inv *Invocation) (string, error)

// Invocation carries the context of one command call.
type Invocation struct {
	// Command is the matched command definition
	Command *Command

	// Args is the text after the command name, trimmed
	Args string

	// RawText is the message text the command was matched against
	RawText string

	SenderID       string
	SenderName     string
	ConversationID string
	Kind           botframework.ConversationKind
}

// Match is a command recognised in message text.
type Match struct {
	Command *Command
	Args    string
}
