package commands

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unicode"
)

// FailureMessage is sent when a handler fails or panics.
const FailureMessage = "⚠️ Command /%s failed. Please try again later."

// Registry manages command registrations and execution. Commands are kept in
// registration order, which is also the order Match tries them in.
type Registry struct {
	commands []*Command
	logger   *slog.Logger
	mu       sync.RWMutex
}

// NewRegistry creates a new command registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger.With("component", "commands"),
	}
}

// Register adds a command. Registering a name that already exists replaces
// the earlier command and moves it to the end of the order.
func (r *Registry) Register(cmd *Command) error {
	if cmd == nil {
		return fmt.Errorf("command is nil")
	}
	name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(cmd.Name), "/"))
	if name == "" {
		return fmt.Errorf("command name is required")
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("command name %q must not contain whitespace", name)
	}
	if cmd.Handler == nil {
		return fmt.Errorf("command handler is required")
	}
	cmd.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()

	replaced := r.removeLocked(name)
	r.commands = append(r.commands, cmd)

	r.logger.Debug("registered command",
		"name", name,
		"replaced", replaced,
		"source", cmd.Source)
	return nil
}

// Unregister removes a command from the registry.
func (r *Registry) Unregister(name string) bool {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.removeLocked(name) {
		return false
	}
	r.logger.Debug("unregistered command", "name", name)
	return true
}

func (r *Registry) removeLocked(name string) bool {
	for i, cmd := range r.commands {
		if cmd.Name == name {
			r.commands = append(r.commands[:i:i], r.commands[i+1:]...)
			return true
		}
	}
	return false
}

// Get retrieves a command by name.
func (r *Registry) Get(name string) (*Command, bool) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cmd := range r.commands {
		if cmd.Name == name {
			return cmd, true
		}
	}
	return nil, false
}

// List returns all registered commands in registration order.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands := make([]*Command, len(r.commands))
	copy(commands, r.commands)
	return commands
}

// ListVisible returns commands that should be shown in help.
func (r *Registry) ListVisible() []*Command {
	all := r.List()
	visible := make([]*Command, 0, len(all))
	for _, cmd := range all {
		if !cmd.Hidden {
			visible = append(visible, cmd)
		}
	}
	return visible
}

// Match finds the first command, in registration order, whose "/name" is the
// whole trimmed text or is followed by a space. "/statusbar" does not match
// "status", and neither does "/status\tx".
func (r *Registry) Match(text string) (*Match, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cmd := range r.commands {
		trigger := "/" + cmd.Name
		if text == trigger {
			return &Match{Command: cmd}, true
		}
		rest, ok := strings.CutPrefix(text, trigger)
		if !ok {
			continue
		}
		if rest[0] == ' ' {
			return &Match{Command: cmd, Args: strings.TrimSpace(rest)}, true
		}
	}
	return nil, false
}

// Execute runs the matched command. Handler errors and panics are logged and
// turned into FailureMessage so a broken command never takes down the turn.
func (r *Registry) Execute(ctx context.Context, m *Match, inv *Invocation) (reply string) {
	if m == nil || m.Command == nil {
		return ""
	}
	if inv == nil {
		inv = &Invocation{}
	}
	inv.Command = m.Command
	inv.Args = m.Args

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("command panicked",
				"command", m.Command.Name,
				"panic", rec)
			reply = fmt.Sprintf(FailureMessage, m.Command.Name)
		}
	}()

	out, err := m.Command.Handler(ctx, inv)
	if err != nil {
		r.logger.Error("command failed",
			"command", m.Command.Name,
			"sender_id", inv.SenderID,
			"error", err)
		return fmt.Sprintf(FailureMessage, m.Command.Name)
	}
	return out
}

// Names returns all registered command names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.commands))
	for _, cmd := range r.commands {
		names = append(names, cmd.Name)
	}
	return names
}
