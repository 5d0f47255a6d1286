package command

import (
	"context"
	"fmt"
	"strings"
	"tarabot/internal/core/domain"
	"tarabot/internal/core/port"
	"time"
)

// Help lists every registered command with its description.
type Help struct {
	registry  port.CommandRegistry
	responder port.Responder
	command   string
}

func NewHelp(registry port.CommandRegistry, responder port.Responder, command string) *Help {
	return &Help{registry: registry, responder: responder, command: command}
}

func (h *Help) GetCommand() string {
	return h.command
}

func (h *Help) Description() string {
	return "List what this bot can do"
}

func (h *Help) Options() []domain.CommandOption {
	return nil
}

func (h *Help) Respond(ctx context.Context, _ time.Duration, interaction *domain.Interaction) error {
	sb := &strings.Builder{}
	sb.WriteString("Here's what I can do:\n\n")

	for _, name := range h.registry.ListCommands() {
		cmd, err := h.registry.Get(name)
		if err != nil {
			return fmt.Errorf("failed to construct response: %w", err)
		}
		fmt.Fprintf(sb, "- `/%s`: %s\n", name, cmd.Description())
	}

	err := h.responder.Reply(ctx, interaction, domain.Reply{Content: sb.String(), Ephemeral: true})
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}
