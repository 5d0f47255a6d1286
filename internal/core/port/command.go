package port

import (
	"context"
	"tarabot/internal/core/domain"
	"time"
)

type Command interface {
	// Respond processes a slash command interaction within a specified timeout and answers it.
	Respond(ctx context.Context, timeout time.Duration, interaction *domain.Interaction) error
	// GetCommand retrieves the command name associated with a specific command handler.
	GetCommand() string
	// Description is the short text shown in Discord's command picker.
	Description() string
	// Options lists the string parameters the command accepts.
	Options() []domain.CommandOption
}

type CommandRegistry interface {
	// Register adds a new command handler to the command registry.
	Register(handler Command)
	// Get retrieves a registered Command based on its name or returns an error if not found.
	Get(command string) (Command, error)
	// ListCommands returns the names of all commands currently registered, sorted.
	ListCommands() []string
}
