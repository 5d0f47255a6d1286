package port

import (
	"context"
	"tarabot/internal/core/domain"
)

type Responder interface {
	// Reply sends the initial response to an interaction.
	Reply(ctx context.Context, interaction *domain.Interaction, reply domain.Reply) error
	// Acknowledge confirms a component click without changing the message it belongs to.
	Acknowledge(ctx context.Context, interaction *domain.Interaction) error
	// EditReply replaces content and buttons of the original interaction response.
	EditReply(ctx context.Context, interaction *domain.Interaction, reply domain.Reply) error
	// RemoveButtons strips every component from the original interaction response, keeping its content.
	RemoveButtons(ctx context.Context, interaction *domain.Interaction) error
}
