package port

import (
	"context"
	"tarabot/internal/core/domain"
)

// ComponentFunc handles a component interaction routed by its custom ID.
type ComponentFunc func(ctx context.Context, interaction *domain.Interaction, responder Responder) error

// CleanupFunc runs once when a component registration is removed.
type CleanupFunc func(ctx context.Context, customID string, responder Responder) error

type ComponentRegistry interface {
	// Insert registers (or replaces) the handler and optional cleanup for a custom ID.
	Insert(customID string, handler ComponentFunc, cleanup CleanupFunc)
	// Run invokes the handler registered for the custom ID. found is false if there is none.
	Run(ctx context.Context, customID string, interaction *domain.Interaction, responder Responder) (found bool, err error)
	// Timeout expires the registration now so the next sweep removes it.
	Timeout(customID string) error
}
