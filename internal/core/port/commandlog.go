package port

import (
	"tarabot/internal/core/domain"
	"time"
)

type CommandLogWriter interface {
	// Append persists events in the order given.
	Append(events []domain.LoggedCommandEvent) error
}

type CommandLogReader interface {
	// Read returns the logged events with lower < time < upper.
	Read(lower, upper time.Time) ([]domain.LoggedCommandEvent, error)
}

type CommandLogger interface {
	Enqueue(event domain.LoggedCommandEvent)
}
