package service

import (
	"context"
	"sync"
	"tarabot/internal/core/domain"
	"tarabot/internal/core/port"
	"time"

	"github.com/rs/zerolog/log"
)

const DefaultFlushInterval = 6 * time.Second

// CommandLogger buffers command events in memory and periodically appends them
// to a CommandLogWriter.
type CommandLogger struct {
	mu            sync.Mutex
	queue         []domain.LoggedCommandEvent
	writer        port.CommandLogWriter
	flushInterval time.Duration
}

func NewCommandLogger(writer port.CommandLogWriter, flushInterval time.Duration) *CommandLogger {
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}

	return &CommandLogger{
		writer:        writer,
		flushInterval: flushInterval,
	}
}

// Enqueue adds an event to be written on the next flush.
func (l *CommandLogger) Enqueue(event domain.LoggedCommandEvent) {
	l.mu.Lock()
	l.queue = append(l.queue, event)
	l.mu.Unlock()
}

func (l *CommandLogger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.queue)
}

// Run flushes the queue every flush interval until ctx is done, then flushes
// whatever is left once more.
func (l *CommandLogger) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("stopping command logger")
			if err := l.Flush(); err != nil {
				return err
			}
			return ctx.Err()
		case <-ticker.C:
			if err := l.Flush(); err != nil {
				log.Error().Err(err).Msg("failed to write command log")
			}
		}
	}
}

// Flush writes every queued event. On failure the events are put back in front
// of anything enqueued meanwhile.
func (l *CommandLogger) Flush() error {
	l.mu.Lock()
	pending := l.queue
	l.queue = nil
	l.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	log.Trace().Int("events", len(pending)).Msg("writing command log")

	if err := l.writer.Append(pending); err != nil {
		l.mu.Lock()
		l.queue = append(pending, l.queue...)
		l.mu.Unlock()
		return err
	}

	return nil
}
