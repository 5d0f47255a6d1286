package service

import (
	"context"
	"errors"
	"sync"
	"tarabot/internal/core/domain"
	"tarabot/internal/core/port"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultComponentTTL  = 10 * time.Minute
	DefaultSweepInterval = 5 * time.Second
)

var ErrComponentNotFound = errors.New("component not registered")

type registration struct {
	handler   port.ComponentFunc
	cleanup   port.CleanupFunc
	expiresAt time.Time
}

// ComponentMap routes component interactions to short-lived handlers by custom ID.
// Registrations expire after a TTL; Watch removes expired ones and runs their
// cleanup exactly once.
type ComponentMap struct {
	mu            sync.RWMutex
	registrations map[string]registration
	ttl           time.Duration
	sweepInterval time.Duration
	now           func() time.Time
	metrics       port.Metrics
}

type ComponentOption func(*ComponentMap)

func WithTTL(ttl time.Duration) ComponentOption {
	return func(m *ComponentMap) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

func WithSweepInterval(interval time.Duration) ComponentOption {
	return func(m *ComponentMap) {
		if interval > 0 {
			m.sweepInterval = interval
		}
	}
}

func WithClock(now func() time.Time) ComponentOption {
	return func(m *ComponentMap) {
		m.now = now
	}
}

func WithComponentMetrics(metrics port.Metrics) ComponentOption {
	return func(m *ComponentMap) {
		m.metrics = metrics
	}
}

func NewComponentMap(opts ...ComponentOption) *ComponentMap {
	m := &ComponentMap{
		registrations: make(map[string]registration),
		ttl:           DefaultComponentTTL,
		sweepInterval: DefaultSweepInterval,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Insert registers handler and cleanup for customID, replacing any previous
// registration for it. A nil cleanup means nothing runs on expiry.
func (m *ComponentMap) Insert(customID string, handler port.ComponentFunc, cleanup port.CleanupFunc) {
	m.mu.Lock()
	m.registrations[customID] = registration{
		handler:   handler,
		cleanup:   cleanup,
		expiresAt: m.now().Add(m.ttl),
	}
	n := len(m.registrations)
	m.mu.Unlock()

	log.Debug().Str("customId", customID).Dur("ttl", m.ttl).Msg("registered component")
	m.reportSize(n)
}

// Run invokes the handler registered for customID. It neither removes the
// registration nor extends its expiry.
func (m *ComponentMap) Run(ctx context.Context, customID string, interaction *domain.Interaction,
	responder port.Responder) (bool, error) {
	m.mu.RLock()
	reg, ok := m.registrations[customID]
	m.mu.RUnlock()

	if !ok {
		log.Debug().Str("customId", customID).Msg("no component registered")
		return false, nil
	}

	return true, reg.handler(ctx, interaction, responder)
}

// Timeout brings the expiry of customID forward to now.
func (m *ComponentMap) Timeout(customID string) error {
	m.mu.Lock()
	reg, ok := m.registrations[customID]
	if ok {
		reg.expiresAt = m.now()
		m.registrations[customID] = reg
	}
	m.mu.Unlock()

	if !ok {
		log.Warn().Str("customId", customID).Msg("timeout requested for unregistered component")
		return ErrComponentNotFound
	}

	return nil
}

func (m *ComponentMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.registrations)
}

// Watch sweeps expired registrations every sweep interval until ctx is done.
func (m *ComponentMap) Watch(ctx context.Context, responder port.Responder) error {
	log.Info().Dur("interval", m.sweepInterval).Msg("starting component timeout watcher")

	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("stopping component timeout watcher")
			return ctx.Err()
		case <-ticker.C:
			m.sweep(ctx, responder)
		}
	}
}

// sweep collects expired ids under the read lock, then removes them one write
// lock at a time so cleanups never run while the map is locked.
func (m *ComponentMap) sweep(ctx context.Context, responder port.Responder) int {
	now := m.now()

	removed := 0
	for _, id := range m.expired(now) {
		if m.reap(ctx, id, now, responder) {
			removed++
		}
	}

	return removed
}

// expired lists the ids whose expiry is at or before now.
func (m *ComponentMap) expired(now time.Time) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for id, reg := range m.registrations {
		if !reg.expiresAt.After(now) {
			ids = append(ids, id)
		}
	}

	return ids
}

// reap removes id if it is still expired at now and runs its cleanup. An id
// re-inserted or timed out after the scan is left for a later sweep.
func (m *ComponentMap) reap(ctx context.Context, id string, now time.Time, responder port.Responder) bool {
	m.mu.Lock()
	reg, ok := m.registrations[id]
	if !ok || reg.expiresAt.After(now) {
		m.mu.Unlock()
		return false
	}
	delete(m.registrations, id)
	n := len(m.registrations)
	m.mu.Unlock()

	m.reportSize(n)
	m.cleanup(ctx, id, reg, responder)

	return true
}

func (m *ComponentMap) cleanup(ctx context.Context, id string, reg registration, responder port.Responder) {
	if reg.cleanup == nil {
		log.Trace().Str("customId", id).Msg("component expired without cleanup")
		if m.metrics != nil {
			m.metrics.ComponentCleaned(false)
		}
		return
	}

	err := reg.cleanup(ctx, id, responder)
	if err != nil {
		log.Error().Err(err).Str("customId", id).Msg("component cleanup failed")
	} else {
		log.Debug().Str("customId", id).Msg("component cleaned up")
	}

	if m.metrics != nil {
		m.metrics.ComponentCleaned(err != nil)
	}
}

func (m *ComponentMap) reportSize(n int) {
	if m.metrics != nil {
		m.metrics.ComponentsRegistered(n)
	}
}
