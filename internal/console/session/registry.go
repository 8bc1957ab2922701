// Package session keeps one lifecycle controller per browser page session
// and fans push events out to all of them.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tair/product-console/internal/catalog/controller"
	"github.com/tair/product-console/internal/catalog/notify"
	"github.com/tair/product-console/pkg/logger"
)

// CookieName carries the session id in the browser
const CookieName = "console_session"

// Factory builds the controller of a new session
type Factory func(sessionID string) *controller.Controller

type entry struct {
	ctrl     *controller.Controller
	lastSeen time.Time
}

// Registry maps session ids onto controllers
type Registry struct {
	factory Factory
	ttl     time.Duration
	now     func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewRegistry creates an empty registry. Sessions idle for longer than ttl
// are dropped by Sweep.
func NewRegistry(factory Factory, ttl time.Duration) *Registry {
	return &Registry{
		factory:  factory,
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// NewID returns a fresh session id
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id looks like one we issued
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Get returns the controller of sessionID, creating it on first use
func (r *Registry) Get(sessionID string) *controller.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		e = &entry{ctrl: r.factory(sessionID)}
		r.sessions[sessionID] = e
		logger.Logger.Debug().
			Str("session_id", sessionID).
			Int("sessions", len(r.sessions)).
			Msg("Session created")
	}
	e.lastSeen = r.now()
	return e.ctrl
}

// Lookup returns the controller of sessionID without creating one
func (r *Registry) Lookup(sessionID string) (*controller.Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return e.ctrl, true
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than the ttl and returns how many went
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	removed := 0
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps idle sessions every interval until ctx is done
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				logger.Logger.Info().
					Int("removed", n).
					Int("sessions", r.Len()).
					Msg("Idle sessions removed")
			}
		}
	}
}

// HandleEvent hands a push event to every live session. Each controller
// decides on its own whether the event concerns its farm.
func (r *Registry) HandleEvent(ctx context.Context, event notify.Event) error {
	r.mu.RLock()
	ctrls := make([]*controller.Controller, 0, len(r.sessions))
	for _, e := range r.sessions {
		ctrls = append(ctrls, e.ctrl)
	}
	r.mu.RUnlock()

	for _, ctrl := range ctrls {
		if err := ctrl.HandleEvent(ctx, event); err != nil {
			logger.Warn(ctx).
				Err(err).
				Str("session_id", ctrl.SessionID()).
				Str("event_type", event.Kind).
				Msg("Session failed to apply push event")
		}
	}
	return nil
}
