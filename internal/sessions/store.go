// Package sessions keeps the active filters of each client session.
package sessions

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/resourcekit/internal/domain"
	"github.com/rpattn/resourcekit/internal/filters"
)

// ErrSessionNotFound is returned for unknown or deleted session ids.
var ErrSessionNotFound = errors.New("session not found")

// Session is a snapshot of one session's filters. UpdatedAt moves when the
// filters change; LastSeenAt moves on every read or change.
type Session struct {
	ID         uuid.UUID             `json:"id"`
	Filters    *domain.ActiveFilters `json:"filters"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
	LastSeenAt time.Time             `json:"last_seen_at"`
}

// Store is a concurrency-safe in-memory session store.
type Store struct {
	registry *domain.Registry
	engine   *filters.Engine

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewStore creates an empty store. New filters are validated with engine.
func NewStore(reg *domain.Registry, engine *filters.Engine) *Store {
	return &Store{
		registry: reg,
		engine:   engine,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Create opens a session with an empty filter set for every lookup key.
func (s *Store) Create() Session {
	now := time.Now()
	session := &Session{
		ID:         uuid.New(),
		Filters:    domain.NewActiveFilters(s.registry.LookupKeys()),
		CreatedAt:  now,
		UpdatedAt:  now,
		LastSeenAt: now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()
	return snapshot(session)
}

// Get returns a snapshot of the session and marks it as seen.
func (s *Store) Get(id uuid.UUID) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	session.LastSeenAt = time.Now()
	return snapshot(session), nil
}

// Delete removes the session.
func (s *Store) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	return nil
}

// AddFilter validates filter for key and appends it.
func (s *Store) AddFilter(id uuid.UUID, key domain.LookupKey, filter domain.Filter) (Session, error) {
	if err := s.engine.Validate(key, filter); err != nil {
		return Session{}, err
	}
	return s.update(id, func(af *domain.ActiveFilters) error {
		return af.Add(key, filter)
	})
}

// RemoveFilter removes the filter at index for key.
func (s *Store) RemoveFilter(id uuid.UUID, key domain.LookupKey, index int) (Session, error) {
	return s.update(id, func(af *domain.ActiveFilters) error {
		return af.Remove(key, index)
	})
}

// ClearFilters removes every filter for key.
func (s *Store) ClearFilters(id uuid.UUID, key domain.LookupKey) (Session, error) {
	return s.update(id, func(af *domain.ActiveFilters) error {
		return af.Clear(key)
	})
}

// ClearAll removes every filter of the session.
func (s *Store) ClearAll(id uuid.UUID) (Session, error) {
	return s.update(id, func(af *domain.ActiveFilters) error {
		af.ClearAll()
		return nil
	})
}

// SetMode changes how the filters for key are combined.
func (s *Store) SetMode(id uuid.UUID, key domain.LookupKey, mode domain.FilterMode) (Session, error) {
	return s.update(id, func(af *domain.ActiveFilters) error {
		return af.SetMode(key, mode)
	})
}

// Expire removes sessions last seen before cutoff and returns their ids.
func (s *Store) Expire(cutoff time.Time) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []uuid.UUID
	for id, session := range s.sessions {
		if session.LastSeenAt.Before(cutoff) {
			delete(s.sessions, id)
			removed = append(removed, id)
		}
	}
	return removed
}

func (s *Store) update(id uuid.UUID, fn func(*domain.ActiveFilters) error) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err := fn(session.Filters); err != nil {
		return Session{}, err
	}
	session.UpdatedAt = time.Now()
	session.LastSeenAt = session.UpdatedAt
	return snapshot(session), nil
}

func snapshot(session *Session) Session {
	return Session{
		ID:         session.ID,
		Filters:    session.Filters.Clone(),
		CreatedAt:  session.CreatedAt,
		UpdatedAt:  session.UpdatedAt,
		LastSeenAt: session.LastSeenAt,
	}
}
