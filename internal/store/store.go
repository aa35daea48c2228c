// Package store persists the saved-places list. The in-memory backend is the
// default; the memcached backend keeps the list alive across restarts when a
// memcached cluster is available.
package store

import (
	"context"
	"errors"
	"sync"

	"github.com/JorgeF123/weather-dashboard/internal/models"
)

var (
	// ErrNotFound is returned when a place ID does not exist in the store.
	ErrNotFound = errors.New("saved place not found")
)

// Store defines the persistence contract for saved places. List returns
// entries in insertion order.
type Store interface {
	Add(ctx context.Context, place models.SavedPlace) error
	List(ctx context.Context) ([]models.SavedPlace, error)
	Remove(ctx context.Context, id string) error
}

// Pinger is implemented by backends with a reachable remote; health checks
// probe it when present.
type Pinger interface {
	Ping() error
}

// MemoryStore implements Store with a mutex-guarded slice. Insertion order
// is preserved so the saved-places view stays stable across reloads.
type MemoryStore struct {
	mu     sync.RWMutex
	places []models.SavedPlace
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Add appends a place to the list.
func (s *MemoryStore) Add(ctx context.Context, place models.SavedPlace) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.places = append(s.places, place)
	return nil
}

// List returns a copy of the saved places in insertion order.
func (s *MemoryStore) List(ctx context.Context) ([]models.SavedPlace, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SavedPlace, len(s.places))
	copy(out, s.places)
	return out, nil
}

// Remove deletes the place with the given ID. Returns ErrNotFound when no
// entry matches.
func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.places {
		if p.ID == id {
			s.places = append(s.places[:i], s.places[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
