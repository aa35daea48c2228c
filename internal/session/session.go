// Package session holds the shared view state: the current canonical record,
// the nearby-city list, and the enriched saved-places list. Each slice has a
// single writer per action; concurrent actions are last-write-wins.
package session

import (
	"sync"

	"github.com/JorgeF123/weather-dashboard/internal/models"
)

// Session is the explicit state container passed to the resolver and ledger.
type Session struct {
	mu      sync.RWMutex
	current *models.WeatherRecord
	caveat  string
	nearby  []models.NearbyCityEntry
	saved   []models.EnrichedPlace
}

func New() *Session {
	return &Session{}
}

// SetCurrent replaces the current record and its caveat. An empty caveat
// marks the record as fresh.
func (s *Session) SetCurrent(rec models.WeatherRecord, caveat string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &rec
	s.caveat = caveat
}

// Current returns the current record, its caveat, and whether one is set.
func (s *Session) Current() (models.WeatherRecord, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return models.WeatherRecord{}, "", false
	}
	return *s.current, s.caveat, true
}

// SetNearby replaces the nearby-city list.
func (s *Session) SetNearby(entries []models.NearbyCityEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nearby = entries
}

// Nearby returns the nearby-city list.
func (s *Session) Nearby() []models.NearbyCityEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nearby
}

// SetSaved replaces the enriched saved-places view.
func (s *Session) SetSaved(places []models.EnrichedPlace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = places
}

// Saved returns the enriched saved-places view.
func (s *Session) Saved() []models.EnrichedPlace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saved
}
