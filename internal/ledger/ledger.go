// Package ledger maintains the saved-places list: identity and uniqueness at
// save time, per-entry error isolation at read time, and reload-after-mutate
// so the in-memory view never drifts from the durable store.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JorgeF123/weather-dashboard/internal/client"
	"github.com/JorgeF123/weather-dashboard/internal/models"
	"github.com/JorgeF123/weather-dashboard/internal/observability"
	"github.com/JorgeF123/weather-dashboard/internal/session"
	"github.com/JorgeF123/weather-dashboard/internal/store"
	"github.com/JorgeF123/weather-dashboard/internal/validation"
)

// ErrAlreadySaved means a place with the same name is already on the list.
// Uniqueness keys on the exact name.
var ErrAlreadySaved = errors.New("place already saved")

// ErrNotFound re-exports the store sentinel for callers that only import
// this package.
var ErrNotFound = store.ErrNotFound

const defaultReloadTimeout = 30 * time.Second

// Ledger wraps the store with enrichment and the reload-after-mutate
// discipline.
type Ledger struct {
	store   store.Store
	fetch   client.Fetcher
	sess    *session.Session
	logger  *zap.Logger
	reloads *reloadCoalescer
}

func New(st store.Store, fetch client.Fetcher, sess *session.Session, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:   st,
		fetch:   fetch,
		sess:    sess,
		logger:  logger,
		reloads: newReloadCoalescer(defaultReloadTimeout),
	}
}

// Save validates and persists a new place, then reloads the full list. A
// name-only save is refused: without coordinates the place cannot be
// disambiguated later.
func (l *Ledger) Save(ctx context.Context, name string, lat, lon *float64) (models.SavedPlace, error) {
	cleaned, err := validation.CityName(name)
	if err != nil {
		return models.SavedPlace{}, err
	}
	if err := validation.CoordinatePtrs(lat, lon); err != nil {
		return models.SavedPlace{}, err
	}

	existing, err := l.store.List(ctx)
	if err != nil {
		return models.SavedPlace{}, err
	}
	for _, p := range existing {
		if p.Name == cleaned {
			return models.SavedPlace{}, ErrAlreadySaved
		}
	}

	place := models.SavedPlace{
		ID:   uuid.NewString(),
		Name: cleaned,
		Lat:  *lat,
		Lon:  *lon,
	}
	if err := l.store.Add(ctx, place); err != nil {
		return models.SavedPlace{}, err
	}

	l.logger.Info("place saved",
		zap.String("id", place.ID),
		zap.String("name", place.Name))
	if _, err := l.Reload(ctx); err != nil {
		// Reload only fails on context errors; the save itself succeeded.
		l.logger.Warn("reload after save failed", zap.Error(err))
	}
	return place, nil
}

// Delete removes a place by ID, then reloads the full list. No optimistic
// local removal: the view is always rebuilt from the store.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	if err := l.store.Remove(ctx, id); err != nil {
		return err
	}
	l.logger.Info("place deleted", zap.String("id", id))
	if _, err := l.Reload(ctx); err != nil {
		l.logger.Warn("reload after delete failed", zap.Error(err))
	}
	return nil
}

// Reload rebuilds the enriched view from the store. A whole-list store
// failure degrades to an empty list rather than an error; a single entry's
// enrichment failure keeps the entry with an error marker so siblings still
// render. Concurrent reloads are coalesced into one pass.
func (l *Ledger) Reload(ctx context.Context) ([]models.EnrichedPlace, error) {
	return l.reloads.Do(ctx, func() ([]models.EnrichedPlace, error) {
		observability.LedgerReloadsTotal.Inc()

		places, err := l.store.List(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Error("saved-places list fetch failed", zap.Error(err))
			empty := []models.EnrichedPlace{}
			if l.sess != nil {
				l.sess.SetSaved(empty)
			}
			return empty, nil
		}

		enriched := make([]models.EnrichedPlace, len(places))
		var wg sync.WaitGroup
		for i, p := range places {
			wg.Add(1)
			go func(i int, p models.SavedPlace) {
				defer wg.Done()
				enriched[i] = l.enrich(ctx, p)
			}(i, p)
		}
		wg.Wait()

		if l.sess != nil {
			l.sess.SetSaved(enriched)
		}
		return enriched, nil
	})
}

func (l *Ledger) enrich(ctx context.Context, p models.SavedPlace) models.EnrichedPlace {
	rec, err := l.fetch.FetchByCoords(ctx, p.Lat, p.Lon)
	if err != nil {
		observability.LedgerEntryErrorsTotal.Inc()
		l.logger.Warn("saved-place enrichment failed",
			zap.String("id", p.ID),
			zap.String("name", p.Name),
			zap.Error(err))
		return models.EnrichedPlace{
			SavedPlace: p,
			Err:        "Failed to fetch weather: " + err.Error(),
		}
	}
	return models.EnrichedPlace{SavedPlace: p, Weather: &rec}
}

// IsSaved reports whether a place with exactly this name is on the current
// in-memory view. Used for UI gating of the save action.
func (l *Ledger) IsSaved(name string) bool {
	if l.sess == nil {
		return false
	}
	for _, p := range l.sess.Saved() {
		if p.Name == name {
			return true
		}
	}
	return false
}
