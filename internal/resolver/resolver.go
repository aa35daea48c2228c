// Package resolver turns an ambiguous selection intent (name, coordinates,
// or a partially-shaped prior record) into one canonical weather record via
// an ordered fallback chain.
package resolver

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/JorgeF123/weather-dashboard/internal/client"
	"github.com/JorgeF123/weather-dashboard/internal/models"
	"github.com/JorgeF123/weather-dashboard/internal/normalize"
	"github.com/JorgeF123/weather-dashboard/internal/observability"
	"github.com/JorgeF123/weather-dashboard/internal/session"
	"github.com/JorgeF123/weather-dashboard/internal/validation"
)

// Caveats attached to degraded resolutions. Callers distinguish degraded
// results from fresh ones by a non-empty caveat, never by error inspection.
const (
	CaveatRefreshUnavailable = "Using cached data - weather refresh unavailable"
	CaveatFullUnavailable    = "Using cached data - full weather unavailable"
)

// ErrInvalidSelection means the intent carried nothing resolvable: no
// coordinates, no name, and no complete prior record.
var ErrInvalidSelection = errors.New("invalid selection")

// Selection is a resolution intent. Coordinates, when present, are the
// identity-bearing lookup; Cached and Entry are fallback material from a
// prior response.
type Selection struct {
	Name string
	Lat  *float64
	Lon  *float64

	// Cached is a prior canonical record carried by the intent, used when a
	// fresh fetch fails.
	Cached *models.WeatherRecord

	// Entry is a raw nearby-city entry not yet normalized, used as the
	// lowest-fidelity fallback.
	Entry *models.NearbyCityEntry
}

// Resolution is the outcome of a resolve action. A non-empty Caveat marks a
// degraded record.
type Resolution struct {
	Record models.WeatherRecord
	Caveat string
}

// Degraded reports whether the record is stale or partial.
func (r Resolution) Degraded() bool { return r.Caveat != "" }

// Resolver executes the resolution chain against the fetch collaborator and
// publishes outcomes to the session.
type Resolver struct {
	fetch  client.Fetcher
	sess   *session.Session
	logger *zap.Logger
}

func New(fetch client.Fetcher, sess *session.Session, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{fetch: fetch, sess: sess, logger: logger}
}

// Resolve runs the fallback chain for one selection intent, strictly
// sequentially: a later step runs only after the prior network step settled.
//
//  1. Coordinates present: re-fetch fresh by coordinates, preferring them
//     over any cached fields. Success clears any prior caveat.
//  2. Coordinate fetch failed, intent has a complete record: return it stale
//     with a caveat rather than failing.
//  3. Coordinate fetch failed, intent is a raw nearby entry: normalize it
//     locally and return with a stronger caveat.
//  4. No coordinates: resolve by name; on failure fall back to step 2's
//     cached check.
//  5. No coordinates and no name: pass a complete record through, otherwise
//     the action fails.
func (r *Resolver) Resolve(ctx context.Context, sel Selection) (Resolution, error) {
	if sel.Lat != nil && sel.Lon != nil {
		if err := validation.Coordinates(*sel.Lat, *sel.Lon); err != nil {
			observability.RecordResolution("error")
			return Resolution{}, err
		}

		rec, err := r.fetch.FetchByCoords(ctx, *sel.Lat, *sel.Lon)
		if err == nil {
			return r.publish(Resolution{Record: rec}, "fresh"), nil
		}
		r.logger.Warn("coordinate fetch failed, trying fallbacks",
			zap.Float64("lat", *sel.Lat),
			zap.Float64("lon", *sel.Lon),
			zap.Error(err))

		if sel.Cached != nil && sel.Cached.Complete() {
			return r.publish(Resolution{Record: *sel.Cached, Caveat: CaveatRefreshUnavailable}, "cached_fallback"), nil
		}
		if sel.Entry != nil {
			return r.publish(Resolution{Record: normalize.Nearby(*sel.Entry), Caveat: CaveatFullUnavailable}, "partial_fallback"), nil
		}
		observability.RecordResolution("error")
		return Resolution{}, err
	}

	if name := strings.TrimSpace(sel.Name); name != "" {
		rec, err := r.fetch.FetchByName(ctx, name)
		if err == nil {
			return r.publish(Resolution{Record: rec}, "name"), nil
		}
		r.logger.Warn("name fetch failed", zap.String("name", name), zap.Error(err))

		if sel.Cached != nil && sel.Cached.Complete() {
			return r.publish(Resolution{Record: *sel.Cached, Caveat: CaveatRefreshUnavailable}, "cached_fallback"), nil
		}
		observability.RecordResolution("error")
		return Resolution{}, err
	}

	if sel.Cached != nil && sel.Cached.Complete() {
		return r.publish(Resolution{Record: *sel.Cached}, "passthrough"), nil
	}
	observability.RecordResolution("error")
	return Resolution{}, ErrInvalidSelection
}

// Search resolves weather by free-text name. On success, when the record
// carries coordinates, the nearby list is refreshed scoped to the record's
// region; a nearby failure never fails the search. Provider failures surface
// their message verbatim.
func (r *Resolver) Search(ctx context.Context, query string) (models.WeatherRecord, error) {
	name, err := validation.CityName(query)
	if err != nil {
		return models.WeatherRecord{}, err
	}

	rec, fetchErr := r.fetch.FetchByName(ctx, name)
	if fetchErr != nil {
		observability.RecordResolution("error")
		return models.WeatherRecord{}, fetchErr
	}
	observability.RecordResolution("name")
	if r.sess != nil {
		r.sess.SetCurrent(rec, "")
	}

	if rec.HasCoords() {
		if _, err := r.Nearby(ctx, *rec.Lat, *rec.Lon, rec.Region); err != nil {
			r.logger.Warn("nearby refresh after search failed",
				zap.String("name", rec.Name), zap.Error(err))
		}
	}
	return rec, nil
}

// Nearby fetches candidate cities around a coordinate. The region filter is
// forwarded to the collaborator, not applied here. Entries stay in the raw
// shape until selected.
func (r *Resolver) Nearby(ctx context.Context, lat, lon float64, region string) ([]models.NearbyCityEntry, error) {
	if err := validation.Coordinates(lat, lon); err != nil {
		return nil, err
	}
	entries, err := r.fetch.FetchNearby(ctx, lat, lon, region)
	if err != nil {
		return nil, err
	}
	if r.sess != nil {
		r.sess.SetNearby(entries)
	}
	return entries, nil
}

// Forecast days bounds. Requests outside the range are clamped.
const (
	MinForecastDays     = 1
	MaxForecastDays     = 4
	DefaultForecastDays = 3
)

// Forecast fetches the multi-day forecast for a name or "lat,lon" query.
func (r *Resolver) Forecast(ctx context.Context, query string, days int) ([]models.ForecastDay, error) {
	name, err := validation.CityName(query)
	if err != nil {
		return nil, err
	}
	if days < MinForecastDays || days > MaxForecastDays {
		days = DefaultForecastDays
	}
	return r.fetch.FetchForecast(ctx, name, days)
}

func (r *Resolver) publish(res Resolution, outcome string) Resolution {
	observability.RecordResolution(outcome)
	if r.sess != nil {
		r.sess.SetCurrent(res.Record, res.Caveat)
	}
	return res
}
