// Package client holds the fetch collaborators the resolution engine talks
// to: the WeatherAPI client serving the rich canonical shape and the
// OpenWeather client serving the raw nearby-city shape.
package client

import (
	"context"
	"errors"

	"github.com/JorgeF123/weather-dashboard/internal/models"
)

// Fetcher is the collaborator contract consumed by the resolver and the
// saved-places ledger. Implementations must treat any upstream response
// carrying a top-level error field as a failure regardless of HTTP status,
// and propagate its message as the failure reason.
type Fetcher interface {
	FetchByName(ctx context.Context, name string) (models.WeatherRecord, error)
	FetchByCoords(ctx context.Context, lat, lon float64) (models.WeatherRecord, error)
	FetchNearby(ctx context.Context, lat, lon float64, region string) ([]models.NearbyCityEntry, error)
	FetchForecast(ctx context.Context, query string, days int) ([]models.ForecastDay, error)
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
)

// Upstream composes the two provider clients into one Fetcher: current
// weather and forecasts come from WeatherAPI, nearby candidates from
// OpenWeather.
type Upstream struct {
	api    *WeatherAPIClient
	nearby *OpenWeatherClient
}

// NewUpstream wires the region-verification hook of the nearby client to the
// WeatherAPI client so nearby candidates can be checked against the anchor's
// administrative region.
func NewUpstream(api *WeatherAPIClient, nearby *OpenWeatherClient) *Upstream {
	if nearby != nil && nearby.regionOf == nil && api != nil {
		nearby.regionOf = func(ctx context.Context, lat, lon float64) (string, error) {
			rec, err := api.FetchByCoords(ctx, lat, lon)
			if err != nil {
				return "", err
			}
			return rec.Region, nil
		}
	}
	return &Upstream{api: api, nearby: nearby}
}

func (u *Upstream) FetchByName(ctx context.Context, name string) (models.WeatherRecord, error) {
	return u.api.FetchByName(ctx, name)
}

func (u *Upstream) FetchByCoords(ctx context.Context, lat, lon float64) (models.WeatherRecord, error) {
	return u.api.FetchByCoords(ctx, lat, lon)
}

func (u *Upstream) FetchNearby(ctx context.Context, lat, lon float64, region string) ([]models.NearbyCityEntry, error) {
	return u.nearby.FetchNearby(ctx, lat, lon, region)
}

func (u *Upstream) FetchForecast(ctx context.Context, query string, days int) ([]models.ForecastDay, error) {
	return u.api.FetchForecast(ctx, query, days)
}
