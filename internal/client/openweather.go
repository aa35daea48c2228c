package client

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/JorgeF123/weather-dashboard/internal/models"
	"github.com/JorgeF123/weather-dashboard/internal/observability"
	"github.com/JorgeF123/weather-dashboard/internal/traffic"
)

const (
	openWeatherProvider = "openweather"

	// DefaultNearbyRadiusKm bounds how far a "nearby" city may sit from the
	// anchor coordinate.
	DefaultNearbyRadiusKm = 15.0

	// DefaultNearbyLimit caps the number of nearby cities returned.
	DefaultNearbyLimit = 6

	// regionProximityKm: a candidate this close to the anchor is kept even
	// when its administrative region cannot be confirmed.
	regionProximityKm = 5.0
)

// OpenWeatherClient discovers cities around a coordinate via OpenWeather's
// /find endpoint. Entries come back in the raw provider shape and are
// normalized by the caller.
type OpenWeatherClient struct {
	apiKey   string
	http     *resty.Client
	radiusKm float64
	limit    int

	// regionOf resolves the administrative region of a coordinate so nearby
	// results can be filtered to the anchor's region. Optional.
	regionOf func(ctx context.Context, lat, lon float64) (string, error)
}

// NewOpenWeatherClient builds a client for the /find nearby search. baseURL
// is the API root (e.g. https://api.openweathermap.org/data/2.5).
func NewOpenWeatherClient(apiKey, baseURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}

	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		SetHeader("Accept", "application/json")

	return &OpenWeatherClient{
		apiKey:   apiKey,
		http:     rc,
		radiusKm: DefaultNearbyRadiusKm,
		limit:    DefaultNearbyLimit,
	}, nil
}

type findResponse struct {
	Cod     any                      `json:"cod"`
	Message string                   `json:"message"`
	List    []models.NearbyCityEntry `json:"list"`
}

// FetchNearby returns cities around (lat, lon), nearest first, capped at the
// configured limit. When region is non-empty, candidates are kept only if
// their region matches or they sit within the proximity override distance.
func (c *OpenWeatherClient) FetchNearby(ctx context.Context, lat, lon float64, region string) ([]models.NearbyCityEntry, error) {
	start := time.Now()

	var out findResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"lat":   fmt.Sprintf("%g", lat),
			"lon":   fmt.Sprintf("%g", lon),
			"cnt":   "25",
			"units": "imperial",
			"appid": c.apiKey,
		}).
		SetResult(&out).
		SetError(&out).
		Get("/find")

	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil || (resp != nil && resp.IsError()) {
		status = "error"
		traffic.RecordError()
	} else {
		traffic.RecordSuccess()
	}
	observability.ProviderCallsTotal.WithLabelValues(openWeatherProvider, status).Inc()
	observability.ProviderDuration.WithLabelValues(openWeatherProvider, status).Observe(duration)

	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFailure, err)
	}
	if resp.IsError() {
		return nil, c.errorFor(resp.StatusCode(), out.Message)
	}

	candidates := c.withinRadius(lat, lon, out.List)
	candidates = c.filterByRegion(ctx, lat, lon, region, candidates)
	if len(candidates) > c.limit {
		candidates = candidates[:c.limit]
	}
	return candidates, nil
}

// withinRadius drops candidates beyond the radius and sorts the rest by
// distance from the anchor, nearest first.
func (c *OpenWeatherClient) withinRadius(lat, lon float64, list []models.NearbyCityEntry) []models.NearbyCityEntry {
	type ranked struct {
		entry models.NearbyCityEntry
		dist  float64
	}

	kept := make([]ranked, 0, len(list))
	for _, e := range list {
		elat, elon := e.Coordinates()
		if elat == nil || elon == nil {
			continue
		}
		d := haversineKm(lat, lon, *elat, *elon)
		if d > c.radiusKm {
			continue
		}
		kept = append(kept, ranked{entry: e, dist: d})
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].dist < kept[j].dist })

	out := make([]models.NearbyCityEntry, len(kept))
	for i, r := range kept {
		out[i] = r.entry
	}
	return out
}

// filterByRegion keeps candidates whose region matches the anchor's region.
// Region lookups are best-effort: a candidate whose region cannot be
// resolved is kept only when it sits within the proximity override.
func (c *OpenWeatherClient) filterByRegion(ctx context.Context, lat, lon float64, region string, list []models.NearbyCityEntry) []models.NearbyCityEntry {
	if region == "" || c.regionOf == nil {
		return list
	}

	want := strings.ToLower(strings.TrimSpace(region))
	out := make([]models.NearbyCityEntry, 0, len(list))
	for _, e := range list {
		elat, elon := e.Coordinates()
		if elat == nil || elon == nil {
			continue
		}
		got, err := c.regionOf(ctx, *elat, *elon)
		if err != nil {
			if haversineKm(lat, lon, *elat, *elon) <= regionProximityKm {
				out = append(out, e)
			}
			continue
		}
		if strings.ToLower(strings.TrimSpace(got)) == want ||
			haversineKm(lat, lon, *elat, *elon) <= regionProximityKm {
			out = append(out, e)
		}
	}
	return out
}

func (c *OpenWeatherClient) errorFor(code int, message string) error {
	if message == "" {
		message = fmt.Sprintf("HTTP %d", code)
	}
	switch code {
	case 401, 403:
		return fmt.Errorf("%w: %s", ErrInvalidAPIKey, message)
	case 404:
		return fmt.Errorf("%w: %s", ErrLocationNotFound, message)
	case 429:
		return fmt.Errorf("%w: %s", ErrRateLimited, message)
	}
	return fmt.Errorf("%w: %s", ErrUpstreamFailure, message)
}

const earthRadiusKm = 6371.0

// haversineKm is the great-circle distance between two coordinates.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
