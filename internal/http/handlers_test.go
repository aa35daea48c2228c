package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JorgeF123/weather-dashboard/internal/client"
	"github.com/JorgeF123/weather-dashboard/internal/ledger"
	"github.com/JorgeF123/weather-dashboard/internal/lifecycle"
	"github.com/JorgeF123/weather-dashboard/internal/models"
	"github.com/JorgeF123/weather-dashboard/internal/resolver"
	"github.com/JorgeF123/weather-dashboard/internal/session"
	"github.com/JorgeF123/weather-dashboard/internal/store"
	"github.com/JorgeF123/weather-dashboard/internal/traffic"
)

type fakeFetcher struct {
	byName   func(name string) (models.WeatherRecord, error)
	byCoords func(lat, lon float64) (models.WeatherRecord, error)
	nearby   func(lat, lon float64, region string) ([]models.NearbyCityEntry, error)
	forecast func(query string, days int) ([]models.ForecastDay, error)
}

func (f *fakeFetcher) FetchByName(_ context.Context, name string) (models.WeatherRecord, error) {
	if f.byName == nil {
		return models.WeatherRecord{}, errors.New("unexpected FetchByName")
	}
	return f.byName(name)
}

func (f *fakeFetcher) FetchByCoords(_ context.Context, lat, lon float64) (models.WeatherRecord, error) {
	if f.byCoords == nil {
		return models.WeatherRecord{}, errors.New("unexpected FetchByCoords")
	}
	return f.byCoords(lat, lon)
}

func (f *fakeFetcher) FetchNearby(_ context.Context, lat, lon float64, region string) ([]models.NearbyCityEntry, error) {
	if f.nearby == nil {
		return nil, errors.New("unexpected FetchNearby")
	}
	return f.nearby(lat, lon, region)
}

func (f *fakeFetcher) FetchForecast(_ context.Context, query string, days int) ([]models.ForecastDay, error) {
	if f.forecast == nil {
		return nil, errors.New("unexpected FetchForecast")
	}
	return f.forecast(query, days)
}

var _ client.Fetcher = (*fakeFetcher)(nil)

func ptr(v float64) *float64 { return &v }

func okRecord(name string) models.WeatherRecord {
	temp := 63.0
	lat, lon := 37.8, -122.27
	return models.WeatherRecord{
		Name: name, Region: "California", Country: "USA",
		Lat: &lat, Lon: &lon, TempF: &temp, Condition: "Clear",
	}
}

func newTestHandler(fetch client.Fetcher) *Handler {
	sess := session.New()
	res := resolver.New(fetch, sess, zap.NewNop())
	led := ledger.New(store.NewMemoryStore(), fetch, sess, zap.NewNop())
	return NewHandler(res, led, &HealthConfig{
		DegradedWindow:   time.Minute,
		DegradedErrorPct: 50,
		StartTime:        time.Now(),
	}, zap.NewNop(), nil)
}

func doRequest(h *Handler, method, target, body string) *httptest.ResponseRecorder {
	router := h.NewRouter(5 * time.Second)
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// TestGetWeather_Success covers GET /weather?city= with the nearby side
// refresh.
func TestGetWeather_Success(t *testing.T) {
	fetch := &fakeFetcher{
		byName: func(name string) (models.WeatherRecord, error) { return okRecord(name), nil },
		nearby: func(lat, lon float64, region string) ([]models.NearbyCityEntry, error) {
			return []models.NearbyCityEntry{{Name: "Alameda"}}, nil
		},
	}
	rec := doRequest(newTestHandler(fetch), http.MethodGet, "/weather?city=Oakland", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	var got weatherResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Name != "Oakland" || got.Caveat != "" {
		t.Errorf("body = %+v, want fresh Oakland record", got)
	}
}

// TestGetWeather_EmptyCity is rejected with 400 before any fetch.
func TestGetWeather_EmptyCity(t *testing.T) {
	rec := doRequest(newTestHandler(&fakeFetcher{}), http.MethodGet, "/weather?city=", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// TestGetWeather_ProviderMessageVerbatim: a not-found failure carries the
// provider's message through to the response body.
func TestGetWeather_ProviderMessageVerbatim(t *testing.T) {
	fetch := &fakeFetcher{
		byName: func(name string) (models.WeatherRecord, error) {
			return models.WeatherRecord{}, wrapNotFound("No matching location found.")
		},
	}
	rec := doRequest(newTestHandler(fetch), http.MethodGet, "/weather?city=Atlantis", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404; body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "No matching location found.") {
		t.Errorf("body = %s, want provider message preserved", rec.Body.String())
	}
}

func wrapNotFound(msg string) error {
	return fmt.Errorf("%w: %s", client.ErrLocationNotFound, msg)
}

// TestGetWeatherByCoords_UpstreamDown: the coords route carries no fallback
// material, so a failed fetch is a 503.
func TestGetWeatherByCoords_UpstreamDown(t *testing.T) {
	fetch := &fakeFetcher{
		byCoords: func(lat, lon float64) (models.WeatherRecord, error) {
			return models.WeatherRecord{}, client.ErrUpstreamFailure
		},
	}
	rec := doRequest(newTestHandler(fetch), http.MethodGet, "/weather/coords?lat=37.77&lon=-122.42", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

// TestGetWeatherByCoords_InvalidParams rejects malformed coordinates.
func TestGetWeatherByCoords_InvalidParams(t *testing.T) {
	h := newTestHandler(&fakeFetcher{})
	for _, target := range []string{
		"/weather/coords",
		"/weather/coords?lat=abc&lon=1",
		"/weather/coords?lat=1",
		"/weather/coords?lat=91&lon=0",
	} {
		rec := doRequest(h, http.MethodGet, target, "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", target, rec.Code)
		}
	}
}

// TestPostSelect_CachedFallback: coordinate refresh fails, cached record in
// the intent comes back with a caveat.
func TestPostSelect_CachedFallback(t *testing.T) {
	fetch := &fakeFetcher{
		byCoords: func(lat, lon float64) (models.WeatherRecord, error) {
			return models.WeatherRecord{}, client.ErrUpstreamFailure
		},
	}
	body := `{"lat":37.77,"lon":-122.42,"cached":{"name":"San Francisco","temp_f":60,"condition":"Clear"}}`
	rec := doRequest(newTestHandler(fetch), http.MethodPost, "/weather/select", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	var got weatherResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Caveat != resolver.CaveatRefreshUnavailable {
		t.Errorf("caveat = %q, want %q", got.Caveat, resolver.CaveatRefreshUnavailable)
	}
	if got.TempF == nil || *got.TempF != 60 {
		t.Errorf("temp_f = %v, want cached 60", got.TempF)
	}
}

// TestPostSelect_InvalidSelection: an empty intent is a 400.
func TestPostSelect_InvalidSelection(t *testing.T) {
	rec := doRequest(newTestHandler(&fakeFetcher{}), http.MethodPost, "/weather/select", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body %s", rec.Code, rec.Body.String())
	}
}

// TestGetNearby returns the raw entries under "cities".
func TestGetNearby(t *testing.T) {
	fetch := &fakeFetcher{
		nearby: func(lat, lon float64, region string) ([]models.NearbyCityEntry, error) {
			if region != "California" {
				t.Errorf("region = %q, want California", region)
			}
			return []models.NearbyCityEntry{{Name: "Alameda"}, {Name: "Berkeley"}}, nil
		},
	}
	rec := doRequest(newTestHandler(fetch), http.MethodGet, "/weather/nearby?lat=37.8&lon=-122.27&region=California", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got struct {
		Cities []models.NearbyCityEntry `json:"cities"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Cities) != 2 {
		t.Errorf("cities len = %d, want 2", len(got.Cities))
	}
}

// TestGetForecast returns the fetched days plus the two-day window.
func TestGetForecast(t *testing.T) {
	today := time.Now().Format("2006-01-02")
	tomorrow := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	dayAfter := time.Now().AddDate(0, 0, 2).Format("2006-01-02")
	fetch := &fakeFetcher{
		forecast: func(query string, days int) ([]models.ForecastDay, error) {
			if days != 3 {
				t.Errorf("days = %d, want default 3", days)
			}
			return []models.ForecastDay{
				{Date: today}, {Date: tomorrow}, {Date: dayAfter},
			}, nil
		},
	}
	rec := doRequest(newTestHandler(fetch), http.MethodGet, "/weather/forecast?city=Oakland", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Days   []models.ForecastDay `json:"days"`
		Window []struct {
			Date        string `json:"date"`
			DisplayDate string `json:"display_date"`
		} `json:"window"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got.Days) != 3 {
		t.Errorf("days len = %d, want 3", len(got.Days))
	}
	if len(got.Window) != 2 || got.Window[0].Date != tomorrow {
		t.Errorf("window = %+v, want next two days starting %s", got.Window, tomorrow)
	}
	if len(got.Window) > 0 && got.Window[0].DisplayDate == "" {
		t.Error("window entry missing display_date")
	}
}

// TestGetForecast_BadDays rejects a non-integer days parameter.
func TestGetForecast_BadDays(t *testing.T) {
	rec := doRequest(newTestHandler(&fakeFetcher{}), http.MethodGet, "/weather/forecast?city=Oakland&days=abc", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

// TestSaveCity_Lifecycle covers save, duplicate conflict, list, delete.
func TestSaveCity_Lifecycle(t *testing.T) {
	fetch := &fakeFetcher{
		byCoords: func(lat, lon float64) (models.WeatherRecord, error) { return okRecord("Springfield"), nil },
	}
	h := newTestHandler(fetch)

	body := `{"city_name":"Springfield","lat":37.2,"lon":-93.3}`
	rec := doRequest(h, http.MethodPost, "/saved-cities", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("save status = %d, want 201; body %s", rec.Code, rec.Body.String())
	}
	var place models.SavedPlace
	if err := json.Unmarshal(rec.Body.Bytes(), &place); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if place.ID == "" || place.Name != "Springfield" {
		t.Errorf("place = %+v, want ID and name set", place)
	}

	if rec := doRequest(h, http.MethodPost, "/saved-cities", body); rec.Code != http.StatusConflict {
		t.Errorf("duplicate save status = %d, want 409", rec.Code)
	}

	rec = doRequest(h, http.MethodGet, "/saved-cities", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	var listed struct {
		Cities []models.EnrichedPlace `json:"cities"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(listed.Cities) != 1 || listed.Cities[0].Weather == nil {
		t.Fatalf("list = %+v, want one enriched entry", listed.Cities)
	}

	rec = doRequest(h, http.MethodDelete, "/saved-cities/"+place.ID, "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rec.Code)
	}
	if rec := doRequest(h, http.MethodDelete, "/saved-cities/"+place.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

// TestSaveCity_Validation rejects missing fields via struct validation.
func TestSaveCity_Validation(t *testing.T) {
	h := newTestHandler(&fakeFetcher{})
	tests := []string{
		`{"lat":37.2,"lon":-93.3}`,
		`{"city_name":"Springfield"}`,
		`{"city_name":"Springfield","lat":95,"lon":0}`,
		`not json`,
	}
	for _, body := range tests {
		if rec := doRequest(h, http.MethodPost, "/saved-cities", body); rec.Code != http.StatusBadRequest {
			t.Errorf("save %s: status = %d, want 400", body, rec.Code)
		}
	}
}

// TestGetHealth_Healthy is the default state.
func TestGetHealth_Healthy(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()
	lifecycle.SetShuttingDown(false)

	rec := doRequest(newTestHandler(&fakeFetcher{}), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"healthy"`) {
		t.Errorf("body = %s, want healthy status", rec.Body.String())
	}
}

// TestGetHealth_ShuttingDown takes priority over everything else.
func TestGetHealth_ShuttingDown(t *testing.T) {
	lifecycle.SetShuttingDown(true)
	defer lifecycle.SetShuttingDown(false)

	rec := doRequest(newTestHandler(&fakeFetcher{}), http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "shutting-down") {
		t.Errorf("body = %s, want shutting-down status", rec.Body.String())
	}
}

// TestGetHealth_ErrorRateBreach flips to degraded once provider errors cross
// the threshold.
func TestGetHealth_ErrorRateBreach(t *testing.T) {
	traffic.Reset()
	defer traffic.Reset()
	lifecycle.SetShuttingDown(false)

	traffic.RecordError()
	traffic.RecordError()
	traffic.RecordSuccess()

	rec := doRequest(newTestHandler(&fakeFetcher{}), http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503; body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "error_rate") && !strings.Contains(rec.Body.String(), "degraded") {
		t.Errorf("body = %s, want degraded status", rec.Body.String())
	}
}

// TestRateLimit_Denies429 verifies the limiter path and error shape.
func TestRateLimit_Denies429(t *testing.T) {
	sess := session.New()
	fetch := &fakeFetcher{
		byName: func(name string) (models.WeatherRecord, error) { return okRecord(name), nil },
		nearby: func(lat, lon float64, region string) ([]models.NearbyCityEntry, error) { return nil, nil },
	}
	res := resolver.New(fetch, sess, zap.NewNop())
	led := ledger.New(store.NewMemoryStore(), fetch, sess, zap.NewNop())
	h := NewHandler(res, led, nil, zap.NewNop(), rate.NewLimiter(rate.Limit(1), 1))
	router := h.NewRouter(0)

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/weather?city=Oakland", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/weather?city=Oakland", nil))
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
	if !strings.Contains(second.Body.String(), "RATE_LIMITED") {
		t.Errorf("body = %s, want RATE_LIMITED code", second.Body.String())
	}
}

// TestCorrelationID_SetAndEchoed verifies incoming IDs are reused and new
// ones generated.
func TestCorrelationID_SetAndEchoed(t *testing.T) {
	h := newTestHandler(&fakeFetcher{
		byName: func(name string) (models.WeatherRecord, error) { return okRecord(name), nil },
		nearby: func(lat, lon float64, region string) ([]models.NearbyCityEntry, error) { return nil, nil },
	})
	router := h.NewRouter(0)

	req := httptest.NewRequest(http.MethodGet, "/weather?city=Oakland", nil)
	req.Header.Set("X-Correlation-ID", "corr-abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Correlation-ID"); got != "corr-abc" {
		t.Errorf("echoed correlation ID = %q, want corr-abc", got)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/weather?city=Oakland", nil))
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("no correlation ID generated for request without one")
	}
}
