package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JorgeF123/weather-dashboard/internal/client"
	"github.com/JorgeF123/weather-dashboard/internal/forecast"
	"github.com/JorgeF123/weather-dashboard/internal/ledger"
	"github.com/JorgeF123/weather-dashboard/internal/lifecycle"
	"github.com/JorgeF123/weather-dashboard/internal/models"
	"github.com/JorgeF123/weather-dashboard/internal/observability"
	"github.com/JorgeF123/weather-dashboard/internal/resolver"
	"github.com/JorgeF123/weather-dashboard/internal/store"
	"github.com/JorgeF123/weather-dashboard/internal/traffic"
	"github.com/JorgeF123/weather-dashboard/internal/validation"
)

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	StartTime        time.Time
	// StorePing, when set, is called to check store reachability. Used when
	// the saved-places backend is memcached.
	StorePing func() error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	resolver     *resolver.Resolver
	ledger       *ledger.Ledger
	healthConfig *HealthConfig
	logger       *zap.Logger
	rateLimiter  *rate.Limiter
	validate     *validator.Validate

	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(
	res *resolver.Resolver,
	led *ledger.Ledger,
	healthConfig *HealthConfig,
	logger *zap.Logger,
	rateLimiter *rate.Limiter,
) *Handler {
	return &Handler{
		resolver:     res,
		ledger:       led,
		healthConfig: healthConfig,
		logger:       logger,
		rateLimiter:  rateLimiter,
		validate:     validator.New(),
	}
}

// NewRouter wires all routes with the middleware stack.
func (h *Handler) NewRouter(requestTimeout time.Duration) *mux.Router {
	r := mux.NewRouter()
	r.Use(CorrelationIDMiddleware(h.logger))
	r.Use(MetricsMiddleware)

	r.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	// Health and metrics stay outside the rate limiter and timeout.
	api := r.PathPrefix("/").Subrouter()
	api.Use(RateLimitMiddleware(h.rateLimiter))
	if requestTimeout > 0 {
		api.Use(TimeoutMiddleware(requestTimeout))
	}

	api.HandleFunc("/weather", h.GetWeather).Methods(http.MethodGet)
	api.HandleFunc("/weather/coords", h.GetWeatherByCoords).Methods(http.MethodGet)
	api.HandleFunc("/weather/nearby", h.GetNearby).Methods(http.MethodGet)
	api.HandleFunc("/weather/forecast", h.GetForecast).Methods(http.MethodGet)
	api.HandleFunc("/weather/select", h.PostSelect).Methods(http.MethodPost)
	api.HandleFunc("/saved-cities", h.ListSavedCities).Methods(http.MethodGet)
	api.HandleFunc("/saved-cities", h.SaveCity).Methods(http.MethodPost)
	api.HandleFunc("/saved-cities/{id}", h.DeleteSavedCity).Methods(http.MethodDelete)
	return r
}

// weatherResponse is a canonical record plus the degradation caveat, when
// any. An empty caveat is omitted so fresh responses stay clean.
type weatherResponse struct {
	models.WeatherRecord
	Caveat string `json:"caveat,omitempty"`
}

// GetWeather handles GET /weather?city=. Free-text search: on success the
// nearby list is refreshed as a side effect.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")

	rec, err := h.resolver.Search(r.Context(), city)
	if err != nil {
		writeResolutionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, weatherResponse{WeatherRecord: rec})
}

// GetWeatherByCoords handles GET /weather/coords?lat=&lon=.
func (h *Handler) GetWeatherByCoords(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := parseCoords(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}

	res, err := h.resolver.Resolve(r.Context(), resolver.Selection{Lat: &lat, Lon: &lon})
	if err != nil {
		writeResolutionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, weatherResponse{WeatherRecord: res.Record, Caveat: res.Caveat})
}

// GetNearby handles GET /weather/nearby?lat=&lon=&region=. Entries come back
// in the raw provider shape; selection normalizes them later.
func (h *Handler) GetNearby(w http.ResponseWriter, r *http.Request) {
	lat, lon, err := parseCoords(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_COORDINATES", err.Error())
		return
	}

	entries, err := h.resolver.Nearby(r.Context(), lat, lon, r.URL.Query().Get("region"))
	if err != nil {
		writeResolutionError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.NearbyCityEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cities": entries})
}

// forecastWindowDay is a forecast day annotated with its display date.
type forecastWindowDay struct {
	models.ForecastDay
	DisplayDate string `json:"display_date"`
}

// GetForecast handles GET /weather/forecast?city=&days=. The response
// carries the full fetched range plus the two-day forward window.
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "INVALID_DAYS", "days must be an integer")
			return
		}
		days = parsed
	}

	full, err := h.resolver.Forecast(r.Context(), city, days)
	if err != nil {
		writeResolutionError(w, r, err)
		return
	}

	window := forecast.SelectWindow(full, time.Now())
	annotated := make([]forecastWindowDay, len(window))
	for i, d := range window {
		annotated[i] = forecastWindowDay{ForecastDay: d, DisplayDate: forecast.FormatDisplayDate(d.Date)}
	}
	if full == nil {
		full = []models.ForecastDay{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"days":   full,
		"window": annotated,
	})
}

// selectRequest is a resolution intent posted when the user picks a nearby
// entry, a saved place, or a prior record.
type selectRequest struct {
	CityName string                  `json:"city_name"`
	Lat      *float64                `json:"lat"`
	Lon      *float64                `json:"lon"`
	Cached   *models.WeatherRecord   `json:"cached"`
	Entry    *models.NearbyCityEntry `json:"entry"`
}

// PostSelect handles POST /weather/select: the full resolution chain.
func (h *Handler) PostSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
		return
	}

	res, err := h.resolver.Resolve(r.Context(), resolver.Selection{
		Name:   req.CityName,
		Lat:    req.Lat,
		Lon:    req.Lon,
		Cached: req.Cached,
		Entry:  req.Entry,
	})
	if err != nil {
		writeResolutionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, weatherResponse{WeatherRecord: res.Record, Caveat: res.Caveat})
}

// ListSavedCities handles GET /saved-cities. Always 200: a broken store
// degrades to an empty list and a broken entry keeps its error marker.
func (h *Handler) ListSavedCities(w http.ResponseWriter, r *http.Request) {
	places, err := h.ledger.Reload(r.Context())
	if err != nil {
		writeResolutionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cities": places})
}

// saveCityRequest is the POST /saved-cities body. Coordinates are required:
// a name-only save cannot be disambiguated later.
type saveCityRequest struct {
	CityName string   `json:"city_name" validate:"required"`
	Lat      *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon      *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
}

// SaveCity handles POST /saved-cities.
func (h *Handler) SaveCity(w http.ResponseWriter, r *http.Request) {
	var req saveCityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_SAVE_REQUEST", err.Error())
		return
	}

	place, err := h.ledger.Save(r.Context(), req.CityName, req.Lat, req.Lon)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrAlreadySaved):
			writeError(w, r, http.StatusConflict, "ALREADY_SAVED", err.Error())
		case validation.IsValidationError(err):
			writeError(w, r, http.StatusBadRequest, "INVALID_SAVE_REQUEST", err.Error())
		default:
			writeError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "unable to save city")
		}
		return
	}
	writeJSON(w, http.StatusCreated, place)
}

// DeleteSavedCity handles DELETE /saved-cities/{id}.
func (h *Handler) DeleteSavedCity(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "INVALID_ID", "id is required")
		return
	}

	if err := h.ledger.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, "NOT_FOUND", "no saved city with that id")
			return
		}
		writeError(w, r, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "unable to delete city")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.reason == "error_rate_breach" {
		checks["weatherApi"] = "unhealthy"
	} else {
		checks["weatherApi"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.StorePing != nil {
		if h.healthConfig.StorePing() == nil {
			checks["store"] = "healthy"
		} else {
			checks["store"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-dashboard",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates health conditions in priority order:
// shutting-down > provider error-rate breach > healthy.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errs) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

func parseCoords(r *http.Request) (lat, lon float64, err error) {
	lat, err = strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if err != nil {
		return 0, 0, errors.New("lat must be a number")
	}
	lon, err = strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if err != nil {
		return 0, 0, errors.New("lon must be a number")
	}
	return lat, lon, nil
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeResolutionError maps resolver and collaborator failures to HTTP
// statuses. Provider messages pass through verbatim so the caller sees the
// upstream's reason.
func writeResolutionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case validation.IsValidationError(err):
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, resolver.ErrInvalidSelection):
		writeError(w, r, http.StatusBadRequest, "INVALID_SELECTION", err.Error())
	case errors.Is(err, client.ErrLocationNotFound):
		writeError(w, r, http.StatusNotFound, "LOCATION_NOT_FOUND", err.Error())
	case errors.Is(err, client.ErrRateLimited):
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_RATE_LIMITED", "weather provider is rate limiting requests")
	default:
		writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "unable to fetch weather data")
		if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
			logger.Debug("upstream error", zap.Error(err))
		}
	}
}
