package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/JorgeF123/weather-dashboard/internal/models"
	"github.com/JorgeF123/weather-dashboard/internal/observability"
	"github.com/JorgeF123/weather-dashboard/internal/traffic"
)

const weatherAPIProvider = "weatherapi"

// WeatherAPIClient fetches current weather and forecasts from WeatherAPI.com.
// It returns the rich provider shape already mapped to the canonical record.
type WeatherAPIClient struct {
	apiKey         string
	currentURL     string
	forecastURL    string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *gobreaker.CircuitBreaker
}

// NewWeatherAPIClient validates the key and builds a client with retry and a
// circuit breaker around the upstream.
func NewWeatherAPIClient(apiKey, baseURL string, timeout time.Duration) (*WeatherAPIClient, error) {
	return NewWeatherAPIClientWithRetry(apiKey, baseURL, timeout, 3, 100*time.Millisecond, 2*time.Second)
}

// NewWeatherAPIClientWithRetry builds a WeatherAPIClient with explicit retry
// settings. baseURL is the API root (e.g. https://api.weatherapi.com/v1).
func NewWeatherAPIClientWithRetry(apiKey, baseURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*WeatherAPIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        weatherAPIProvider,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &WeatherAPIClient{
		apiKey:         apiKey,
		currentURL:     baseURL + "/current.json",
		forecastURL:    baseURL + "/forecast.json",
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		breaker:        cb,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// weatherAPIResponse is the current.json payload. The top-level error object
// appears on failures even with a transport-level 400.
type weatherAPIResponse struct {
	Location struct {
		Name    string  `json:"name"`
		Region  string  `json:"region"`
		Country string  `json:"country"`
		Lat     float64 `json:"lat"`
		Lon     float64 `json:"lon"`
	} `json:"location"`
	Current struct {
		TempF     *float64 `json:"temp_f"`
		TempC     *float64 `json:"temp_c"`
		Humidity  *float64 `json:"humidity"`
		WindMph   *float64 `json:"wind_mph"`
		Condition struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type forecastResponse struct {
	Forecast struct {
		ForecastDay []models.ForecastDay `json:"forecastday"`
	} `json:"forecast"`
	Error *apiError `json:"error"`
}

// FetchByName resolves a free-text location query.
func (c *WeatherAPIClient) FetchByName(ctx context.Context, name string) (models.WeatherRecord, error) {
	return c.fetchCurrent(ctx, name)
}

// FetchByCoords resolves weather for a coordinate pair. Coordinates are the
// identity-bearing lookup and always preferred over name queries.
func (c *WeatherAPIClient) FetchByCoords(ctx context.Context, lat, lon float64) (models.WeatherRecord, error) {
	return c.fetchCurrent(ctx, fmt.Sprintf("%g,%g", lat, lon))
}

func (c *WeatherAPIClient) fetchCurrent(ctx context.Context, query string) (models.WeatherRecord, error) {
	var rec models.WeatherRecord
	err := c.withRetry(ctx, func() error {
		body, err := c.call(ctx, c.currentURL, url.Values{"q": []string{query}})
		if err != nil {
			return err
		}

		var resp weatherAPIResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		if resp.Error != nil {
			return fmt.Errorf("%w: %s", ErrLocationNotFound, resp.Error.Message)
		}

		rec = mapCurrent(resp)
		return nil
	})
	return rec, err
}

// FetchForecast returns the multi-day forecast for a name or "lat,lon" query.
// days is clamped by callers to the API's supported range.
func (c *WeatherAPIClient) FetchForecast(ctx context.Context, query string, days int) ([]models.ForecastDay, error) {
	var out []models.ForecastDay
	err := c.withRetry(ctx, func() error {
		params := url.Values{
			"q":    []string{query},
			"days": []string{fmt.Sprintf("%d", days)},
		}
		body, err := c.call(ctx, c.forecastURL, params)
		if err != nil {
			return err
		}

		var resp forecastResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		if resp.Error != nil {
			return fmt.Errorf("%w: %s", ErrLocationNotFound, resp.Error.Message)
		}

		out = resp.Forecast.ForecastDay
		return nil
	})
	return out, err
}

// withRetry runs fn with exponential backoff and jitter, retrying only
// retryable failures. Breaker-open errors propagate immediately.
func (c *WeatherAPIClient) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.ProviderRetriesTotal.WithLabelValues(weatherAPIProvider).Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff(attempt)):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: circuit open", ErrUpstreamFailure)
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("exhausted retries: %w", lastErr)
}

// call performs one HTTP round trip through the circuit breaker and returns
// the raw body. Non-2xx statuses other than 400 map to sentinel errors; 400
// bodies are returned so the caller can surface the embedded error message.
func (c *WeatherAPIClient) call(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}
	params.Set("key", c.apiKey)
	base.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := correlationIDFrom(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		resp, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		defer resp.Body.Close()

		if err := statusError(resp.StatusCode); err != nil {
			// WeatherAPI reports "no matching location" as a 400 with an
			// error body; read it so the message survives.
			if resp.StatusCode != http.StatusBadRequest {
				return nil, err
			}
		}
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, fmt.Errorf("read response body: %w", readErr)
		}
		return body, nil
	})

	duration := time.Since(start).Seconds()
	status := "success"
	if err != nil {
		status = "error"
		traffic.RecordError()
	} else {
		traffic.RecordSuccess()
	}
	observability.ProviderCallsTotal.WithLabelValues(weatherAPIProvider, status).Inc()
	observability.ProviderDuration.WithLabelValues(weatherAPIProvider, status).Observe(duration)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("request timeout: %w", err)
		}
		return nil, err
	}
	return result.([]byte), nil
}

func (c *WeatherAPIClient) backoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}
	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

// ValidateAPIKey performs a cheap probe so startup and health checks can
// detect a revoked or inactive key.
func (c *WeatherAPIClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.fetchCurrent(ctx, "London")
	if errors.Is(err, ErrInvalidAPIKey) {
		return err
	}
	// Not-found or transient upstream trouble does not mean the key is bad.
	if err != nil && !errors.Is(err, ErrLocationNotFound) && !errors.Is(err, ErrUpstreamFailure) {
		return err
	}
	return nil
}

func mapCurrent(resp weatherAPIResponse) models.WeatherRecord {
	lat, lon := resp.Location.Lat, resp.Location.Lon
	return models.WeatherRecord{
		Name:      resp.Location.Name,
		Region:    resp.Location.Region,
		Country:   resp.Location.Country,
		Lat:       &lat,
		Lon:       &lon,
		TempF:     resp.Current.TempF,
		TempC:     resp.Current.TempC,
		Condition: resp.Current.Condition.Text,
		Humidity:  resp.Current.Humidity,
		WindMph:   resp.Current.WindMph,
	}
}

func statusError(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: rejected by provider", ErrInvalidAPIKey)
	case http.StatusNotFound, http.StatusBadRequest:
		return ErrLocationNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamFailure, code)
	}
	return nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// correlationIDFrom pulls the correlation ID set by the HTTP middleware, if
// the request context carries one.
func correlationIDFrom(ctx context.Context) string {
	if v := ctx.Value("correlation_id"); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
