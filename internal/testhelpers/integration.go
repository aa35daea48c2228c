//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/JorgeF123/weather-dashboard/internal/client"
	"github.com/JorgeF123/weather-dashboard/internal/ledger"
	"github.com/JorgeF123/weather-dashboard/internal/observability"
	"github.com/JorgeF123/weather-dashboard/internal/resolver"
	"github.com/JorgeF123/weather-dashboard/internal/session"
	"github.com/JorgeF123/weather-dashboard/internal/store"
)

// IntegrationConfig holds configuration for integration tests that talk to
// live providers and a real memcached.
type IntegrationConfig struct {
	WeatherAPIKey   string
	WeatherAPIURL   string
	OpenWeatherKey  string
	OpenWeatherURL  string
	StoreBackend    string // "in_memory" or "memcached"
	MemcachedAddrs  string
	ProviderTimeout time.Duration
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips the test when provider keys are not set.
func GetIntegrationConfig(t *testing.T) IntegrationConfig {
	t.Helper()

	weatherKey := os.Getenv("WEATHERAPI_KEY")
	if weatherKey == "" {
		t.Skip("WEATHERAPI_KEY not set, skipping integration test")
	}
	openWeatherKey := os.Getenv("OPENWEATHER_API_KEY")
	if openWeatherKey == "" {
		t.Skip("OPENWEATHER_API_KEY not set, skipping integration test")
	}

	weatherURL := os.Getenv("WEATHERAPI_URL")
	if weatherURL == "" {
		weatherURL = "https://api.weatherapi.com/v1/current.json"
	}
	openWeatherURL := os.Getenv("OPENWEATHER_BASE_URL")
	if openWeatherURL == "" {
		openWeatherURL = "https://api.openweathermap.org"
	}
	memcachedAddrs := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddrs == "" {
		memcachedAddrs = "localhost:11211"
	}

	return IntegrationConfig{
		WeatherAPIKey:   weatherKey,
		WeatherAPIURL:   weatherURL,
		OpenWeatherKey:  openWeatherKey,
		OpenWeatherURL:  openWeatherURL,
		StoreBackend:    os.Getenv("INTEGRATION_STORE_BACKEND"),
		MemcachedAddrs:  memcachedAddrs,
		ProviderTimeout: 10 * time.Second,
	}
}

// SetupIntegration builds a resolver and ledger against the live providers.
// Returns the resolver, ledger, session, and a cleanup function.
func SetupIntegration(t *testing.T, cfg IntegrationConfig) (*resolver.Resolver, *ledger.Ledger, *session.Session, func()) {
	t.Helper()

	logger, err := observability.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	weatherAPI, err := client.NewWeatherAPIClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.ProviderTimeout)
	if err != nil {
		t.Fatalf("NewWeatherAPIClient() error = %v", err)
	}
	openWeather, err := client.NewOpenWeatherClient(cfg.OpenWeatherKey, cfg.OpenWeatherURL, cfg.ProviderTimeout)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	upstream := client.NewUpstream(weatherAPI, openWeather)

	var placeStore store.Store
	cleanup := func() { _ = logger.Sync() }
	if cfg.StoreBackend == "memcached" {
		mc, err := store.NewMemcachedStore(cfg.MemcachedAddrs, 500*time.Millisecond, 2)
		if err != nil {
			t.Fatalf("NewMemcachedStore() error = %v", err)
		}
		placeStore = mc
		cleanup = func() {
			_ = mc.Close()
			_ = logger.Sync()
		}
	} else {
		placeStore = store.NewMemoryStore()
	}

	sess := session.New()
	res := resolver.New(upstream, sess, logger)
	led := ledger.New(placeStore, upstream, sess, logger)
	return res, led, sess, cleanup
}
