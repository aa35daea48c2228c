package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JorgeF123/weather-dashboard/internal/client"
	"github.com/JorgeF123/weather-dashboard/internal/config"
	httphandler "github.com/JorgeF123/weather-dashboard/internal/http"
	"github.com/JorgeF123/weather-dashboard/internal/ledger"
	"github.com/JorgeF123/weather-dashboard/internal/lifecycle"
	"github.com/JorgeF123/weather-dashboard/internal/observability"
	"github.com/JorgeF123/weather-dashboard/internal/resolver"
	"github.com/JorgeF123/weather-dashboard/internal/scheduler"
	"github.com/JorgeF123/weather-dashboard/internal/session"
	"github.com/JorgeF123/weather-dashboard/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:   "weather-dashboard",
		Short: "City resolution and weather normalization service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
		SilenceUsage: true,
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	logger, err := observability.NewLogger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	weatherAPI, err := client.NewWeatherAPIClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		return fmt.Errorf("weatherapi client: %w", err)
	}
	openWeather, err := client.NewOpenWeatherClient(
		cfg.OpenWeatherAPIKey,
		cfg.OpenWeatherBaseURL,
		cfg.OpenWeatherTimeout,
	)
	if err != nil {
		return fmt.Errorf("openweather client: %w", err)
	}
	upstream := client.NewUpstream(weatherAPI, openWeather)

	var placeStore store.Store
	var memcacheCloser *store.MemcachedStore
	switch cfg.StoreBackend {
	case "memcached":
		mc, err := store.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return fmt.Errorf("memcached store: %w", err)
		}
		memcacheCloser = mc
		placeStore = mc
		logger.Info("store backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		placeStore = store.NewMemoryStore()
		logger.Info("store backend: in_memory")
	}

	sess := session.New()
	res := resolver.New(upstream, sess, logger)
	led := ledger.New(placeStore, upstream, sess, logger)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:   cfg.DegradedWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		StartTime:        time.Now(),
	}
	if memcacheCloser != nil {
		healthConfig.StorePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(res, led, healthConfig, logger, limiter)
	router := handler.NewRouter(cfg.RequestTimeout)

	if err := weatherAPI.ValidateAPIKey(context.Background()); err != nil {
		logger.Warn("weatherapi key validation failed", zap.Error(err))
	}

	sched := scheduler.New(led, logger)
	if err := sched.Start(cfg.LedgerRefreshInterval); err != nil {
		logger.Warn("ledger refresh scheduler failed to start", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed",
			zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
	return nil
}
