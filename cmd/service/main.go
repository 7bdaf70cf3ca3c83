package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/agrimeteo-service/internal/alerts"
	"github.com/kjstillabower/agrimeteo-service/internal/cache"
	"github.com/kjstillabower/agrimeteo-service/internal/circuitbreaker"
	"github.com/kjstillabower/agrimeteo-service/internal/client"
	"github.com/kjstillabower/agrimeteo-service/internal/config"
	"github.com/kjstillabower/agrimeteo-service/internal/degraded"
	httphandler "github.com/kjstillabower/agrimeteo-service/internal/http"
	"github.com/kjstillabower/agrimeteo-service/internal/lifecycle"
	"github.com/kjstillabower/agrimeteo-service/internal/models"
	"github.com/kjstillabower/agrimeteo-service/internal/observability"
	"github.com/kjstillabower/agrimeteo-service/internal/openmeteo"
	"github.com/kjstillabower/agrimeteo-service/internal/repository"
	"github.com/kjstillabower/agrimeteo-service/internal/scheduler"
	"github.com/kjstillabower/agrimeteo-service/internal/service"
	"github.com/kjstillabower/agrimeteo-service/internal/storage"
)

var version = "dev"

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	lifecycle.MarkStarted(time.Now())
	if len(cfg.TrackedLocations) > 0 {
		observability.SetTrackedLocations(cfg.TrackedLocations)
	}

	weatherClient, err := client.NewOpenWeatherClientWithRetry(
		cfg.WeatherAPIKey,
		cfg.WeatherAPIURL,
		cfg.WeatherAPITimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}
	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        "weather_api",
			IsFailure:        client.IsBreakerFailure,
			OnStateChange: func(from, to circuitbreaker.State) {
				observability.RecordCircuitBreakerTransition("weather_api", from.String(), to.String())
				observability.SetCircuitBreakerStateGauge("weather_api", observability.CircuitBreakerStateValue(int(to)))
			},
		})
		weatherClient.SetCircuitBreaker(cb)
		observability.SetCircuitBreakerStateGauge("weather_api", 0)
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold), zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	archiveClient := openmeteo.New(openmeteo.Config{
		BaseURL:         cfg.ArchiveAPIURL,
		Timeout:         cfg.ArchiveAPITimeout,
		MaxRetries:      cfg.ArchiveRetryAttempts,
		BreakerFailures: uint32(cfg.ArchiveBreakerFails),
		BreakerTimeout:  cfg.ArchiveBreakerOpen,
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.RecordCircuitBreakerTransition("archive_api", from.String(), to.String())
			observability.SetCircuitBreakerStateGauge("archive_api", gobreakerStateValue(to))
			logger.Warn("archive circuit breaker state change", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	observability.SetCircuitBreakerStateGauge("archive_api", 0)

	cacheSvc, memcached := openCache(cfg, logger)
	weatherService := service.NewWeatherService(weatherClient, archiveClient, cacheSvc, service.Options{
		TTL:             cfg.CacheTTL,
		StaleCacheTTL:   cfg.StaleCacheTTL,
		CoalesceEnabled: cfg.CoalesceEnabled,
		CoalesceTimeout: cfg.CoalesceTimeout,
		FanOutLimit:     cfg.FanOutLimit,
	})

	backend, err := openStorage(cfg)
	if err != nil {
		logger.Fatal("storage backend", zap.Error(err))
	}
	logger.Info("storage backend", zap.String("backend", cfg.StorageBackend))
	farmers := repository.NewFarmerStore(backend, nil, logger)
	searches := repository.NewSearchHistory(backend)
	inbox := alerts.NewInbox(backend, weatherService, logger)
	alertLocation := models.CityLocation(cfg.AlertCity, cfg.AlertCountry)

	sched := scheduler.New(scheduler.Config{
		AlertInterval: cfg.AlertRefreshInterval,
		AlertLocation: alertLocation,
		WarmInterval:  cfg.WarmInterval,
		WarmLocations: parseLocations(cfg.WarmLocations),
		SweepInterval: cfg.SweepInterval,
		JobTimeout:    cfg.RequestTimeout * 6,
	}, inbox, cache.NewCacheWarmer(weatherService, logger), farmers, logger)
	if mem, ok := cacheSvc.(*cache.InMemoryCache); ok {
		sched.SetSweeper(mem)
	}
	if err := sched.Start(); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()
	recovery := degraded.NewRecovery(degraded.Config{
		Validate: weatherClient.ValidateAPIKey,
		Initial:  cfg.DegradedRetryInitial,
		Max:      cfg.DegradedRetryMax,
		Logger:   logger,
	})
	recovery.Start(rootCtx)

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		StoragePing:          backend.Ping,
		Version:              version,
	}
	if memcached != nil {
		healthConfig.CachePing = memcached.Ping
	}

	handler := httphandler.NewHandler(httphandler.Deps{
		Weather:       weatherService,
		Client:        weatherClient,
		Farmers:       farmers,
		Searches:      searches,
		Alerts:        inbox,
		AlertLocation: alertLocation,
		Health:        healthConfig,
		Recovery:      recovery,
		Logger:        logger,
	})

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	router := httphandler.NewRouter(handler, httphandler.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	observability.RecordShutdownInFlight(inFlight)
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	if err := httphandler.WaitForInFlight(waitCtx); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}
	waitCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	sched.Stop()
	cancelRoot()
	recovery.Wait()

	if err := backend.Close(); err != nil {
		logger.Error("storage close", zap.Error(err))
	}
	if memcached != nil {
		if err := memcached.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	if err := observability.FlushTelemetry(shutdownCtx, logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// openCache returns the weather cache. The memcached handle is non-nil only for
// the memcached backend, so it can be pinged and closed.
func openCache(cfg *config.Config, logger *zap.Logger) (cache.Cache, *cache.MemcachedCache) {
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.StaleCacheTTL)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
		return mc, mc
	default:
		logger.Info("cache backend: in_memory")
		return cache.NewInMemoryCache(nil, cfg.StaleCacheTTL), nil
	}
}

func openStorage(cfg *config.Config) (storage.Backend, error) {
	switch cfg.StorageBackend {
	case "file":
		return storage.NewFileBackend(cfg.StorageDir)
	case "redis":
		return storage.NewRedisBackend(storage.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		}), nil
	case "memory", "":
		return storage.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// parseLocations turns "City" or "City,CC" entries into locations, skipping blanks.
func parseLocations(entries []string) []models.Location {
	var out []models.Location
	for _, e := range entries {
		city, country, _ := strings.Cut(e, ",")
		city = strings.TrimSpace(city)
		if city == "" {
			continue
		}
		out = append(out, models.CityLocation(city, strings.TrimSpace(country)))
	}
	return out
}

// gobreakerStateValue uses the same gauge scale as the weather_api breaker:
// 0 closed, 1 open, 2 half-open.
func gobreakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}
