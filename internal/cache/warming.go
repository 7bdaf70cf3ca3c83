package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/agrimeteo-service/internal/models"
	"github.com/kjstillabower/agrimeteo-service/internal/observability"
)

// WeatherFetcher is implemented by the service layer to fetch weather for a location.
// Used by CacheWarmer to avoid a circular dependency on the service package.
type WeatherFetcher interface {
	GetAgricultureWeather(ctx context.Context, loc models.Location) (models.AgricultureWeatherData, error)
}

// CacheWarmer warms the cache by prefetching weather for a list of locations.
type CacheWarmer struct {
	fetcher WeatherFetcher
	logger  *zap.Logger
}

// NewCacheWarmer creates a CacheWarmer that uses the given fetcher and logger.
func NewCacheWarmer(fetcher WeatherFetcher, logger *zap.Logger) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger}
}

// Warm fetches weather for each location concurrently; the fetcher populates the cache.
// Returns the joined per-location errors, if any.
func (w *CacheWarmer) Warm(ctx context.Context, locations []models.Location) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	w.logger.Info("warming cache", zap.Int("locations", len(locations)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, loc := range locations {
		wg.Add(1)
		go func(loc models.Location) {
			defer wg.Done()
			if _, err := w.fetcher.GetAgricultureWeather(ctx, loc); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("warm %s: %w", loc, err))
				mu.Unlock()
			}
		}(loc)
	}
	wg.Wait()

	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	w.logger.Info("cache warming complete",
		zap.Int("locations", len(locations)),
		zap.Int("errors", len(errs)),
		zap.Float64("duration_seconds", duration),
	)
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}
