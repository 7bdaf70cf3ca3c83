package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kjstillabower/agrimeteo-service/internal/agronomy"
	"github.com/kjstillabower/agrimeteo-service/internal/cache"
	"github.com/kjstillabower/agrimeteo-service/internal/client"
	"github.com/kjstillabower/agrimeteo-service/internal/models"
	"github.com/kjstillabower/agrimeteo-service/internal/observability"
	"github.com/kjstillabower/agrimeteo-service/internal/openmeteo"
)

// DefaultFanOutLimit bounds concurrent upstream fetches in GatherFarmerWeather.
const DefaultFanOutLimit = 4

// Options configures a WeatherService.
type Options struct {
	// TTL is the cache expiration for agricultural weather.
	TTL time.Duration
	// StaleCacheTTL is the maximum age past expiry for stale fallback (0 = disabled).
	StaleCacheTTL time.Duration
	// CoalesceEnabled and CoalesceTimeout configure request coalescing (disabled if timeout 0).
	CoalesceEnabled bool
	CoalesceTimeout time.Duration
	// FanOutLimit bounds GatherFarmerWeather concurrency (0 = DefaultFanOutLimit).
	FanOutLimit int
	Clock       clockwork.Clock
}

// WeatherService orchestrates weather retrieval and maps it onto agronomic
// indicators. Current conditions use cache-aside with upstream fallback.
type WeatherService struct {
	client        client.WeatherClient
	archive       openmeteo.ArchiveClient
	cache         cache.Cache
	clock         clockwork.Clock
	ttl           time.Duration
	staleCacheTTL time.Duration
	fanOutLimit   int
	misses        *missCounter
	current       *requestCoalescer[models.AgricultureWeatherData] // nil if disabled
	forecasts     *requestCoalescer[models.Forecast]               // nil if disabled
}

// NewWeatherService creates a new WeatherService with the provided dependencies.
func NewWeatherService(weatherClient client.WeatherClient, archive openmeteo.ArchiveClient, c cache.Cache, opts Options) *WeatherService {
	s := &WeatherService{
		client:        weatherClient,
		archive:       archive,
		cache:         c,
		clock:         opts.Clock,
		ttl:           opts.TTL,
		staleCacheTTL: opts.StaleCacheTTL,
		fanOutLimit:   opts.FanOutLimit,
		misses:        newMissCounter(),
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.fanOutLimit <= 0 {
		s.fanOutLimit = DefaultFanOutLimit
	}
	if opts.CoalesceEnabled && opts.CoalesceTimeout > 0 {
		s.current = newRequestCoalescer[models.AgricultureWeatherData](opts.CoalesceTimeout)
		s.forecasts = newRequestCoalescer[models.Forecast](opts.CoalesceTimeout)
	}
	return s
}

// loggerFromContext extracts the request logger, or a no-op logger when absent.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return zap.NewNop()
}

// GetAgricultureWeather returns current conditions with soil moisture, UV, GDD and
// recommendations. Checks cache first, falls back to upstream on miss and populates
// the cache on success. If upstream fails, an entry within the stale window is served.
func (s *WeatherService) GetAgricultureWeather(ctx context.Context, loc models.Location) (models.AgricultureWeatherData, error) {
	key := loc.Key()
	start := s.clock.Now()
	logger := loggerFromContext(ctx).With(zap.String("location", key))

	getStart := time.Now()
	cached, ok, err := s.cache.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
		logger.Warn("cache get failed", zap.Error(err))
	} else if ok {
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		observability.CacheHitsTotal.WithLabelValues("agriculture").Inc()
		logger.Debug("weather served", zap.Bool("cached", true), zap.Duration("duration", s.clock.Since(start)))
		return cached, nil
	}

	locLabel := observability.MetricLocationLabel(key)
	concurrent, release := s.misses.begin(key)
	defer release()
	if concurrent > 1 {
		observability.CacheStampedeDetectedTotal.WithLabelValues(locLabel).Inc()
		observability.CacheStampedeConcurrency.WithLabelValues(locLabel).Observe(float64(concurrent))
	}

	logger.Debug("cache miss, fetching upstream")
	fetch := func() (models.AgricultureWeatherData, error) {
		current, err := s.client.GetCurrentWeather(context.WithoutCancel(ctx), loc)
		if err != nil {
			return models.AgricultureWeatherData{}, err
		}
		return agronomy.BuildAgricultureData(current, s.clock.Now()), nil
	}

	var data models.AgricultureWeatherData
	var upstreamErr error
	if s.current != nil {
		waitStart := time.Now()
		var shared bool
		data, shared, upstreamErr = s.current.GetOrDo(ctx, key, fetch)
		if shared {
			observability.RequestCoalescingHitsTotal.WithLabelValues(locLabel).Inc()
			observability.RequestCoalescingWaitSeconds.Observe(time.Since(waitStart).Seconds())
		}
	} else {
		data, upstreamErr = fetch()
	}

	if upstreamErr != nil {
		if stale, ok := s.staleFallback(ctx, key, logger); ok {
			return stale, nil
		}
		return models.AgricultureWeatherData{}, fmt.Errorf("fetch weather for %s: %w", loc, upstreamErr)
	}

	setStart := time.Now()
	if setErr := s.cache.Set(ctx, key, data, s.ttl); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		logger.Warn("cache set failed", zap.Error(setErr))
	} else {
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
	}
	observability.CacheHitsTotal.WithLabelValues("miss").Inc()
	logger.Debug("weather served", zap.Bool("cached", false), zap.Duration("duration", s.clock.Since(start)))
	return data, nil
}

func (s *WeatherService) staleFallback(ctx context.Context, key string, logger *zap.Logger) (models.AgricultureWeatherData, bool) {
	if s.staleCacheTTL <= 0 {
		return models.AgricultureWeatherData{}, false
	}
	stale, ok, err := s.cache.GetStale(ctx, key, s.staleCacheTTL)
	if err != nil || !ok {
		return models.AgricultureWeatherData{}, false
	}
	age := s.clock.Since(stale.FetchedAt)
	observability.StaleCacheServesTotal.WithLabelValues(observability.MetricLocationLabel(key)).Inc()
	observability.StaleCacheAgeSeconds.Observe(age.Seconds())
	observability.CacheHitsTotal.WithLabelValues("stale").Inc()
	stale.Stale = true
	logger.Info("serving stale cache", zap.Duration("age", age))
	return stale, true
}

// GetFiveDayForecast returns the current step and up to five daily summaries.
func (s *WeatherService) GetFiveDayForecast(ctx context.Context, loc models.Location) (models.FiveDayForecast, error) {
	f, err := s.forecast(ctx, loc)
	if err != nil {
		return models.FiveDayForecast{}, err
	}
	out := agronomy.BuildFiveDayForecast(f)
	if out.Location == "" {
		out.Location = loc.String()
	}
	return out, nil
}

// GetWeatherAlerts synthesizes alerts from the five-day forecast for loc.
func (s *WeatherService) GetWeatherAlerts(ctx context.Context, loc models.Location) ([]models.Alert, error) {
	forecast, err := s.GetFiveDayForecast(ctx, loc)
	if err != nil {
		return nil, err
	}
	alerts := agronomy.SynthesizeAlerts(forecast, s.clock.Now())
	observability.AlertsGeneratedTotal.Add(float64(len(alerts)))
	return alerts, nil
}

func (s *WeatherService) forecast(ctx context.Context, loc models.Location) (models.Forecast, error) {
	fetch := func() (models.Forecast, error) {
		return s.client.GetForecast(context.WithoutCancel(ctx), loc)
	}
	var f models.Forecast
	var err error
	if s.forecasts != nil {
		f, _, err = s.forecasts.GetOrDo(ctx, loc.Key(), fetch)
	} else {
		f, err = fetch()
	}
	if err != nil {
		return models.Forecast{}, fmt.Errorf("fetch forecast for %s: %w", loc, err)
	}
	return f, nil
}

// GetHistoricalWeather geocodes city and returns the archived hourly readings for
// date with a summary and weather distribution.
func (s *WeatherService) GetHistoricalWeather(ctx context.Context, city string, date time.Time) (models.HistoricalWeather, error) {
	geo, err := s.client.Geocode(ctx, city)
	if err != nil {
		if errors.Is(err, client.ErrLocationNotFound) {
			return models.HistoricalWeather{}, fmt.Errorf("city not found: %s: %w", city, err)
		}
		return models.HistoricalWeather{}, fmt.Errorf("geocode %s: %w", city, err)
	}
	if s.archive == nil {
		return models.HistoricalWeather{}, fmt.Errorf("archive for %s: %w", city, client.ErrUpstreamFailure)
	}

	hours, err := s.archive.GetHourlyArchive(ctx, geo.Lat, geo.Lon, date)
	if err != nil {
		return models.HistoricalWeather{}, fmt.Errorf("archive for %s on %s: %w", geo.Name, date.Format(time.DateOnly), err)
	}
	return models.HistoricalWeather{
		City:         geo.Name,
		Country:      geo.Country,
		Date:         date.Format(time.DateOnly),
		Hourly:       hours,
		Summary:      agronomy.SummarizeHourly(hours),
		Distribution: agronomy.WeatherDistribution(hours),
	}, nil
}

// FarmerWeather is the outcome of one farmer's fetch in GatherFarmerWeather.
type FarmerWeather struct {
	FarmerID string
	Location models.Location
	Weather  models.AgricultureWeatherData
	Err      error
}

// GatherFarmerWeather fetches current weather for every farmer concurrently, bounded
// by the fan-out limit. It returns once all fetches settle, one result per farmer in
// input order. A failed fetch is reported in its result and does not cancel the others.
func (s *WeatherService) GatherFarmerWeather(ctx context.Context, farmers []models.Farmer) []FarmerWeather {
	results := make([]FarmerWeather, len(farmers))
	g := new(errgroup.Group)
	g.SetLimit(s.fanOutLimit)
	for i, f := range farmers {
		loc := f.Location()
		results[i] = FarmerWeather{FarmerID: f.ID, Location: loc}
		g.Go(func() error {
			data, err := s.GetAgricultureWeather(ctx, loc)
			if err != nil {
				results[i].Err = err
				observability.FarmerWeatherFetchesTotal.WithLabelValues("error").Inc()
				loggerFromContext(ctx).Warn("farmer weather fetch failed",
					zap.String("farmer_id", f.ID), zap.String("location", loc.String()), zap.Error(err))
				return nil
			}
			results[i].Weather = data
			observability.FarmerWeatherFetchesTotal.WithLabelValues("success").Inc()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
