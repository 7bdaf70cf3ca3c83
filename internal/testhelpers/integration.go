//go:build integration
// +build integration

// Package testhelpers wires real upstream clients for integration tests.
package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/agrimeteo-service/internal/cache"
	"github.com/kjstillabower/agrimeteo-service/internal/client"
	"github.com/kjstillabower/agrimeteo-service/internal/openmeteo"
	"github.com/kjstillabower/agrimeteo-service/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIKey        string
	APIURL        string
	ArchiveURL    string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration settings from the environment.
// Skips the test if WEATHER_API_KEY is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	apiKey := os.Getenv("WEATHER_API_KEY")
	if apiKey == "" {
		t.Skip("WEATHER_API_KEY not set, skipping integration test")
	}
	cfg := IntegrationTestConfig{
		APIKey:        apiKey,
		APIURL:        os.Getenv("WEATHER_API_URL"),
		ArchiveURL:    os.Getenv("ARCHIVE_API_URL"),
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: os.Getenv("MEMCACHED_ADDRS"),
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.openweathermap.org"
	}
	if cfg.MemcachedAddr == "" {
		cfg.MemcachedAddr = "localhost:11211"
	}
	return cfg
}

// SetupIntegrationClient creates an OpenWeatherMap client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.OpenWeatherClient {
	t.Helper()
	c, err := client.NewOpenWeatherClient(cfg.APIKey, cfg.APIURL, 5*time.Second)
	if err != nil {
		t.Fatalf("NewOpenWeatherClient() error = %v", err)
	}
	return c
}

// SetupIntegrationService builds a weather service over the real upstreams.
// Falls back to the in-memory cache when memcached is requested but unreachable.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.WeatherService, cache.Cache) {
	t.Helper()
	weatherClient := SetupIntegrationClient(t, cfg)
	archive := openmeteo.New(openmeteo.Config{BaseURL: cfg.ArchiveURL, Timeout: 10 * time.Second, MaxRetries: 1})

	var c cache.Cache = cache.NewInMemoryCache(nil, time.Hour)
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2, time.Hour)
		if err == nil && mc.Ping() == nil {
			c = mc
			t.Cleanup(func() { _ = mc.Close() })
			t.Logf("using memcached at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("memcached not available, using in-memory cache")
		}
	}

	svc := service.NewWeatherService(weatherClient, archive, c, service.Options{
		TTL:             5 * time.Minute,
		StaleCacheTTL:   time.Hour,
		CoalesceEnabled: true,
		CoalesceTimeout: 5 * time.Second,
	})
	return svc, c
}
