package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/agrimeteo-service/internal/models"
)

// Cache defines the interface for agricultural weather caching implementations.
// Get returns cached data if present and not expired. GetStale returns expired data
// no older than maxStaleAge past its expiry, for use when the upstream is failing.
type Cache interface {
	Get(ctx context.Context, key string) (models.AgricultureWeatherData, bool, error)
	GetStale(ctx context.Context, key string, maxStaleAge time.Duration) (models.AgricultureWeatherData, bool, error)
	Set(ctx context.Context, key string, value models.AgricultureWeatherData, ttl time.Duration) error
}

// entry is the stored envelope. Expired entries are retained for the stale window.
type entry struct {
	Data      models.AgricultureWeatherData `json:"data"`
	ExpiresAt time.Time                     `json:"expiresAt"`
}

func (e entry) fresh(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

func (e entry) usableStale(now time.Time, maxStaleAge time.Duration) bool {
	return !now.After(e.ExpiresAt.Add(maxStaleAge))
}

// InMemoryCache implements Cache using a mutex-guarded map. Entries older than
// expiry plus the retention window are removed on access or by Sweep.
type InMemoryCache struct {
	mu        sync.Mutex
	data      map[string]entry
	clock     clockwork.Clock
	retention time.Duration
}

// NewInMemoryCache creates a new in-memory cache. retention is how long expired
// entries stay available to GetStale. A nil clock uses the real clock.
func NewInMemoryCache(clock clockwork.Clock, retention time.Duration) *InMemoryCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InMemoryCache{
		data:      make(map[string]entry),
		clock:     clock,
		retention: retention,
	}
}

// Get retrieves cached data for the key if present and not expired.
// Returns (data, true, nil) on hit, (zero, false, nil) on miss or expiration.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.AgricultureWeatherData, bool, error) {
	e, ok := c.lookup(key)
	if !ok || !e.fresh(c.clock.Now()) {
		return models.AgricultureWeatherData{}, false, nil
	}
	return e.Data, true, nil
}

// GetStale returns the entry for key, expired or not, as long as it expired no more
// than maxStaleAge ago. The returned data is flagged Stale when expired.
func (c *InMemoryCache) GetStale(ctx context.Context, key string, maxStaleAge time.Duration) (models.AgricultureWeatherData, bool, error) {
	e, ok := c.lookup(key)
	if !ok {
		return models.AgricultureWeatherData{}, false, nil
	}
	now := c.clock.Now()
	if !e.usableStale(now, maxStaleAge) {
		return models.AgricultureWeatherData{}, false, nil
	}
	data := e.Data
	data.Stale = !e.fresh(now)
	return data, true, nil
}

// Set stores data with the given TTL.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.AgricultureWeatherData, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = entry{Data: value, ExpiresAt: c.clock.Now().Add(ttl)}
	return nil
}

// Len reports the number of retained entries.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Sweep removes every entry past its retention window and returns how many were
// dropped. Keys that are never read again are only reclaimed here.
func (c *InMemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	removed := 0
	for key, e := range c.data {
		if !e.usableStale(now, c.retention) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

func (c *InMemoryCache) lookup(key string) (entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok {
		return entry{}, false
	}
	if !e.usableStale(c.clock.Now(), c.retention) {
		delete(c.data, key)
		return entry{}, false
	}
	return e, true
}
