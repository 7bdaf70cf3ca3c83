package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/agrimeteo-service/internal/models"
)

const keyPrefix = "agrimeteo:"

// memcached rejects relative expirations longer than 30 days.
const maxRelativeExp = 30 * 24 * 60 * 60

// MemcachedCache implements Cache using memcached. Items are written with an
// expiration of TTL plus the retention window so GetStale can still read them.
type MemcachedCache struct {
	client    *memcache.Client
	clock     clockwork.Clock
	retention time.Duration
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int, retention time.Duration) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client, clock: clockwork.NewRealClock(), retention: retention}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// memcached keys may not contain spaces or control characters.
func (c *MemcachedCache) key(k string) string {
	return keyPrefix + strings.ReplaceAll(k, " ", "_")
}

// Get implements Cache.Get. Returns false, nil on miss or expiry; false, err on error.
func (c *MemcachedCache) Get(ctx context.Context, key string) (models.AgricultureWeatherData, bool, error) {
	e, ok, err := c.load(ctx, key)
	if err != nil || !ok || !e.fresh(c.clock.Now()) {
		return models.AgricultureWeatherData{}, false, err
	}
	return e.Data, true, nil
}

// GetStale implements Cache.GetStale.
func (c *MemcachedCache) GetStale(ctx context.Context, key string, maxStaleAge time.Duration) (models.AgricultureWeatherData, bool, error) {
	e, ok, err := c.load(ctx, key)
	if err != nil || !ok {
		return models.AgricultureWeatherData{}, false, err
	}
	now := c.clock.Now()
	if !e.usableStale(now, maxStaleAge) {
		return models.AgricultureWeatherData{}, false, nil
	}
	data := e.Data
	data.Stale = !e.fresh(now)
	return data, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache) Set(ctx context.Context, key string, value models.AgricultureWeatherData, ttl time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(entry{Data: value, ExpiresAt: c.clock.Now().Add(ttl)})
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expirationSeconds(ttl + c.retention),
	})
}

func (c *MemcachedCache) load(ctx context.Context, key string) (entry, bool, error) {
	if ctx.Err() != nil {
		return entry{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return entry{}, false, nil
		}
		return entry{}, false, err
	}
	var e entry
	if err := json.Unmarshal(item.Value, &e); err != nil {
		return entry{}, false, err
	}
	return e, true, nil
}

func expirationSeconds(d time.Duration) int32 {
	sec := int32(d.Seconds())
	if sec <= 0 || sec > maxRelativeExp {
		return 3600
	}
	return sec
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
