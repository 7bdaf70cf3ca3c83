// Package storage persists opaque JSON blobs under fixed keys.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Keys of the persisted collections.
const (
	KeyFarmers         = "farmers"
	KeyRecentSearches  = "recentSearches"
	KeyActiveAlerts    = "agrimeteo_weather_alerts"
	KeyDismissedAlerts = "agrimeteo_dismissed_alerts"
)

var ErrClosed = errors.New("storage backend closed")

// Backend is a key/value store for serialized collections.
// Load reports found=false for a missing key.
type Backend interface {
	Load(ctx context.Context, key string) (data []byte, found bool, err error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// LoadJSON decodes the blob at key into v. It returns false when the key is absent.
func LoadJSON(ctx context.Context, b Backend, key string, v interface{}) (bool, error) {
	data, found, err := b.Load(ctx, key)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	if !found {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SaveJSON encodes v and stores it at key.
func SaveJSON(ctx context.Context, b Backend, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := b.Save(ctx, key, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
