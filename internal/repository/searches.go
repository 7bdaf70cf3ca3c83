package repository

import (
	"context"
	"strings"
	"sync"

	"github.com/kjstillabower/agrimeteo-service/internal/storage"
)

// MaxRecentSearches caps the search history.
const MaxRecentSearches = 5

// SearchHistory keeps the most recent city searches, newest first.
type SearchHistory struct {
	mu      sync.Mutex
	backend storage.Backend
}

func NewSearchHistory(backend storage.Backend) *SearchHistory {
	return &SearchHistory{backend: backend}
}

func (h *SearchHistory) Recent(ctx context.Context) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.load(ctx)
}

// Record moves city to the front of the history. Matching ignores case and
// surrounding spaces; blank names are ignored.
func (h *SearchHistory) Record(ctx context.Context, city string) error {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	searches, err := h.load(ctx)
	if err != nil {
		return err
	}
	out := make([]string, 0, MaxRecentSearches)
	out = append(out, city)
	for _, s := range searches {
		if len(out) == MaxRecentSearches {
			break
		}
		if !strings.EqualFold(s, city) {
			out = append(out, s)
		}
	}
	return storage.SaveJSON(ctx, h.backend, storage.KeyRecentSearches, out)
}

func (h *SearchHistory) load(ctx context.Context) ([]string, error) {
	searches := []string{}
	if _, err := storage.LoadJSON(ctx, h.backend, storage.KeyRecentSearches, &searches); err != nil {
		return nil, err
	}
	if searches == nil {
		searches = []string{}
	}
	return searches, nil
}
