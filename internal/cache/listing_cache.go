package cache

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mealbridge/mealbridge/internal/metrics"
	"github.com/mealbridge/mealbridge/internal/repository"
)

type ListingRepository interface {
	GetOpen(ctx context.Context) ([]*repository.Listing, error)
}

// ListingCache holds the currently open listings. It is advisory only: the
// store consults the repository for authoritative reads, the cache feeds
// cheap availability stats and the gauge.
type ListingCache struct {
	mu    sync.RWMutex
	cache map[string]*repository.Listing
	repo  ListingRepository
}

func NewListingCache(repo ListingRepository) *ListingCache {
	return &ListingCache{
		cache: make(map[string]*repository.Listing),
		repo:  repo,
	}
}

func (c *ListingCache) LoadInitialData(ctx context.Context) error {
	listings, err := c.repo.GetOpen(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, listing := range listings {
		cp := *listing
		c.cache[listing.ID] = &cp
	}
	metrics.OpenListingCacheItems.Set(float64(len(c.cache)))
	zap.L().Info("loaded open listings into cache", zap.Int("count", len(c.cache)))
	return nil
}

func (c *ListingCache) Get(id string) (*repository.Listing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	listing, found := c.cache[id]
	if !found {
		return nil, false
	}
	cp := *listing
	return &cp, true
}

func (c *ListingCache) Set(listing *repository.Listing) {
	if listing.State != "open" {
		c.Delete(listing.ID)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *listing
	c.cache[listing.ID] = &cp
	metrics.OpenListingCacheItems.Set(float64(len(c.cache)))
}

func (c *ListingCache) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, found := c.cache[id]; found {
		delete(c.cache, id)
		metrics.OpenListingCacheItems.Set(float64(len(c.cache)))
	}
}

// OpenCount feeds the feed banner ("N listings available near you").
func (c *ListingCache) OpenCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
