package cacher

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// MemoryCacher is an in-process Cacher built on go-cache. Values are stored
// and returned by reference, which is what makes shared reply buffers
// possible: every hit for a []byte key returns the same backing array.
// singleflight collapses concurrent misses for one key into a single fetch.
type MemoryCacher[T any] struct {
	cache *cache.Cache
	group singleflight.Group
}

// NewMemoryCacher creates an in-memory cache.
//
// Parameters:
//   - defaultExpiration: Default TTL for items (NoExpiration for none)
//   - cleanupInterval: How often expired items are purged; values <= 0 disable the janitor
//
// Returns:
//   - A new MemoryCacher
func NewMemoryCacher[T any](defaultExpiration, cleanupInterval time.Duration) *MemoryCacher[T] {
	return &MemoryCacher[T]{
		cache: cache.New(defaultExpiration, cleanupInterval),
	}
}

// GetOrFetch implements Cacher.
func (c *MemoryCacher[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error) {
	var zero T

	if val, found := c.cache.Get(key); found {
		if typed, ok := val.(T); ok {
			return typed, nil
		}
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		// another caller may have filled the key while we queued
		if cached, found := c.cache.Get(key); found {
			if typed, ok := cached.(T); ok {
				return typed, nil
			}
		}

		fetched, err := fetchFn(ctx)
		if err != nil {
			return zero, err
		}

		c.cache.Set(key, fetched, ttl)
		return fetched, nil
	})
	if err != nil {
		return zero, err
	}

	typed, ok := val.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected type in cache for key %s", key)
	}

	return typed, nil
}

// Delete implements Cacher.
func (c *MemoryCacher[T]) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.cache.Delete(key)
	return nil
}

// Clear implements Cacher.
func (c *MemoryCacher[T]) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.cache.Flush()
	return nil
}

// ItemCount implements Cacher.
func (c *MemoryCacher[T]) ItemCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	return c.cache.ItemCount(), nil
}
