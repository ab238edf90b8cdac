// Package cacher provides a small keyed cache with fetch-on-miss semantics.
// The control server uses it to keep one encoded copy of every reply it can
// send, so that identical replies queued on many connections share a buffer.
package cacher

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// NoExpiration keeps an entry until it is deleted.
const NoExpiration = cache.NoExpiration

// FetchFunc produces the value for a key on a cache miss.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Cacher is a keyed cache that fills misses by calling a FetchFunc. Concurrent
// misses on the same key must result in a single fetch.
type Cacher[T any] interface {
	// GetOrFetch returns the cached value for key, or calls fetchFn, stores
	// its result with the given ttl and returns it.
	//
	// Parameters:
	//   - ctx: Context passed to fetchFn
	//   - key: The cache key
	//   - ttl: Time-to-live for a fetched value (NoExpiration to keep forever)
	//   - fetchFn: Function producing the value on a miss
	//
	// Returns:
	//   - The cached or fetched value
	//   - The error returned by fetchFn; failed fetches are not cached
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error)

	// Delete removes a key from the cache.
	Delete(ctx context.Context, key string) error

	// Clear removes all items from the cache.
	Clear(ctx context.Context) error

	// ItemCount returns the number of items in the cache.
	ItemCount(ctx context.Context) (int, error)
}
