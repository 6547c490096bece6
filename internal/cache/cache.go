// Package cache implements cache-aside lookups over the key/value store
// for the slow backing order and FAQ sources.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ashureev/supportd/internal/domain"
	"github.com/ashureev/supportd/internal/kv"
)

// Cache wraps the key/value store with single-flight protection so a
// cold key triggers at most one concurrent fetch against the backing
// source.
type Cache struct {
	kv    kv.Store
	group singleflight.Group
}

// New creates a Cache over the given store.
func New(store kv.Store) *Cache {
	return &Cache{kv: store}
}

// lookup returns the cached value under key, fetching and caching it on
// a miss. Fetch errors are never cached: a failed or not-found lookup
// leaves the key cold so the next call retries the source. A broken
// store degrades to fetching directly rather than failing the request.
func lookup[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	if val, ok := read[T](ctx, c, key); ok {
		return val, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		// Another flight may have filled the key while we waited.
		if val, ok := read[T](ctx, c, key); ok {
			return val, nil
		}

		fetched, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.write(ctx, key, ttl, fetched)
		return fetched, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// lookupSlice is lookup for slice-valued families. An empty result is
// a valid answer but is never cached, and a cached empty entry is
// ignored on read, so rows appearing at the source later become
// visible immediately instead of hiding behind a stale "no results".
func lookupSlice[E any](ctx context.Context, c *Cache, key string, ttl time.Duration, fetch func(context.Context) ([]E, error)) ([]E, error) {
	if val, ok := read[[]E](ctx, c, key); ok && len(val) > 0 {
		return val, nil
	}

	res, err, _ := c.group.Do(key, func() (any, error) {
		if val, ok := read[[]E](ctx, c, key); ok && len(val) > 0 {
			return val, nil
		}

		fetched, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		if len(fetched) > 0 {
			c.write(ctx, key, ttl, fetched)
		}
		return fetched, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]E), nil
}

// read returns the decoded value under key and whether it was usable.
func read[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var val T
	raw, err := c.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("cache read failed, falling through to source", "key", key, "error", err)
		}
		return val, false
	}
	if err := json.Unmarshal(raw, &val); err != nil {
		slog.Warn("cache entry undecodable, evicting", "key", key, "error", err)
		_, _ = c.kv.Delete(ctx, key)
		return val, false
	}
	return val, true
}

func (c *Cache) write(ctx context.Context, key string, ttl time.Duration, val any) {
	raw, err := json.Marshal(val)
	if err != nil {
		slog.Warn("cache entry unencodable, skipping store", "key", key, "error", err)
		return
	}
	if err := c.kv.Set(ctx, key, raw, ttl); err != nil {
		slog.Warn("cache write failed, serving uncached", "key", key, "error", err)
	}
}
