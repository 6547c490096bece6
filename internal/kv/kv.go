// Package kv provides the TTL-aware key/value store backing sessions,
// conversation history, and the domain caches.
package kv

import (
	"context"
	"time"
)

// Store defines the key/value contract all higher layers build on.
// Expiration is a logical guarantee: a Get on an expired key behaves
// exactly like a Get on a key that was never set, whether or not the
// row has been physically evicted yet.
type Store interface {
	// Set writes value under key with the given time to live.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value stored under key, or domain.ErrNotFound if
	// the key is absent or expired. Connectivity failures surface as
	// domain.ErrUnavailable, never as a false absence.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the given keys and returns how many existed.
	// Deleting absent keys is not an error.
	Delete(ctx context.Context, keys ...string) (int64, error)

	// ListKeys returns all non-expired keys with the given prefix.
	ListKeys(ctx context.Context, prefix string) ([]string, error)

	// CountKeys returns the number of non-expired keys with the given
	// prefix.
	CountKeys(ctx context.Context, prefix string) (int64, error)

	// Ping verifies backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
