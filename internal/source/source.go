// Package source defines the slow backing data sources the caches sit
// in front of, plus an in-memory implementation with simulated latency.
package source

import (
	"context"

	"github.com/ashureev/supportd/internal/domain"
)

// OrderSource serves order data. Lookups are slow; callers are expected
// to cache.
type OrderSource interface {
	// LookupOrder returns the order with the given ID, or
	// domain.ErrNotFound. IDs are matched case-insensitively.
	LookupOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// OrderSummary returns a one-sentence human-readable status line for
	// the order, or domain.ErrNotFound.
	OrderSummary(ctx context.Context, orderID string) (string, error)

	// SearchByEmail returns the customer's orders, newest first. An
	// unknown email yields an empty slice, not an error.
	SearchByEmail(ctx context.Context, email string) ([]domain.Order, error)
}

// FAQSource serves FAQ search.
type FAQSource interface {
	// SearchFAQ returns up to limit scored matches, best first. No
	// matches yields an empty slice.
	SearchFAQ(ctx context.Context, query string, limit int) ([]domain.FAQMatch, error)
}
