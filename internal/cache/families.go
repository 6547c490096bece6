package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/zerr"

	"github.com/ashureev/supportd/internal/domain"
)

// Key prefixes per cached family. These are a stable contract: stats
// counting and fan-out invalidation both key off them.
const (
	OrderKeyPrefix        = "cache:order:"
	OrderSummaryKeyPrefix = "cache:order_summary:"
	EmailSearchKeyPrefix  = "cache:email_search:"
	FAQSearchKeyPrefix    = "cache:faq_search:"
	AgentStateKeyPrefix   = "cache:agent_state:"
)

// Default TTLs per family. Order data changes slowly, FAQ content barely
// at all, email searches span multiple orders so they go stale fastest.
const (
	DefaultOrderTTL       = 30 * time.Minute
	DefaultEmailSearchTTL = 10 * time.Minute
	DefaultFAQSearchTTL   = time.Hour
	DefaultAgentStateTTL  = time.Hour
)

// OrderFetcher is the slow backing source for order data.
type OrderFetcher interface {
	LookupOrder(ctx context.Context, orderID string) (*domain.Order, error)
	OrderSummary(ctx context.Context, orderID string) (string, error)
	SearchByEmail(ctx context.Context, email string) ([]domain.Order, error)
}

// FAQSearcher is the slow backing source for FAQ search.
type FAQSearcher interface {
	SearchFAQ(ctx context.Context, query string, limit int) ([]domain.FAQMatch, error)
}

// OrderCache serves order lookups cache-aside. Not-found orders are
// never cached, so a later lookup of a just-created order is not masked
// by a stale negative entry.
type OrderCache struct {
	cache    *Cache
	source   OrderFetcher
	ttl      time.Duration
	emailTTL time.Duration
}

// NewOrderCache wraps source with caching. Non-positive TTLs fall back
// to the defaults.
func NewOrderCache(c *Cache, source OrderFetcher, ttl, emailTTL time.Duration) *OrderCache {
	if ttl <= 0 {
		ttl = DefaultOrderTTL
	}
	if emailTTL <= 0 {
		emailTTL = DefaultEmailSearchTTL
	}
	return &OrderCache{cache: c, source: source, ttl: ttl, emailTTL: emailTTL}
}

// Order returns the order with the given ID.
func (o *OrderCache) Order(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, zerr.Wrap(domain.ErrInvalidInput, "empty order id")
	}
	return lookup(ctx, o.cache, OrderKeyPrefix+orderID, o.ttl,
		func(ctx context.Context) (*domain.Order, error) {
			return o.source.LookupOrder(ctx, orderID)
		})
}

// Summary returns the human-readable one-paragraph summary for an order.
func (o *OrderCache) Summary(ctx context.Context, orderID string) (string, error) {
	if orderID == "" {
		return "", zerr.Wrap(domain.ErrInvalidInput, "empty order id")
	}
	return lookup(ctx, o.cache, OrderSummaryKeyPrefix+orderID, o.ttl,
		func(ctx context.Context) (string, error) {
			return o.source.OrderSummary(ctx, orderID)
		})
}

// ByEmail returns all orders belonging to the given customer email.
// The email is lowercased so differently-cased lookups share one entry.
func (o *OrderCache) ByEmail(ctx context.Context, email string) ([]domain.Order, error) {
	if email == "" {
		return nil, zerr.Wrap(domain.ErrInvalidInput, "empty email")
	}
	key := EmailSearchKeyPrefix + strings.ToLower(email)
	return lookupSlice(ctx, o.cache, key, o.emailTTL,
		func(ctx context.Context) ([]domain.Order, error) {
			return o.source.SearchByEmail(ctx, email)
		})
}

// Invalidate drops every cached entry derived from the given order and
// returns how many entries existed. Email search entries are left to
// their short TTL since the order-to-email mapping is not indexed here.
func (o *OrderCache) Invalidate(ctx context.Context, orderID string) (int64, error) {
	return o.cache.kv.Delete(ctx,
		OrderKeyPrefix+orderID,
		OrderSummaryKeyPrefix+orderID,
	)
}

// FAQCache serves FAQ search results cache-aside, keyed by a hash of the
// normalized query.
type FAQCache struct {
	cache  *Cache
	source FAQSearcher
	ttl    time.Duration
	limit  int
}

// NewFAQCache wraps source with caching. limit bounds how many matches a
// search returns.
func NewFAQCache(c *Cache, source FAQSearcher, ttl time.Duration, limit int) *FAQCache {
	if ttl <= 0 {
		ttl = DefaultFAQSearchTTL
	}
	if limit <= 0 {
		limit = 5
	}
	return &FAQCache{cache: c, source: source, ttl: ttl, limit: limit}
}

// SearchKey returns the cache key for a query. Queries differing only in
// case or surrounding whitespace share an entry.
func SearchKey(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return FAQSearchKeyPrefix + fmt.Sprintf("%016x", xxhash.Sum64String(normalized))
}

// Search returns scored FAQ matches for the query. An empty result list
// is a valid answer but is never cached; only non-empty results stick.
func (f *FAQCache) Search(ctx context.Context, query string) ([]domain.FAQMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, zerr.Wrap(domain.ErrInvalidInput, "empty query")
	}
	return lookupSlice(ctx, f.cache, SearchKey(query), f.ttl,
		func(ctx context.Context) ([]domain.FAQMatch, error) {
			return f.source.SearchFAQ(ctx, query, f.limit)
		})
}

// Preload warms the cache for the given queries and returns how many
// entries were newly fetched. Already-warm queries are skipped, so
// preloading is idempotent.
func (f *FAQCache) Preload(ctx context.Context, queries []string) (int, error) {
	loaded := 0
	for _, q := range queries {
		if strings.TrimSpace(q) == "" {
			continue
		}
		if warm, ok := read[[]domain.FAQMatch](ctx, f.cache, SearchKey(q)); ok && len(warm) > 0 {
			continue
		}
		if _, err := f.Search(ctx, q); err != nil {
			return loaded, zerr.With(zerr.Wrap(err, "preload query"), "query", q)
		}
		loaded++
	}
	return loaded, nil
}

// AgentStateCache holds per-(session, specialist) working state for the
// lifetime of the session.
type AgentStateCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewAgentStateCache creates the state cache.
func NewAgentStateCache(c *Cache, ttl time.Duration) *AgentStateCache {
	if ttl <= 0 {
		ttl = DefaultAgentStateTTL
	}
	return &AgentStateCache{cache: c, ttl: ttl}
}

func agentStateKey(sessionID string, agent domain.SpecialistName) string {
	return AgentStateKeyPrefix + sessionID + ":" + string(agent)
}

// Get returns the stored state, or domain.ErrNotFound if none exists.
func (a *AgentStateCache) Get(ctx context.Context, sessionID string, agent domain.SpecialistName) (*domain.AgentState, error) {
	state, ok := read[*domain.AgentState](ctx, a.cache, agentStateKey(sessionID, agent))
	if !ok {
		return nil, zerr.With(zerr.Wrap(domain.ErrNotFound, "agent state"), "session_id", sessionID)
	}
	return state, nil
}

// Put stores the state, restarting its TTL.
func (a *AgentStateCache) Put(ctx context.Context, state *domain.AgentState) error {
	if state.SessionID == "" || state.AgentName == "" {
		return zerr.Wrap(domain.ErrInvalidInput, "agent state missing session or agent name")
	}
	a.cache.write(ctx, agentStateKey(state.SessionID, domain.SpecialistName(state.AgentName)), a.ttl, state)
	return nil
}

// Clear drops all specialist state for a session and returns how many
// entries existed.
func (a *AgentStateCache) Clear(ctx context.Context, sessionID string) (int64, error) {
	keys, err := a.cache.kv.ListKeys(ctx, AgentStateKeyPrefix+sessionID+":")
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	return a.cache.kv.Delete(ctx, keys...)
}
