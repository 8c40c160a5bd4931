package enrichment

import (
	"context"
	"time"

	"github.com/Reddy-45/siem/internal/domain"
	"github.com/Reddy-45/siem/internal/ports"
	"github.com/Reddy-45/siem/pkg/lru"
)

// CachedEnricher memoizes successful lookups of an inner Enricher.
// Failures are not cached, so a recovering upstream is retried on the next
// event from the same address.
type CachedEnricher struct {
	inner ports.Enricher
	cache *lru.Cache[string, domain.Enrichment]
}

// NewCachedEnricher wraps inner with an LRU of size entries that expire
// after ttl (0 keeps them until evicted).
func NewCachedEnricher(inner ports.Enricher, size int, ttl time.Duration) *CachedEnricher {
	return &CachedEnricher{
		inner: inner,
		cache: lru.New[string, domain.Enrichment](size, lru.WithTTL(ttl)),
	}
}

func (c *CachedEnricher) Lookup(ctx context.Context, address string) (domain.Enrichment, error) {
	if e, ok := c.cache.Get(address); ok {
		return e, nil
	}

	e, err := c.inner.Lookup(ctx, address)
	if err != nil {
		return domain.NoEnrichment(), err
	}
	c.cache.Put(address, e)
	return e, nil
}

func (c *CachedEnricher) Name() string {
	return c.inner.Name() + "+cache"
}

// Len returns the number of cached addresses.
func (c *CachedEnricher) Len() int {
	return c.cache.Len()
}
