package ports

import (
	"context"

	"github.com/Reddy-45/siem/internal/domain"
)

// Enricher resolves a source address to geographic and network metadata.
//
// Implementations:
//   - IPAPIEnricher: ip-api.com lookups behind a rate limiter and circuit breaker
//   - CachedEnricher: LRU decorator around any Enricher
//
// Contract:
//   - MUST honour ctx cancellation; the caller applies the lookup timeout
//   - Returns domain.NoEnrichment() together with a non-nil error on failure
//   - Errors are never propagated past the ingestion boundary; the engine logs
//     them and proceeds with an empty enrichment
//
// Thread Safety: Implementations MUST be safe for concurrent Lookup() calls.
type Enricher interface {
	Lookup(ctx context.Context, address string) (domain.Enrichment, error)

	// Name returns the provider identifier for logging and metrics.
	Name() string
}
