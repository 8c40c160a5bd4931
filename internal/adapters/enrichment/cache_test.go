package enrichment

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Reddy-45/siem/internal/domain"
)

type countingEnricher struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (c *countingEnricher) Lookup(_ context.Context, address string) (domain.Enrichment, error) {
	c.calls.Add(1)
	if c.fail.Load() {
		return domain.NoEnrichment(), errors.New("upstream down")
	}
	return domain.Enrichment{Country: "NL", Network: address}, nil
}

func (c *countingEnricher) Name() string { return "counting" }

func TestCachedEnricher_CachesSuccess(t *testing.T) {
	inner := &countingEnricher{}
	c := NewCachedEnricher(inner, 16, time.Hour)

	for i := 0; i < 3; i++ {
		e, err := c.Lookup(context.Background(), "198.51.100.1")
		require.NoError(t, err)
		assert.Equal(t, "NL", e.Country)
	}
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, "counting+cache", c.Name())
}

func TestCachedEnricher_DoesNotCacheFailure(t *testing.T) {
	inner := &countingEnricher{}
	inner.fail.Store(true)
	c := NewCachedEnricher(inner, 16, time.Hour)

	_, err := c.Lookup(context.Background(), "198.51.100.2")
	require.Error(t, err)

	inner.fail.Store(false)
	e, err := c.Lookup(context.Background(), "198.51.100.2")
	require.NoError(t, err)
	assert.Equal(t, "NL", e.Country)
	assert.Equal(t, int32(2), inner.calls.Load())
}
