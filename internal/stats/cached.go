package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SummaryCacheKey is the cache slot holding the serialized summary.
const SummaryCacheKey = "stats:summary"

// DefaultSummaryTTL bounds staleness when invalidation events are lost.
const DefaultSummaryTTL = 5 * time.Minute

// CachedAggregator wraps an Aggregator with a cache so dashboard reads do
// not rescan the full history on every request. Cache failures degrade to
// a direct aggregation, never to an error.
type CachedAggregator struct {
	inner *Aggregator
	cache domain.Cache
	ttl   time.Duration
}

// NewCached creates a caching aggregator.
func NewCached(inner *Aggregator, cache domain.Cache, ttl time.Duration) *CachedAggregator {
	if ttl <= 0 {
		ttl = DefaultSummaryTTL
	}
	return &CachedAggregator{inner: inner, cache: cache, ttl: ttl}
}

// Summarize returns the cached summary when fresh, otherwise recomputes
// and stores it.
func (c *CachedAggregator) Summarize(ctx context.Context) (*Summary, error) {
	if data, err := c.cache.Get(ctx, SummaryCacheKey); err == nil && data != nil {
		var s Summary
		if err := json.Unmarshal(data, &s); err == nil {
			return &s, nil
		}
		// Stale or malformed entry; drop it and recompute.
		_ = c.cache.Delete(ctx, SummaryCacheKey)
	}

	s, err := c.inner.Summarize(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(s); err == nil {
		if err := c.cache.Set(ctx, SummaryCacheKey, data, c.ttl); err != nil {
			slog.Debug("failed to cache summary", "error", err)
		}
	}

	return s, nil
}

// Invalidate drops the cached summary. Called when a new decision is
// recorded or the history is cleared.
func (c *CachedAggregator) Invalidate(ctx context.Context) {
	if err := c.cache.Delete(ctx, SummaryCacheKey); err != nil {
		slog.Debug("failed to invalidate summary cache", "error", err)
	}
}
