package pool

import (
	"context"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/okian/pitchelo/internal/domain/model"
	"github.com/okian/pitchelo/pkg/logger"
	"github.com/okian/pitchelo/pkg/metrics"
)

const (
	defaultTTL            = time.Hour
	defaultRefreshTimeout = 10 * time.Second
)

type cacheEntry struct {
	candidates []model.Candidate
	fetched    time.Time
}

// Cached keeps each category's pool for a TTL. Concurrent refreshes of a
// category share one upstream call, and a failed refresh falls back to the
// previous pool when there is one.
type Cached struct {
	next    Provider
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
	group   singleflight.Group

	mu      sync.RWMutex
	entries map[model.Category]cacheEntry

	logger logger.Logger
}

// CachedOption applies a configuration option to Cached.
type CachedOption func(*Cached)

// WithTTL sets how long a fetched pool is served.
func WithTTL(d time.Duration) CachedOption {
	return func(c *Cached) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithRefreshTimeout bounds one upstream refresh.
func WithRefreshTimeout(d time.Duration) CachedOption {
	return func(c *Cached) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithClock overrides the cache clock.
func WithClock(now func() time.Time) CachedOption {
	return func(c *Cached) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCached wraps next.
func NewCached(next Provider, opts ...CachedOption) *Cached {
	c := &Cached{
		next:    next,
		ttl:     defaultTTL,
		timeout: defaultRefreshTimeout,
		now:     time.Now,
		entries: make(map[model.Category]cacheEntry),
		logger:  logger.Get().Named("pool"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListCandidates implements Provider.
func (c *Cached) ListCandidates(ctx context.Context, category model.Category) ([]model.Candidate, error) {
	c.mu.RLock()
	e, ok := c.entries[category]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.fetched) < c.ttl {
		metrics.RecordPoolCache(string(category), "hit")
		return slices.Clone(e.candidates), nil
	}

	// The refresh is shared, so no single caller's cancellation may end it.
	v, err, _ := c.group.Do(string(category), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.next.ListCandidates(fctx, category)
	})
	if err != nil {
		if ok {
			metrics.RecordPoolCache(string(category), "stale")
			c.logger.Warn(ctx, "pool refresh failed, serving previous pool",
				logger.String("category", string(category)),
				logger.Error(err))
			return slices.Clone(e.candidates), nil
		}
		metrics.RecordPoolCache(string(category), "error")
		return nil, err
	}

	fresh := v.([]model.Candidate)
	c.mu.Lock()
	c.entries[category] = cacheEntry{candidates: fresh, fetched: c.now()}
	c.mu.Unlock()
	metrics.RecordPoolCache(string(category), "miss")
	metrics.UpdatePoolSize(string(category), len(fresh))
	return slices.Clone(fresh), nil
}

// Invalidate drops every cached pool.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	clear(c.entries)
	c.mu.Unlock()
}
