package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ghkit/ghkit/pkg/clock"
	"github.com/ghkit/ghkit/pkg/ghapi"
	"github.com/ghkit/ghkit/pkg/log"
)

// Options configures a caching client.
type Options struct {
	// TTL overrides the strategy's default freshness window when
	// positive.
	TTL time.Duration

	// Strategy selects the default TTL. Defaults to moderate.
	Strategy Strategy

	// MaxSize bounds the in-memory tier's entry count.
	MaxSize int

	// Persistent is an optional second tier (typically a
	// SQLiteStore) consulted on memory misses. Hits there are
	// promoted into memory. Nil disables the tier.
	Persistent Store

	Clock clock.Clock
}

// Client serves repeated identical searches from cache. A hit returns
// synchronously with no network call; a miss delegates to the wrapped
// Searcher and stores the result.
type Client struct {
	base       ghapi.Searcher
	memory     *MemoryStore
	persistent Store
	clock      clock.Clock
	logger     *log.Logger

	mu       sync.RWMutex
	ttl      time.Duration
	strategy Strategy

	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a caching client over base.
func New(base ghapi.Searcher, opts Options) *Client {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = StrategyModerate
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = strategy.TTL()
	}
	return &Client{
		base:       base,
		memory:     NewMemoryStore(opts.MaxSize),
		persistent: opts.Persistent,
		clock:      clk,
		logger:     log.ForComponent("cache"),
		ttl:        ttl,
		strategy:   strategy,
	}
}

// Search returns a cached result when the normalized request key has
// an unexpired entry, otherwise fetches through the wrapped client
// and stores the outcome. Failed fetches are never cached.
func (c *Client) Search(ctx context.Context, req ghapi.Request) (*ghapi.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key := req.Key()
	now := c.clock.Now()

	if entry, ok := c.memory.Get(key, now); ok {
		c.hits.Add(1)
		c.logger.Debugf("memory hit: %s", key)
		return entry.Result, nil
	}

	if c.persistent != nil {
		if entry, ok := c.persistent.Get(key, now); ok {
			c.hits.Add(1)
			c.logger.Debugf("persistent hit: %s", key)
			// Promote so the next lookup stays in memory; keep the
			// original StoredAt so the freshness window does not
			// restart.
			_ = c.memory.Set(entry)
			return entry.Result, nil
		}
	}

	c.misses.Add(1)

	result, err := c.base.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		Key:      key,
		Result:   result,
		StoredAt: now,
		TTL:      c.currentTTL(),
	}
	_ = c.memory.Set(entry)
	if c.persistent != nil {
		if storeErr := c.persistent.Set(entry); storeErr != nil {
			c.logger.Warnf("persistent store failed for %s: %v", key, storeErr)
		}
	}

	return result, nil
}

// SetStrategy switches the cache strategy at runtime. Entries already
// stored keep the TTL they were written with; only new entries use the
// new window.
func (c *Client) SetStrategy(strategy Strategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategy = strategy
	c.ttl = strategy.TTL()
}

// CurrentStrategy returns the active strategy.
func (c *Client) CurrentStrategy() Strategy {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.strategy
}

func (c *Client) currentTTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ttl
}

// Clear removes all cached entries from both tiers and resets the
// counters.
func (c *Client) Clear() error {
	c.hits.Store(0)
	c.misses.Store(0)
	if err := c.memory.Clear(); err != nil {
		return err
	}
	if c.persistent != nil {
		return c.persistent.Clear()
	}
	return nil
}

// Stats returns the counter snapshot for the memory tier.
func (c *Client) Stats() Stats {
	return Stats{
		Size:      c.memory.Len(),
		Capacity:  c.memory.Capacity(),
		HitCount:  c.hits.Load(),
		MissCount: c.misses.Load(),
	}
}

// Close releases the persistent tier, if any.
func (c *Client) Close() error {
	if c.persistent != nil {
		return c.persistent.Close()
	}
	return nil
}
