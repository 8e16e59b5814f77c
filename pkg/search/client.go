// Package search provides the production-facing GitHub search client.
// It composes the base HTTP client with independent capability layers
// (token-pool rate limiting, LRU+TTL caching, batching/dedup) and adds
// per-endpoint circuit breakers, a degradation policy and metrics on
// top. New is the only constructor; there is no package-level default
// instance.
package search

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ghkit/ghkit/pkg/batch"
	"github.com/ghkit/ghkit/pkg/breaker"
	"github.com/ghkit/ghkit/pkg/cache"
	"github.com/ghkit/ghkit/pkg/clock"
	"github.com/ghkit/ghkit/pkg/ghapi"
	"github.com/ghkit/ghkit/pkg/log"
	"github.com/ghkit/ghkit/pkg/ratelimit"
)

// Client is the facade over the layered search stack. A call flows
// degradation policy -> circuit breaker -> cache -> batching window ->
// rate limiter -> transport; each layer short-circuits where its
// contract allows (an open breaker fails fast, a cache hit returns
// without a network call).
type Client struct {
	base     *ghapi.Client
	limiter  *ratelimit.Client
	cache    *cache.Client
	batcher  *batch.Client
	breakers *breaker.Set

	// chain is the composed Searcher the facade delegates to after
	// its own breaker check.
	chain ghapi.Searcher

	counters counters
	level    atomicString

	configuredStrategy    cache.Strategy
	batchingConfiguredOff bool
	degradation           bool
	maxParallel           int64

	clock  clock.Clock
	logger *log.Logger

	stopOnce    sync.Once
	stopMonitor chan struct{}
}

// defaultHealthInterval is the period of the background health check.
const defaultHealthInterval = 30 * time.Second

// atomicString holds the current degradation level as a string.
type atomicString struct {
	v atomic.Value
}

func (a *atomicString) Load() string {
	s, _ := a.v.Load().(string)
	return s
}

func (a *atomicString) Store(s string) { a.v.Store(s) }

func (a *atomicString) Swap(s string) string {
	previous, _ := a.v.Swap(s).(string)
	return previous
}

// New builds a client from opts. Call Close when done to stop the
// health monitor and release the persistent cache tier.
func New(opts Options) (*Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}

	strategy := opts.CacheStrategy
	if strategy == "" {
		strategy = cache.StrategyModerate
	}
	maxParallel := opts.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 4
	}

	client := &Client{
		base: ghapi.NewClient(ghapi.Config{
			BaseURL:    opts.BaseURL,
			Token:      opts.primaryToken(),
			Timeout:    opts.Timeout,
			HTTPClient: opts.HTTPClient,
			Clock:      clk,
		}),
		configuredStrategy:    strategy,
		batchingConfiguredOff: opts.DisableBatching,
		degradation:           !opts.DisableDegradation,
		maxParallel:           maxParallel,
		clock:                 clk,
		logger:                log.ForComponent("search"),
		stopMonitor:           make(chan struct{}),
	}
	client.level.Store(string(LevelNormal))

	// Compose inner layers bottom-up: rate limiter closest to the
	// wire, then batching, then cache outermost so hits skip both.
	var chain ghapi.Searcher = client.base
	if !opts.DisableRateLimiting {
		client.limiter = ratelimit.New(client.base, ratelimit.Options{
			Tokens:              opts.tokenPool(),
			FailFast:            opts.FailFastOnRateLimit,
			Adaptive:            opts.AdaptiveRateLimit,
			MaxConcurrentSearch: opts.MaxConcurrentSearch,
			Clock:               clk,
		})
		chain = client.limiter
	}

	client.batcher = batch.New(chain, batch.Options{
		Window:       opts.BatchWindow,
		MaxBatchSize: opts.MaxBatchSize,
		MaxParallel:  maxParallel,
		Disabled:     opts.DisableBatching,
		Clock:        clk,
	})
	chain = client.batcher

	if !opts.DisableCache {
		var persistent cache.Store
		if opts.CachePath != "" {
			store, err := cache.NewSQLiteStore(opts.CachePath, opts.CacheMaxSize)
			if err != nil {
				return nil, err
			}
			persistent = store
		}
		client.cache = cache.New(chain, cache.Options{
			TTL:        opts.CacheTTL,
			Strategy:   strategy,
			MaxSize:    opts.CacheMaxSize,
			Persistent: persistent,
			Clock:      clk,
		})
		chain = client.cache
	}
	client.chain = chain

	if !opts.DisableCircuitBreaker {
		client.breakers = breaker.NewSet(opts.FailureThreshold, opts.CircuitTimeout, clk)
	}

	if !opts.DisableMonitoring {
		interval := opts.HealthCheckInterval
		if interval <= 0 {
			interval = defaultHealthInterval
		}
		go client.monitor(interval)
	}

	return client, nil
}

// Search runs one request through the full stack.
func (c *Client) Search(ctx context.Context, req ghapi.Request) (*ghapi.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	// Endpoint names validate case-insensitively, but the breaker set
	// and metrics are keyed by the canonical lowercase form.
	if canonical, err := ghapi.ParseEndpoint(string(req.Endpoint)); err == nil {
		req.Endpoint = canonical
	}

	// Breaker check precedes rate-limiter admission: a fast failure
	// must not consume quota or a concurrency slot.
	var endpointBreaker *breaker.Breaker
	if c.breakers != nil {
		endpointBreaker = c.breakers.For(req.Endpoint)
		if err := endpointBreaker.Allow(); err != nil {
			return nil, err
		}
	}

	started := c.clock.Now()
	result, err := c.chain.Search(ctx, req)
	latency := c.clock.Now().Sub(started)

	c.counters.record(latency, err)
	if endpointBreaker != nil {
		if err != nil {
			endpointBreaker.RecordFailure()
		} else {
			endpointBreaker.RecordSuccess()
		}
	}

	if err != nil {
		if c.degradation {
			c.recomputeLevel(false)
		}
		return nil, err
	}

	if level := Level(c.level.Load()); level != LevelNormal {
		// Callers can detect responses produced below NORMAL.
		tagged := *result
		tagged.Degraded = true
		return &tagged, nil
	}
	return result, nil
}

// SearchRepositories searches repositories matching params.
func (c *Client) SearchRepositories(ctx context.Context, params Params) (*ghapi.Result, error) {
	return c.Search(ctx, params.request(ghapi.EndpointRepositories))
}

// SearchCode searches file contents.
func (c *Client) SearchCode(ctx context.Context, params Params) (*ghapi.Result, error) {
	return c.Search(ctx, params.request(ghapi.EndpointCode))
}

// SearchCommits searches commit messages.
func (c *Client) SearchCommits(ctx context.Context, params Params) (*ghapi.Result, error) {
	return c.Search(ctx, params.request(ghapi.EndpointCommits))
}

// SearchIssues searches issues and pull requests.
func (c *Client) SearchIssues(ctx context.Context, params Params) (*ghapi.Result, error) {
	return c.Search(ctx, params.request(ghapi.EndpointIssues))
}

// SearchUsers searches users and organizations.
func (c *Client) SearchUsers(ctx context.Context, params Params) (*ghapi.Result, error) {
	return c.Search(ctx, params.request(ghapi.EndpointUsers))
}

// SearchLabels searches labels within the repository named by
// params.RepositoryID.
func (c *Client) SearchLabels(ctx context.Context, params Params) (*ghapi.Result, error) {
	return c.Search(ctx, params.request(ghapi.EndpointLabels))
}

// SearchTopics searches topics.
func (c *Client) SearchTopics(ctx context.Context, params Params) (*ghapi.Result, error) {
	return c.Search(ctx, params.request(ghapi.EndpointTopics))
}

// Params carries the caller-facing search parameters shared by the
// typed methods.
type Params struct {
	Query        string
	Sort         string
	Order        string
	PerPage      int
	Page         int
	RepositoryID int64
}

func (p Params) request(endpoint ghapi.Endpoint) ghapi.Request {
	return ghapi.Request{
		Endpoint:     endpoint,
		Query:        p.Query,
		Sort:         p.Sort,
		Order:        p.Order,
		PerPage:      p.PerPage,
		Page:         p.Page,
		RepositoryID: p.RepositoryID,
	}
}

// Outcome is one query's result or error from a fan-out call.
type Outcome struct {
	Data *ghapi.Result `json:"data,omitempty"`
	Err  error         `json:"-"`
}

// ParallelSearch fans the queries out through the full stack with
// bounded concurrency. The returned slice is index-stable: outcome i
// belongs to queries[i] regardless of completion order, and one
// query's failure never short-circuits its siblings.
func (c *Client) ParallelSearch(ctx context.Context, endpoint ghapi.Endpoint, queries []string) []Outcome {
	outcomes := make([]Outcome, len(queries))
	gate := semaphore.NewWeighted(c.maxParallel)

	var wg sync.WaitGroup
	for i, query := range queries {
		wg.Add(1)
		go func(i int, query string) {
			defer wg.Done()

			if err := gate.Acquire(ctx, 1); err != nil {
				outcomes[i] = Outcome{Err: err}
				return
			}
			defer gate.Release(1)

			result, err := c.Search(ctx, ghapi.Request{Endpoint: endpoint, Query: query})
			outcomes[i] = Outcome{Data: result, Err: err}
		}(i, query)
	}
	wg.Wait()

	return outcomes
}

// MultiEndpointSearch issues the same query against several endpoints
// concurrently. Each endpoint's outcome is independent; one failing
// endpoint never suppresses another's result.
func (c *Client) MultiEndpointSearch(ctx context.Context, query string, endpoints []ghapi.Endpoint) map[ghapi.Endpoint]Outcome {
	outcomes := make(map[ghapi.Endpoint]Outcome, len(endpoints))
	results := make([]Outcome, len(endpoints))

	var wg sync.WaitGroup
	for i, endpoint := range endpoints {
		wg.Add(1)
		go func(i int, endpoint ghapi.Endpoint) {
			defer wg.Done()
			result, err := c.Search(ctx, ghapi.Request{Endpoint: endpoint, Query: query})
			results[i] = Outcome{Data: result, Err: err}
		}(i, endpoint)
	}
	wg.Wait()

	for i, endpoint := range endpoints {
		outcomes[endpoint] = results[i]
	}
	return outcomes
}

// monitor periodically recomputes the degradation level from the
// recent failure window and the breaker states. Each tick closes out
// the window so a burst of failures ages out once traffic recovers.
func (c *Client) monitor(interval time.Duration) {
	ticker := c.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopMonitor:
			return
		case <-ticker.C:
			if c.degradation {
				c.recomputeLevel(true)
			}
		}
	}
}

// recomputeLevel re-derives and applies the degradation level.
// closeWindow resets the failure window afterwards; failure-path
// callers peek without resetting so the monitor still sees the full
// window.
func (c *Client) recomputeLevel(closeWindow bool) {
	var total, failures int64
	if closeWindow {
		total, failures = c.counters.resetWindow()
	} else {
		total, failures = c.counters.window()
	}

	open := 0
	if c.breakers != nil {
		open = c.breakers.OpenCount()
	}
	c.applyLevel(computeLevel(total, failures, open))
}

// Pages returns a lazy page iterator running through the full stack.
func (c *Client) Pages(req ghapi.Request) *ghapi.PageIterator {
	return ghapi.Pages(c, req)
}

// ClearCache drops every cached entry and resets the cache counters.
func (c *Client) ClearCache() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Clear()
}

// CacheStats returns the cache counter snapshot.
func (c *Client) CacheStats() cache.Stats {
	if c.cache == nil {
		return cache.Stats{}
	}
	return c.cache.Stats()
}

// Close stops the health monitor and releases the persistent cache
// tier. Safe to call more than once.
func (c *Client) Close() error {
	c.stopOnce.Do(func() { close(c.stopMonitor) })
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}
