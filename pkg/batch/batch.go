// Package batch coordinates concurrent search dispatch. Identical
// in-flight requests collapse into one network call (all callers share
// the outcome), and requests arriving within a short window are
// dispatched together under a shared concurrency ceiling. GitHub's
// search API has no multi-query endpoint, so batching here means
// coordinated dispatch, never payload merging.
package batch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/ghkit/ghkit/pkg/clock"
	"github.com/ghkit/ghkit/pkg/ghapi"
	"github.com/ghkit/ghkit/pkg/log"
)

// Options configures a batching client.
type Options struct {
	// Window is how long the first request in a group waits for
	// companions before dispatch. Defaults to 100ms. Zero keeps the
	// default; use Disabled to bypass grouping entirely.
	Window time.Duration

	// MaxBatchSize dispatches a group early once this many requests
	// have accumulated. Defaults to 10.
	MaxBatchSize int

	// MaxParallel bounds concurrent dispatch within a group.
	// Defaults to 4.
	MaxParallel int64

	// Disabled bypasses the batching window; deduplication of
	// identical in-flight requests still applies. The degradation
	// policy flips this under stress.
	Disabled bool

	Clock clock.Clock
}

// waiter is one caller parked in the current batching group.
type waiter struct {
	req   ghapi.Request
	ctx   context.Context
	reply chan outcome
}

type outcome struct {
	result *ghapi.Result
	err    error
}

// Client wraps a Searcher with dedup and window batching.
type Client struct {
	base   ghapi.Searcher
	flight singleflight.Group
	gate   *semaphore.Weighted
	clock  clock.Clock
	logger *log.Logger

	window       time.Duration
	maxBatchSize int

	mu       sync.Mutex
	group    []*waiter
	disabled bool
	// gen counts closed groups; a window timer only flushes the
	// group that armed it.
	gen uint64
}

// New creates a batching client over base.
func New(base ghapi.Searcher, opts Options) *Client {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	window := opts.Window
	if window <= 0 {
		window = 100 * time.Millisecond
	}
	maxBatch := opts.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 10
	}
	maxParallel := opts.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &Client{
		base:         base,
		gate:         semaphore.NewWeighted(maxParallel),
		clock:        clk,
		logger:       log.ForComponent("batch"),
		window:       window,
		maxBatchSize: maxBatch,
		disabled:     opts.Disabled,
	}
}

// SetDisabled toggles window batching at runtime. In-flight dedup is
// unaffected.
func (c *Client) SetDisabled(disabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disabled = disabled
}

// Disabled reports whether window batching is bypassed.
func (c *Client) Disabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disabled
}

// Search joins the current batching group (or dispatches directly when
// batching is off). Identical concurrent requests share one network
// call either way.
func (c *Client) Search(ctx context.Context, req ghapi.Request) (*ghapi.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.disabled {
		c.mu.Unlock()
		return c.dispatchOne(ctx, req)
	}

	w := &waiter{req: req, ctx: ctx, reply: make(chan outcome, 1)}
	c.group = append(c.group, w)
	size := len(c.group)

	if size >= c.maxBatchSize {
		group := c.group
		c.group = nil
		c.gen++
		c.mu.Unlock()
		go c.dispatchGroup(group)
	} else {
		if size == 1 {
			// First member arms the window timer.
			go c.windowTimer(c.gen)
		}
		c.mu.Unlock()
	}

	select {
	case out := <-w.reply:
		return out.result, out.err
	case <-ctx.Done():
		// The group dispatch keeps running for other members; this
		// caller just stops waiting.
		return nil, ctx.Err()
	}
}

// Outcome is one query's result or error from ParallelSearch.
type Outcome struct {
	Data *ghapi.Result
	Err  error
}

// ParallelSearch fans the queries out through the batching/dedup
// stack with at most maxParallel concurrent calls. The returned slice
// is index-stable: outcome i belongs to queries[i] regardless of
// completion order, and one query's failure never short-circuits its
// siblings.
func (c *Client) ParallelSearch(ctx context.Context, endpoint ghapi.Endpoint, queries []string, maxParallel int64) []Outcome {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	gate := semaphore.NewWeighted(maxParallel)
	outcomes := make([]Outcome, len(queries))

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

// windowTimer dispatches whatever has accumulated once the window
// elapses. Timers carry the generation of the group that armed them;
// a timer whose group already flushed early is a no-op.
func (c *Client) windowTimer(gen uint64) {
	<-c.clock.After(c.window)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	group := c.group
	c.group = nil
	c.gen++
	c.mu.Unlock()

	if len(group) > 0 {
		c.dispatchGroup(group)
	}
}

// dispatchGroup executes a group's requests with bounded concurrency.
// Each waiter settles independently; one failure never fails siblings.
func (c *Client) dispatchGroup(group []*waiter) {
	c.logger.Debugf("dispatching group of %d", len(group))

	var wg sync.WaitGroup
	for _, w := range group {
		wg.Add(1)
		go func(w *waiter) {
			defer wg.Done()
			result, err := c.dispatchOne(w.ctx, w.req)
			w.reply <- outcome{result: result, err: err}
		}(w)
	}
	wg.Wait()
}

// dispatchOne sends a single request through the dedup layer under the
// shared concurrency gate.
func (c *Client) dispatchOne(ctx context.Context, req ghapi.Request) (*ghapi.Result, error) {
	key := req.Key()

	// DoChan shares one in-flight call per key; the entry is removed
	// the instant the call settles, so later identical requests start
	// a fresh call (freshness is the cache layer's concern, not
	// ours). The call runs on a detached context so one caller
	// abandoning its wait cannot cancel it for the others attached.
	resultCh := c.flight.DoChan(key, func() (any, error) {
		callCtx := context.WithoutCancel(ctx)
		if err := c.gate.Acquire(callCtx, 1); err != nil {
			return nil, err
		}
		defer c.gate.Release(1)

		return c.base.Search(callCtx, req)
	})

	select {
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ghapi.Result), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
