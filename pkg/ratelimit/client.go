package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ghkit/ghkit/pkg/clock"
	"github.com/ghkit/ghkit/pkg/ghapi"
	"github.com/ghkit/ghkit/pkg/log"
)

// TokenSearcher is the lower-layer contract the rate limiter drives:
// a search call with an explicit auth token, satisfied by
// *ghapi.Client.
type TokenSearcher interface {
	SearchWithToken(ctx context.Context, req ghapi.Request, token string) (*ghapi.Result, error)
}

// Options configures a rate-limited client.
type Options struct {
	// Tokens is the auth token pool. Empty means one unauthenticated
	// slot.
	Tokens []string

	// WaitForRateLimit makes exhausted-quota requests wait for the
	// earliest token reset instead of failing with RateLimitError.
	// This is the default behavior; set FailFast to disable.
	FailFast bool

	// Adaptive shrinks a token's concurrency allowance when response
	// headers show less headroom than locally tracked.
	Adaptive bool

	// MaxConcurrentSearch bounds simultaneously in-flight search
	// calls regardless of quota. Defaults to 8.
	MaxConcurrentSearch int64

	// MaxConcurrentCore bounds in-flight core-resource calls made
	// through DoCore. Defaults to 16.
	MaxConcurrentCore int64

	Clock clock.Clock
}

// Client applies token-pool admission control to a TokenSearcher.
type Client struct {
	base       TokenSearcher
	pool       *Pool
	searchGate *semaphore.Weighted
	coreGate   *semaphore.Weighted
	wait       bool
	clock      clock.Clock
	logger     *log.Logger
}

// New creates a rate-limited client over base.
func New(base TokenSearcher, opts Options) *Client {
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	maxSearch := opts.MaxConcurrentSearch
	if maxSearch <= 0 {
		maxSearch = 8
	}
	maxCore := opts.MaxConcurrentCore
	if maxCore <= 0 {
		maxCore = 16
	}
	return &Client{
		base:       base,
		pool:       NewPool(opts.Tokens, opts.Adaptive, clk),
		searchGate: semaphore.NewWeighted(maxSearch),
		coreGate:   semaphore.NewWeighted(maxCore),
		wait:       !opts.FailFast,
		clock:      clk,
		logger:     log.ForComponent("ratelimit"),
	}
}

// Pool exposes the token pool for metrics snapshots.
func (c *Client) Pool() *Pool { return c.pool }

// Search admits the request against the token pool and concurrency
// gate, then delegates to the base client with the chosen token.
// Transport errors propagate unchanged; quota-exhausted responses
// either wait for the reset or surface as RateLimitError depending on
// configuration.
func (c *Client) Search(ctx context.Context, req ghapi.Request) (*ghapi.Result, error) {
	if err := c.searchGate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.searchGate.Release(1)

	// One admission retry after a quota surprise: the optimistic
	// local count said yes but the server said no. A second 403 on
	// the retry propagates.
	result, err := c.searchOnce(ctx, req)
	if err == nil || !c.wait {
		return result, err
	}
	var rateErr *ghapi.RateLimitError
	if !errors.As(err, &rateErr) {
		return result, err
	}
	return c.searchOnce(ctx, req)
}

func (c *Client) searchOnce(ctx context.Context, req ghapi.Request) (*ghapi.Result, error) {
	token, release, err := c.admit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	result, err := c.base.SearchWithToken(ctx, req, token)
	if err != nil {
		var rateErr *ghapi.RateLimitError
		if errors.As(err, &rateErr) {
			resetAt := rateErr.ResetAt
			if !resetAt.After(c.clock.Now()) {
				resetAt = c.clock.Now().Add(time.Minute)
			}
			c.pool.MarkExhausted(token, ResourceSearch, resetAt)
			c.logger.Warnf("token %s exhausted, resets %s", redactToken(token), resetAt.Format(time.RFC3339))
		}
		return nil, err
	}

	c.pool.Record(token, result.Header, ResourceSearch)
	return result, nil
}

// DoCore runs fn under the core-resource concurrency gate with a
// pool-selected token, recording quota feedback from the returned
// headers. Used by the plain (non-search) API wrappers that share
// this client's token pool.
func (c *Client) DoCore(ctx context.Context, fn func(ctx context.Context, token string) (http.Header, error)) error {
	if err := c.coreGate.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.coreGate.Release(1)

	token, release, ok, resetAt := c.pool.Acquire(ResourceCore)
	if !ok {
		if !c.wait {
			return &ghapi.RateLimitError{ResetAt: resetAt, Message: "all tokens exhausted"}
		}
		select {
		case <-c.clock.After(resetAt.Sub(c.clock.Now())):
		case <-ctx.Done():
			return ctx.Err()
		}
		token, release, ok, _ = c.pool.Acquire(ResourceCore)
		if !ok {
			return &ghapi.RateLimitError{ResetAt: resetAt, Message: "all tokens exhausted"}
		}
	}
	defer release()

	header, err := fn(ctx, token)
	c.pool.Record(token, header, ResourceCore)
	return err
}

// admit blocks until a token with headroom is available (or fails with
// RateLimitError when waiting is disabled).
func (c *Client) admit(ctx context.Context) (string, func(), error) {
	for {
		token, release, ok, resetAt := c.pool.Acquire(ResourceSearch)
		if ok {
			return token, release, nil
		}

		if !c.wait {
			return "", nil, &ghapi.RateLimitError{
				ResetAt: resetAt,
				Message: "all tokens exhausted",
			}
		}

		delay := resetAt.Sub(c.clock.Now())
		if delay < 0 {
			delay = 0
		}
		c.logger.Infof("quota exhausted on every token, waiting %s", delay)

		select {
		case <-c.clock.After(delay):
		case <-ctx.Done():
			return "", nil, ctx.Err()
		}
	}
}
