package search

import (
	"fmt"
	"net/http"
	"time"

	"github.com/ghkit/ghkit/pkg/cache"
	"github.com/ghkit/ghkit/pkg/clock"
)

// Options configures a Client. The zero value gives an
// unauthenticated client with every resilience layer enabled at its
// defaults.
type Options struct {
	// Token is a single auth token; Tokens is a pool the rate
	// limiter rotates among. Both may be set; Token is appended to
	// the pool.
	Token  string
	Tokens []string

	// BaseURL overrides the public API root (for GitHub Enterprise
	// or tests).
	BaseURL string

	// Timeout bounds each network call.
	Timeout time.Duration

	// DisableRateLimiting turns off token-pool admission control,
	// which is on by default.
	DisableRateLimiting bool

	// AdaptiveRateLimit shrinks a token's concurrency allowance when
	// response headers show less headroom than locally tracked.
	AdaptiveRateLimit bool

	// FailFastOnRateLimit surfaces RateLimitError immediately when
	// every token is exhausted. The default is to wait for the
	// earliest token reset instead.
	FailFastOnRateLimit bool

	// MaxConcurrentSearch bounds simultaneously in-flight search
	// calls.
	MaxConcurrentSearch int64

	// DisableCache turns the caching layer off.
	DisableCache bool

	// CacheStrategy selects the default freshness window:
	// conservative, moderate (default) or aggressive.
	CacheStrategy cache.Strategy

	// CacheTTL overrides the strategy's window when positive.
	CacheTTL time.Duration

	// CacheMaxSize bounds the in-memory cache entry count.
	CacheMaxSize int

	// CachePath enables the persistent SQLite cache tier at the
	// given file path. Empty keeps the cache memory-only.
	CachePath string

	// DisableBatching turns off the batching window (in-flight dedup
	// remains active).
	DisableBatching bool

	// BatchWindow is how long the first request in a group waits for
	// companions.
	BatchWindow time.Duration

	// MaxBatchSize dispatches a group early once reached.
	MaxBatchSize int

	// MaxParallel bounds concurrent dispatch in batches and
	// ParallelSearch.
	MaxParallel int64

	// DisableCircuitBreaker turns off per-endpoint failure
	// isolation.
	DisableCircuitBreaker bool

	// FailureThreshold opens an endpoint's breaker after this many
	// consecutive failures.
	FailureThreshold int

	// CircuitTimeout is the open-state cool-down before a trial
	// call.
	CircuitTimeout time.Duration

	// DisableMonitoring turns off the background health check that
	// drives the degradation level.
	DisableMonitoring bool

	// HealthCheckInterval is the period of the background health
	// check. Defaults to 30s.
	HealthCheckInterval time.Duration

	// DisableDegradation pins the client at the NORMAL level even
	// when the health check runs.
	DisableDegradation bool

	// HTTPClient and Clock are injection points for tests.
	HTTPClient *http.Client
	Clock      clock.Clock
}

func (o *Options) validate() error {
	if o.CacheStrategy != "" {
		if _, err := cache.ParseStrategy(string(o.CacheStrategy)); err != nil {
			return fmt.Errorf("search: %w", err)
		}
	}
	if o.CacheTTL < 0 {
		return fmt.Errorf("search: negative cache TTL")
	}
	if o.FailureThreshold < 0 {
		return fmt.Errorf("search: negative failure threshold")
	}
	return nil
}

// tokenPool merges Token and Tokens into the pool handed to the rate
// limiter.
func (o *Options) tokenPool() []string {
	pool := make([]string, 0, len(o.Tokens)+1)
	pool = append(pool, o.Tokens...)
	if o.Token != "" {
		pool = append(pool, o.Token)
	}
	return pool
}

// primaryToken is the token used when rate limiting is disabled and
// the base client sends every request itself.
func (o *Options) primaryToken() string {
	if o.Token != "" {
		return o.Token
	}
	if len(o.Tokens) > 0 {
		return o.Tokens[0]
	}
	return ""
}
