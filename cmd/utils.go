package cmd

import (
	"fmt"

	"github.com/ghkit/ghkit/pkg/cache"
	"github.com/ghkit/ghkit/pkg/config"
	"github.com/ghkit/ghkit/pkg/search"
)

// buildClient loads the configuration and assembles the layered search
// client from it.
func buildClient(configPath string) (*search.Client, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return clientFromConfig(cfg)
}

func clientFromConfig(cfg *config.Config) (*search.Client, error) {
	opts := search.Options{
		Tokens:  cfg.Tokens,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout.Duration,

		DisableRateLimiting: !cfg.RateLimit.Enabled,
		AdaptiveRateLimit:   cfg.RateLimit.Adaptive,
		FailFastOnRateLimit: cfg.RateLimit.FailFast,
		MaxConcurrentSearch: cfg.RateLimit.MaxConcurrentSearch,

		DisableCache:  !cfg.Cache.Enabled,
		CacheStrategy: cache.Strategy(cfg.Cache.Strategy),
		CacheTTL:      cfg.Cache.TTL.Duration,
		CacheMaxSize:  cfg.Cache.MaxSize,
		CachePath:     cfg.Cache.Path,

		DisableBatching: !cfg.Batch.Enabled,
		BatchWindow:     cfg.Batch.Window.Duration,
		MaxBatchSize:    cfg.Batch.MaxBatchSize,
		MaxParallel:     cfg.Batch.MaxParallel,

		DisableCircuitBreaker: !cfg.Breaker.Enabled,
		FailureThreshold:      cfg.Breaker.FailureThreshold,
		CircuitTimeout:        cfg.Breaker.ResetTimeout.Duration,

		DisableMonitoring:   !cfg.Monitor.Enabled,
		HealthCheckInterval: cfg.Monitor.Interval.Duration,
	}

	client, err := search.New(opts)
	if err != nil {
		return nil, fmt.Errorf("building search client: %w", err)
	}
	return client, nil
}
