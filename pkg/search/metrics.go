package search

import (
	"sync"
	"time"

	"github.com/ghkit/ghkit/pkg/breaker"
	"github.com/ghkit/ghkit/pkg/cache"
	"github.com/ghkit/ghkit/pkg/ghapi"
	"github.com/ghkit/ghkit/pkg/ratelimit"
)

// counters accumulates request outcomes. Cumulative fields feed
// Metrics snapshots; the window fields feed the degradation policy and
// are reset on every health check tick.
type counters struct {
	mu sync.Mutex

	totalRequests int64
	successes     int64
	failures      int64
	latencySum    time.Duration

	windowTotal    int64
	windowFailures int64
}

func (c *counters) record(latency time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.totalRequests++
	c.windowTotal++
	c.latencySum += latency
	if err != nil {
		c.failures++
		c.windowFailures++
	} else {
		c.successes++
	}
}

// window returns the current window counters without resetting them.
func (c *counters) window() (total, failures int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.windowTotal, c.windowFailures
}

// resetWindow returns the window counters and starts a new window.
func (c *counters) resetWindow() (total, failures int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	total, failures = c.windowTotal, c.windowFailures
	c.windowTotal, c.windowFailures = 0, 0
	return total, failures
}

// Metrics is a read-only snapshot of the client's running counters.
// Building it never triggers network calls.
type Metrics struct {
	TotalRequests  int64                             `json:"total_requests"`
	SuccessRate    float64                           `json:"success_rate"`
	AverageLatency time.Duration                     `json:"average_latency"`
	CacheStats     cache.Stats                       `json:"cache_stats"`
	CacheHitRate   float64                           `json:"cache_hit_rate"`
	RateLimits     []ratelimit.TokenStatus           `json:"rate_limits"`
	Breakers       map[ghapi.Endpoint]breaker.Status `json:"circuit_breakers"`
	Level          Level                             `json:"degradation_level"`
}

// Health is the coarse health view: Status is "healthy" at NORMAL,
// otherwise the level name.
type Health struct {
	Status   string                            `json:"status"`
	Level    Level                             `json:"degradation_level"`
	Breakers map[ghapi.Endpoint]breaker.Status `json:"circuit_breakers"`
}

// Metrics returns the current counter snapshot.
func (c *Client) Metrics() Metrics {
	c.counters.mu.Lock()
	total := c.counters.totalRequests
	successes := c.counters.successes
	latencySum := c.counters.latencySum
	c.counters.mu.Unlock()

	metrics := Metrics{
		TotalRequests: total,
		Level:         Level(c.level.Load()),
	}
	if total > 0 {
		metrics.SuccessRate = float64(successes) / float64(total)
		metrics.AverageLatency = latencySum / time.Duration(total)
	}
	if c.cache != nil {
		metrics.CacheStats = c.cache.Stats()
		metrics.CacheHitRate = metrics.CacheStats.HitRate()
	}
	if c.limiter != nil {
		metrics.RateLimits = c.limiter.Pool().Snapshot()
	}
	if c.breakers != nil {
		metrics.Breakers = c.breakers.Snapshot()
	}
	return metrics
}

// Health returns the coarse health snapshot.
func (c *Client) Health() Health {
	level := Level(c.level.Load())
	health := Health{
		Status: "healthy",
		Level:  level,
	}
	if level != LevelNormal {
		health.Status = string(level)
	}
	if c.breakers != nil {
		health.Breakers = c.breakers.Snapshot()
	}
	return health
}
