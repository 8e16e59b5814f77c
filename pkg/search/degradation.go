package search

import (
	"github.com/ghkit/ghkit/pkg/cache"
)

// Level is the process-wide operating mode, trading freshness for
// availability under sustained failure.
type Level string

const (
	LevelNormal   Level = "normal"
	LevelDegraded Level = "degraded"
	LevelCritical Level = "critical"
)

// Degradation thresholds over the recent-window failure rate and open
// breaker count. At least minWindowSamples outcomes are required
// before the failure rate is considered meaningful.
const (
	minWindowSamples     = 5
	degradedFailureRate  = 0.3
	criticalFailureRate  = 0.6
	degradedOpenBreakers = 1
	criticalOpenBreakers = 3
)

// computeLevel derives the degradation level from the recent failure
// rate and the number of open circuit breakers.
func computeLevel(windowTotal, windowFailures int64, openBreakers int) Level {
	failureRate := 0.0
	if windowTotal >= minWindowSamples {
		failureRate = float64(windowFailures) / float64(windowTotal)
	}

	switch {
	case failureRate >= criticalFailureRate || openBreakers >= criticalOpenBreakers:
		return LevelCritical
	case failureRate >= degradedFailureRate || openBreakers >= degradedOpenBreakers:
		return LevelDegraded
	default:
		return LevelNormal
	}
}

// applyLevel adjusts the cache strategy and batching aggressiveness
// for the level. NORMAL restores the configured strategy and enables
// batching; DEGRADED lengthens cache windows; CRITICAL additionally
// disables the batching window to simplify the failure surface.
func (c *Client) applyLevel(level Level) {
	previous := c.level.Swap(string(level))
	if previous == string(level) {
		return
	}
	c.logger.Infof("degradation level %s -> %s", previous, level)

	if c.cache != nil {
		switch level {
		case LevelNormal:
			c.cache.SetStrategy(c.configuredStrategy)
		default:
			c.cache.SetStrategy(cache.StrategyAggressive)
		}
	}
	if c.batcher != nil {
		c.batcher.SetDisabled(level == LevelCritical || c.batchingConfiguredOff)
	}
}
