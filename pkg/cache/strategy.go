package cache

import (
	"fmt"
	"time"
)

// Strategy selects a default freshness window. The degradation policy
// switches strategies at runtime: longer windows mean more hits and
// fewer network calls when the API is struggling.
type Strategy string

const (
	StrategyConservative Strategy = "conservative"
	StrategyModerate     Strategy = "moderate"
	StrategyAggressive   Strategy = "aggressive"
)

// TTL returns the strategy's default freshness window.
func (s Strategy) TTL() time.Duration {
	switch s {
	case StrategyConservative:
		return time.Minute
	case StrategyAggressive:
		return 30 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// ParseStrategy converts a string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyConservative, StrategyModerate, StrategyAggressive:
		return Strategy(s), nil
	case "":
		return StrategyModerate, nil
	default:
		return "", fmt.Errorf("cache: unknown strategy %q", s)
	}
}
