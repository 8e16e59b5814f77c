// Package breaker isolates persistently failing search endpoints. One
// breaker per endpoint counts consecutive failures; past the threshold
// it opens and calls fail fast without a network attempt until a
// cool-down passes, after which a single trial call decides between
// closing and reopening.
package breaker

import (
	"sync"
	"time"

	"github.com/ghkit/ghkit/pkg/clock"
	"github.com/ghkit/ghkit/pkg/ghapi"
	"github.com/ghkit/ghkit/pkg/log"
)

// State is a breaker's position in its lifecycle.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// DefaultFailureThreshold opens a breaker after this many consecutive
// failures when no threshold is configured.
const DefaultFailureThreshold = 5

// DefaultResetTimeout is the open-state cool-down before a trial call
// is allowed.
const DefaultResetTimeout = 30 * time.Second

// Breaker is the state machine for one endpoint. Safe for concurrent
// use.
type Breaker struct {
	endpoint         ghapi.Endpoint
	failureThreshold int
	resetTimeout     time.Duration
	clock            clock.Clock
	logger           *log.Logger

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	probeInFlight       bool
}

// NewBreaker creates a closed breaker for the endpoint.
func NewBreaker(endpoint ghapi.Endpoint, failureThreshold int, resetTimeout time.Duration, clk clock.Clock) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultResetTimeout
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Breaker{
		endpoint:         endpoint,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		clock:            clk,
		logger:           log.ForComponent("breaker"),
		state:            StateClosed,
	}
}

// Allow reports whether a call may proceed. While open, returns a
// *ghapi.CircuitOpenError without any network attempt. Once the
// cool-down elapses the breaker moves to half-open and admits exactly
// one trial call; concurrent calls during the trial are rejected.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		reopenAt := b.openedAt.Add(b.resetTimeout)
		if b.clock.Now().Before(reopenAt) {
			return &ghapi.CircuitOpenError{Endpoint: b.endpoint, Until: reopenAt}
		}
		b.state = StateHalfOpen
		b.probeInFlight = true
		b.logger.Infof("%s breaker half-open, allowing trial call", b.endpoint)
		return nil
	default: // StateHalfOpen
		if b.probeInFlight {
			return &ghapi.CircuitOpenError{Endpoint: b.endpoint, Until: b.openedAt.Add(b.resetTimeout)}
		}
		b.probeInFlight = true
		return nil
	}
}

// RecordSuccess resets the failure count. A successful half-open trial
// closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	b.probeInFlight = false
	if b.state != StateClosed {
		b.logger.Infof("%s breaker closed", b.endpoint)
	}
	b.state = StateClosed
}

// RecordFailure counts a failure. Reaching the threshold (or failing
// the half-open trial) opens the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	b.probeInFlight = false

	if b.state == StateHalfOpen || b.consecutiveFailures >= b.failureThreshold {
		if b.state != StateOpen {
			b.logger.Warnf("%s breaker open after %d consecutive failures", b.endpoint, b.consecutiveFailures)
		}
		b.state = StateOpen
		b.openedAt = b.clock.Now()
	}
}

// Status is a read-only snapshot of one breaker.
type Status struct {
	Endpoint            ghapi.Endpoint `json:"endpoint"`
	State               State          `json:"state"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
	OpenedAt            time.Time      `json:"opened_at,omitzero"`
}

// Snapshot returns the breaker's current status.
func (b *Breaker) Snapshot() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	status := Status{
		Endpoint:            b.endpoint,
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
	}
	if b.state != StateClosed {
		status.OpenedAt = b.openedAt
	}
	return status
}

// Set holds one breaker per search endpoint.
type Set struct {
	breakers map[ghapi.Endpoint]*Breaker
}

// NewSet creates a breaker for every search endpoint with shared
// settings.
func NewSet(failureThreshold int, resetTimeout time.Duration, clk clock.Clock) *Set {
	set := &Set{breakers: make(map[ghapi.Endpoint]*Breaker, len(ghapi.Endpoints))}
	for _, endpoint := range ghapi.Endpoints {
		set.breakers[endpoint] = NewBreaker(endpoint, failureThreshold, resetTimeout, clk)
	}
	return set
}

// For returns the endpoint's breaker.
func (s *Set) For(endpoint ghapi.Endpoint) *Breaker {
	return s.breakers[endpoint]
}

// Snapshot returns every breaker's status keyed by endpoint.
func (s *Set) Snapshot() map[ghapi.Endpoint]Status {
	statuses := make(map[ghapi.Endpoint]Status, len(s.breakers))
	for endpoint, b := range s.breakers {
		statuses[endpoint] = b.Snapshot()
	}
	return statuses
}

// OpenCount returns how many breakers are currently open.
func (s *Set) OpenCount() int {
	count := 0
	for _, b := range s.breakers {
		if b.Snapshot().State == StateOpen {
			count++
		}
	}
	return count
}
