// Package ratelimit provides admission control for GitHub API calls
// over a pool of auth tokens. Each token's quota is tracked from
// X-RateLimit-* response headers; requests are routed to the token
// with the most headroom, and a per-resource concurrency gate bounds
// simultaneous in-flight calls independent of quota.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/ghkit/ghkit/pkg/clock"
	"github.com/ghkit/ghkit/pkg/ghapi"
)

// Resource names GitHub's independent rate-limit buckets. Search
// endpoints consume the "search" bucket; everything else the "core"
// bucket.
type Resource string

const (
	ResourceSearch Resource = "search"
	ResourceCore   Resource = "core"
)

// bucket tracks one resource's quota on one token. known is false
// until the first response carrying rate-limit headers; an unknown
// bucket is treated as available.
type bucket struct {
	limit     int
	remaining int
	resetAt   time.Time
	known     bool
}

// available reports whether the bucket admits a request at time now.
// An exhausted bucket becomes available again at its reset instant
// (inclusive, so a waiter woken exactly at resetAt is admitted).
func (b *bucket) available(now time.Time) bool {
	if !b.known {
		return true
	}
	if b.remaining > 0 {
		return true
	}
	return !now.Before(b.resetAt)
}

// tokenState is the pool's view of a single auth token.
type tokenState struct {
	token    string
	buckets  map[Resource]*bucket
	inFlight int

	// maxInFlight caps concurrent use of this token. Lowered by
	// adaptive mode when the server reports less headroom than local
	// tracking expected.
	maxInFlight int
}

func (t *tokenState) bucketFor(resource Resource) *bucket {
	b, ok := t.buckets[resource]
	if !ok {
		b = &bucket{}
		t.buckets[resource] = b
	}
	return b
}

// TokenStatus is a read-only snapshot of one token's state, exposed
// through metrics. The token value itself is truncated to avoid
// leaking credentials into logs or dashboards.
type TokenStatus struct {
	Token           string
	SearchRemaining int
	SearchLimit     int
	SearchResetAt   time.Time
	CoreRemaining   int
	CoreLimit       int
	CoreResetAt     time.Time
	InFlight        int
}

// Pool selects tokens for requests and records quota feedback from
// responses. Safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	tokens   []*tokenState
	adaptive bool
	clock    clock.Clock
}

// defaultMaxInFlight bounds concurrent use of a single token before
// adaptive mode adjusts it.
const defaultMaxInFlight = 10

// NewPool creates a pool over the given tokens. An empty slice yields
// a single unauthenticated entry. When adaptive is true, server
// headroom reports below local expectations shrink a token's
// concurrency allowance.
func NewPool(tokens []string, adaptive bool, clk clock.Clock) *Pool {
	if clk == nil {
		clk = clock.Real()
	}
	if len(tokens) == 0 {
		tokens = []string{""}
	}
	pool := &Pool{adaptive: adaptive, clock: clk}
	for _, token := range tokens {
		pool.tokens = append(pool.tokens, &tokenState{
			token:       token,
			buckets:     make(map[Resource]*bucket),
			maxInFlight: defaultMaxInFlight,
		})
	}
	return pool
}

// Acquire picks the available token with the most remaining quota for
// the resource and optimistically decrements it. Returns the token
// value and a release handle that must be called once the request
// settles. When every token is exhausted, ok is false and resetAt
// reports the earliest time a token becomes available again.
func (p *Pool) Acquire(resource Resource) (token string, release func(), ok bool, resetAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()

	var best *tokenState
	for _, candidate := range p.tokens {
		if candidate.inFlight >= candidate.maxInFlight {
			continue
		}
		b := candidate.bucketFor(resource)
		if !b.available(now) {
			continue
		}
		if best == nil || betterChoice(b, best.bucketFor(resource)) {
			best = candidate
		}
	}

	if best == nil {
		return "", nil, false, p.earliestResetLocked(resource)
	}

	best.inFlight++
	b := best.bucketFor(resource)
	if b.known && b.remaining > 0 {
		// Optimistic decrement; the response headers are
		// authoritative and overwrite this.
		b.remaining--
	}

	return best.token, func() { p.release(best) }, true, time.Time{}
}

// betterChoice prefers candidate over current when it has more
// headroom. An unknown bucket counts as full quota.
func betterChoice(candidate, current *bucket) bool {
	if !candidate.known {
		return current.known
	}
	if !current.known {
		return false
	}
	return candidate.remaining > current.remaining
}

func (p *Pool) release(state *tokenState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if state.inFlight > 0 {
		state.inFlight--
	}
}

// earliestResetLocked returns the soonest reset time across exhausted
// tokens, or now plus a minute when nothing is known.
func (p *Pool) earliestResetLocked(resource Resource) time.Time {
	var earliest time.Time
	for _, candidate := range p.tokens {
		b := candidate.bucketFor(resource)
		if !b.known {
			continue
		}
		if earliest.IsZero() || b.resetAt.Before(earliest) {
			earliest = b.resetAt
		}
	}
	if earliest.IsZero() {
		earliest = p.clock.Now().Add(time.Minute)
	}
	return earliest
}

// Record overwrites a token's quota from response headers. The
// X-RateLimit-Resource header names the bucket; search calls default
// to the search bucket when it is absent.
func (p *Pool) Record(token string, header http.Header, fallback Resource) {
	if header == nil {
		return
	}

	resource := fallback
	if name := header.Get("X-RateLimit-Resource"); name != "" {
		resource = Resource(name)
	}

	limit, remaining, resetAt := ghapi.RateLimitFromHeader(header, p.clock.Now())
	if limit == 0 && remaining == 0 && header.Get("X-RateLimit-Limit") == "" {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, state := range p.tokens {
		if state.token != token {
			continue
		}
		b := state.bucketFor(resource)
		// Adaptive mode: the server reporting less headroom than the
		// optimistic local count means other consumers share this
		// token. Shrink its concurrency allowance instead of waiting
		// for a 403.
		if p.adaptive && b.known && remaining < b.remaining && state.maxInFlight > 1 {
			state.maxInFlight--
		}
		b.limit = limit
		b.remaining = remaining
		b.resetAt = resetAt
		b.known = true
		return
	}
}

// MarkExhausted records a quota-exhausted response for a token, used
// when a 403/429 arrives without parseable headers.
func (p *Pool) MarkExhausted(token string, resource Resource, resetAt time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, state := range p.tokens {
		if state.token != token {
			continue
		}
		b := state.bucketFor(resource)
		b.remaining = 0
		b.resetAt = resetAt
		b.known = true
		return
	}
}

// Snapshot returns the current per-token state for metrics.
func (p *Pool) Snapshot() []TokenStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]TokenStatus, 0, len(p.tokens))
	for _, state := range p.tokens {
		search := state.bucketFor(ResourceSearch)
		core := state.bucketFor(ResourceCore)
		statuses = append(statuses, TokenStatus{
			Token:           redactToken(state.token),
			SearchRemaining: search.remaining,
			SearchLimit:     search.limit,
			SearchResetAt:   search.resetAt,
			CoreRemaining:   core.remaining,
			CoreLimit:       core.limit,
			CoreResetAt:     core.resetAt,
			InFlight:        state.inFlight,
		})
	}
	return statuses
}

// redactToken keeps a recognizable prefix and hides the rest.
func redactToken(token string) string {
	if token == "" {
		return "(anonymous)"
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****"
}
