// Package cache avoids redundant search calls by storing results under
// their normalized request key for a freshness window. Two tiers share
// one Store interface: a capacity-bounded in-memory LRU and an optional
// SQLite-backed persistent store that survives process restarts.
package cache

import (
	"time"

	"github.com/ghkit/ghkit/pkg/ghapi"
)

// Entry is one cached search result.
type Entry struct {
	Key      string
	Result   *ghapi.Result
	StoredAt time.Time
	TTL      time.Duration
}

// Expired reports whether the entry's freshness window has passed at
// time now.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.StoredAt.Add(e.TTL))
}

// Store is the contract both cache tiers satisfy. Implementations
// must be safe for concurrent use and must never return an expired
// entry.
type Store interface {
	// Get returns the unexpired entry for key, if any. Implementations
	// evict lazily: an expired entry found during Get is removed and
	// reported as a miss.
	Get(key string, now time.Time) (*Entry, bool)

	// Set stores an entry, evicting least-recently-used entries if a
	// capacity bound would be exceeded.
	Set(entry *Entry) error

	// Len returns the current entry count.
	Len() int

	// Clear removes all entries.
	Clear() error

	// Close releases any resources held by the store.
	Close() error
}

// Stats is a cache counter snapshot. Counters reset only on an
// explicit Clear or process restart.
type Stats struct {
	Size      int   `json:"size"`
	Capacity  int   `json:"capacity"`
	HitCount  int64 `json:"hit_count"`
	MissCount int64 `json:"miss_count"`
}

// HitRate returns hits/(hits+misses), or zero before any lookups.
func (s Stats) HitRate() float64 {
	total := s.HitCount + s.MissCount
	if total == 0 {
		return 0
	}
	return float64(s.HitCount) / float64(total)
}
