package ghapi

import (
	"encoding/json"
	"net/http"
)

// Result is a parsed search response. Items are kept as raw JSON; the
// client stack never interprets their contents.
type Result struct {
	TotalCount        int               `json:"total_count"`
	IncompleteResults bool              `json:"incomplete_results"`
	Items             []json.RawMessage `json:"items"`

	// Header carries the raw response headers (rate-limit state,
	// pagination links). Nil for results served from cache.
	Header http.Header `json:"-"`

	// Degraded is set by the facade when the result was produced
	// while the client was operating below NORMAL degradation level.
	Degraded bool `json:"-"`
}
