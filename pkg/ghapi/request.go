package ghapi

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Endpoint identifies one of the seven GitHub search resource types.
type Endpoint string

const (
	EndpointRepositories Endpoint = "repositories"
	EndpointCode         Endpoint = "code"
	EndpointCommits      Endpoint = "commits"
	EndpointIssues       Endpoint = "issues"
	EndpointUsers        Endpoint = "users"
	EndpointLabels       Endpoint = "labels"
	EndpointTopics       Endpoint = "topics"
)

// Endpoints lists every search endpoint in a stable order.
var Endpoints = []Endpoint{
	EndpointRepositories,
	EndpointCode,
	EndpointCommits,
	EndpointIssues,
	EndpointUsers,
	EndpointLabels,
	EndpointTopics,
}

// ParseEndpoint converts a string (case-insensitive) to an Endpoint.
func ParseEndpoint(s string) (Endpoint, error) {
	candidate := Endpoint(strings.ToLower(s))
	for _, endpoint := range Endpoints {
		if candidate == endpoint {
			return endpoint, nil
		}
	}
	return "", fmt.Errorf("ghapi: unknown search endpoint %q", s)
}

// GitHub's documented defaults for search endpoints. Requests carrying
// these values explicitly normalize to the same key as requests
// omitting them.
const (
	defaultPerPage = 30
	defaultPage    = 1
)

// Request describes a single search call. Immutable once constructed;
// Key() derives the canonical form used for cache and dedup lookups.
type Request struct {
	Endpoint Endpoint

	// Query is the q parameter. Required for every endpoint.
	Query string

	// Sort and Order are optional result ordering parameters.
	Sort  string
	Order string

	// PerPage and Page control pagination. Zero means the GitHub
	// default (30 and 1 respectively).
	PerPage int
	Page    int

	// RepositoryID selects the repository for label search. Required
	// for (and only meaningful on) the labels endpoint.
	RepositoryID int64
}

// Validate checks the caller-supplied fields. Returns a
// *ValidationError if the query is missing or, for label search, no
// repository is given.
func (r Request) Validate() error {
	if _, err := ParseEndpoint(string(r.Endpoint)); err != nil {
		return &ValidationError{Message: err.Error()}
	}
	if strings.TrimSpace(r.Query) == "" {
		return &ValidationError{Message: "search query (q) is required"}
	}
	if r.Endpoint == EndpointLabels && r.RepositoryID <= 0 {
		return &ValidationError{Message: "repository_id is required for label search"}
	}
	return nil
}

// Values renders the request as URL query parameters.
func (r Request) Values() url.Values {
	values := url.Values{}
	values.Set("q", r.Query)
	if r.Sort != "" {
		values.Set("sort", r.Sort)
	}
	if r.Order != "" {
		values.Set("order", r.Order)
	}
	if r.PerPage > 0 {
		values.Set("per_page", strconv.Itoa(r.PerPage))
	}
	if r.Page > 0 {
		values.Set("page", strconv.Itoa(r.Page))
	}
	if r.Endpoint == EndpointLabels && r.RepositoryID > 0 {
		values.Set("repository_id", strconv.FormatInt(r.RepositoryID, 10))
	}
	return values
}

// Path returns the API path for the request's endpoint, relative to
// the base URL.
func (r Request) Path() string {
	return "/search/" + strings.ToLower(string(r.Endpoint))
}

// Key returns the normalized cache/dedup key: lower-cased endpoint
// plus the query parameters with sorted keys and explicit defaults
// stripped, so `per_page=30&page=1` and no pagination parameters
// produce the same key.
func (r Request) Key() string {
	values := r.Values()
	if values.Get("per_page") == strconv.Itoa(defaultPerPage) {
		values.Del("per_page")
	}
	if values.Get("page") == strconv.Itoa(defaultPage) {
		values.Del("page")
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(strings.ToLower(string(r.Endpoint)))
	for _, key := range keys {
		builder.WriteByte('&')
		builder.WriteString(key)
		builder.WriteByte('=')
		builder.WriteString(values.Get(key))
	}
	return builder.String()
}
